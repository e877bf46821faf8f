package provision

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/util"
	"github.com/enrollkit/enroll/pkg/sshutil"
)

// runner executes commands on one host, escalating with sudo when
// needed. Freshly created accounts usually can't sudo without a
// password, so the recorded password is piped to sudo -S when present.
type runner struct {
	client         sshutil.SSHClient
	becomePassword string
}

// run executes a command as the login user.
func (r *runner) run(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return r.client.Exec(cmd)
}

// sudo executes a command as root. With no become password it relies on
// passwordless sudo (sudo -n); otherwise the password is piped to stdin.
func (r *runner) sudo(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	if r.becomePassword == "" {
		return r.client.Exec("sudo -n " + cmd)
	}
	return r.client.ExecInput("sudo -S -p '' "+cmd, []byte(r.becomePassword+"\n"))
}

// readFile reads a root-owned remote file. A missing file is not an
// error: it returns (nil, false, nil) so callers can treat absent and
// empty content differently.
func (r *runner) readFile(path string) ([]byte, bool, error) {
	stdout, _, code, err := r.sudo("cat " + util.ShellQuote(path))
	if err != nil {
		return nil, false, errors.Wrap(err, fmt.Sprintf("Cannot read %s", path))
	}
	if code != 0 {
		return nil, false, nil
	}
	return stdout, true, nil
}

// writeFile replaces a root-owned remote file: upload to a staging path
// the login user can write, then move it into place with install so
// ownership and mode are set atomically with the copy.
func (r *runner) writeFile(path string, content []byte, owner, group, mode string) error {
	stage := sshutil.StagePath(filepath.Base(path))

	if err := r.client.Upload(stage, content, 0600); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Cannot stage %s", path))
	}

	cmd := fmt.Sprintf("install -o %s -g %s -m %s %s %s",
		util.ShellQuote(owner), util.ShellQuote(group), mode,
		util.ShellQuote(stage), util.ShellQuote(path))
	_, stderr, code, err := r.sudo(cmd)

	// Best-effort cleanup of the staged copy.
	r.run("rm -f " + util.ShellQuote(stage)) //nolint:errcheck // Cleanup, error not actionable

	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Cannot install %s", path))
	}
	if code != 0 {
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("Cannot install %s: %s", path, strings.TrimSpace(string(stderr))),
			"Check that the connection account is allowed to sudo")
	}
	return nil
}

// sudoOK runs a privileged command and converts a non-zero exit into a
// structured error carrying the command's stderr.
func (r *runner) sudoOK(cmd, what string) error {
	_, stderr, code, err := r.sudo(cmd)
	if err != nil {
		return errors.Wrap(err, what+" failed")
	}
	if code != 0 {
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("%s failed (exit %d): %s", what, code, strings.TrimSpace(string(stderr))), "")
	}
	return nil
}
