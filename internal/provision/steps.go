package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/util"
	"github.com/enrollkit/enroll/pkg/sshutil"
)

// Step names, in sequence order.
const (
	StepDeriveCredentials    = "derive-credentials"
	StepProbe                = "probe"
	StepGatherFacts          = "gather-facts"
	StepEnsureGroup          = "ensure-group"
	StepCreateUser           = "create-user"
	StepInstallAuthorizedKey = "install-authorized-key"
	StepDisablePasswordAuth  = "disable-password-auth"
	StepInstallPAMPackage    = "install-pam-package"
	StepRegisterPAMRule      = "register-pam-rule"
	StepVerifyAndRestart     = "verify-and-restart"
)

// steps returns the connected part of the sequence. Credential
// derivation and the probe run before these, since they establish the
// connection the steps share.
func (s *Sequencer) steps() []Step {
	return []Step{
		{
			Name:   StepGatherFacts,
			Policy: BestEffort,
			Guard:  Reachable,
			Run:    s.gatherFacts,
		},
		{
			Name:   StepEnsureGroup,
			Policy: Required,
			Guard:  Reachable,
			Run:    s.ensureGroup,
		},
		{
			Name:    StepCreateUser,
			Policy:  Required,
			Guard:   Reachable,
			Advance: UserCreated,
			Run:     s.createUser,
		},
		{
			Name:    StepInstallAuthorizedKey,
			Policy:  Required,
			Guard:   UserCreated,
			Advance: KeyInstalled,
			Run:     s.installAuthorizedKey,
		},
		{
			Name:   StepDisablePasswordAuth,
			Policy: Required,
			Guard:  KeyInstalled,
			Run:    s.disablePasswordAuth,
		},
		{
			Name:   StepInstallPAMPackage,
			Policy: Required,
			Guard:  KeyInstalled,
			Run:    s.installPAMPackage,
		},
		{
			Name:   StepRegisterPAMRule,
			Policy: Required,
			Guard:  KeyInstalled,
			Run:    s.registerPAMRule,
		},
		{
			Name:    StepVerifyAndRestart,
			Policy:  Required,
			Guard:   KeyInstalled,
			Advance: Hardened,
			Run:     s.verifyAndRestart,
		},
	}
}

// gatherFacts records basic host observations. Best effort: a partial
// or failed probe never stops the sequence.
func (s *Sequencer) gatherFacts(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()

	probes := []struct{ fact, cmd string }{
		{"kernel", "uname -s"},
		{"arch", "uname -m"},
		{"hostname", "hostname"},
	}
	for _, p := range probes {
		stdout, _, code, err := r.run(p.cmd)
		if err != nil {
			return false, errors.Wrap(err, "Fact probe failed")
		}
		if code == 0 {
			hc.Facts[p.fact] = strings.TrimSpace(string(stdout))
		}
	}
	return false, nil
}

// ensureGroup creates the admin group if it doesn't exist.
func (s *Sequencer) ensureGroup(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()
	group := s.Settings.AdminGroup

	_, _, code, err := r.run("getent group " + util.ShellQuote(group))
	if err != nil {
		return false, errors.Wrap(err, "Group lookup failed")
	}
	if code == 0 {
		return false, nil
	}

	if err := r.sudoOK("groupadd "+util.ShellQuote(group), "groupadd "+group); err != nil {
		return false, err
	}
	return true, nil
}

// createUser creates the admin account with the admin group as a
// supplementary group, or joins an existing account to the group.
func (s *Sequencer) createUser(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()
	user := s.Settings.AdminUser
	group := s.Settings.AdminGroup

	_, _, code, err := r.run("id -u " + util.ShellQuote(user))
	if err != nil {
		return false, errors.Wrap(err, "User lookup failed")
	}

	if code != 0 {
		cmd := fmt.Sprintf("useradd -m -G %s %s", util.ShellQuote(group), util.ShellQuote(user))
		if err := r.sudoOK(cmd, "useradd "+user); err != nil {
			return false, err
		}
		return true, nil
	}

	// Account exists; make sure it is in the group.
	member, err := groupHasMember(r, group, user)
	if err != nil {
		return false, err
	}
	if member {
		return false, nil
	}
	cmd := fmt.Sprintf("usermod -a -G %s %s", util.ShellQuote(group), util.ShellQuote(user))
	if err := r.sudoOK(cmd, "usermod "+user); err != nil {
		return false, err
	}
	return true, nil
}

// groupHasMember checks the group's member list via getent.
func groupHasMember(r *runner, group, user string) (bool, error) {
	stdout, _, code, err := r.run("getent group " + util.ShellQuote(group))
	if err != nil {
		return false, errors.Wrap(err, "Group lookup failed")
	}
	if code != 0 {
		return false, nil
	}
	// group:x:gid:member1,member2
	parts := strings.SplitN(strings.TrimSpace(string(stdout)), ":", 4)
	if len(parts) < 4 {
		return false, nil
	}
	for _, m := range strings.Split(parts[3], ",") {
		if m == user {
			return true, nil
		}
	}
	return false, nil
}

// installAuthorizedKey makes the operator's key the account's ONLY
// authorized key. Exclusive replacement, not append: a re-imaged host
// may carry stale or baked-in keys that must stop working.
func (s *Sequencer) installAuthorizedKey(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()
	user := s.Settings.AdminUser

	desired, err := ExclusiveAuthorizedKeys(s.Settings.PublicKey)
	if err != nil {
		return false, err
	}

	home, err := homeDir(r, user)
	if err != nil {
		return false, err
	}
	hc.Facts["admin_home"] = home

	sshDir := home + "/.ssh"
	authKeys := sshDir + "/authorized_keys"

	current, exists, err := r.readFile(authKeys)
	if err != nil {
		return false, err
	}
	if exists && string(current) == desired {
		return false, nil
	}

	owner := util.ShellQuote(user)
	if err := r.sudoOK("mkdir -p "+util.ShellQuote(sshDir), "mkdir "+sshDir); err != nil {
		return false, err
	}
	if err := r.sudoOK(fmt.Sprintf("chown %s:%s %s", owner, owner, util.ShellQuote(sshDir)), "chown "+sshDir); err != nil {
		return false, err
	}
	if err := r.sudoOK("chmod 0700 "+util.ShellQuote(sshDir), "chmod "+sshDir); err != nil {
		return false, err
	}

	if err := r.writeFile(authKeys, []byte(desired), user, user, "0600"); err != nil {
		return false, err
	}
	return true, nil
}

// homeDir resolves an account's home directory from getent passwd.
func homeDir(r *runner, user string) (string, error) {
	stdout, _, code, err := r.run("getent passwd " + util.ShellQuote(user))
	if err != nil {
		return "", errors.Wrap(err, "User lookup failed")
	}
	if code != 0 {
		return "", errors.New(errors.ErrProvision,
			fmt.Sprintf("Account %s not found in passwd", user), "")
	}
	fields := strings.Split(strings.TrimSpace(string(stdout)), ":")
	if len(fields) < 6 || fields[5] == "" {
		return "/home/" + user, nil
	}
	return fields[5], nil
}

// disablePasswordAuth writes the managed Match block that turns off
// password authentication for the admin account. The new config is
// validated with sshd -t before it counts; a failed validation rolls
// the file back so a later restart can't lock the host out.
func (s *Sequencer) disablePasswordAuth(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()
	const path = "/etc/ssh/sshd_config"

	current, exists, err := r.readFile(path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, errors.New(errors.ErrProvision,
			"No sshd_config found at "+path,
			"Is OpenSSH server installed on this host?")
	}

	block := fmt.Sprintf("Match User %s\n    PasswordAuthentication no", s.Settings.AdminUser)
	updated, changed := UpsertBlock(string(current), block)
	if !changed {
		return false, nil
	}

	if err := r.writeFile(path, []byte(updated), "root", "root", "0600"); err != nil {
		return false, err
	}

	if err := r.sudoOK("sshd -t", "sshd config validation"); err != nil {
		// Roll back before anything can restart sshd with a broken config.
		if restoreErr := r.writeFile(path, current, "root", "root", "0600"); restoreErr != nil {
			return false, errors.WrapWithCode(err, errors.ErrProvision,
				"sshd config validation failed AND the rollback failed; sshd_config on the host may be broken",
				"Inspect "+path+" on the host before restarting sshd")
		}
		return false, err
	}

	hc.restartSSHD = true
	hc.noAbort = true
	return true, nil
}

// installPAMPackage ensures the PAM SSH-agent helper is installed and
// current.
func (s *Sequencer) installPAMPackage(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()

	pm, ok := hc.Facts["package_manager"]
	if !ok {
		var err error
		pm, err = detectPackageManager(r)
		if err != nil {
			return false, err
		}
		hc.Facts["package_manager"] = pm
	}

	cmd := installCommand(pm, s.Settings.PAMPackage)
	if err := r.sudoOK(cmd, "install "+s.Settings.PAMPackage); err != nil {
		return false, err
	}
	return true, nil
}

// registerPAMRule inserts the agent-auth rule into the PAM service
// stack, immediately before the configured anchor so it is consulted
// ahead of the password modules.
func (s *Sequencer) registerPAMRule(_ context.Context, hc *HostContext) (bool, error) {
	r := hc.runner()
	path := "/etc/pam.d/" + s.Settings.PAMService

	current, exists, err := r.readFile(path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, errors.New(errors.ErrProvision,
			"No PAM service file found at "+path,
			"Check pam.service in .enroll.yaml")
	}

	home := hc.Facts["admin_home"]
	if home == "" {
		home = "/home/" + s.Settings.AdminUser
	}
	rule := PAMAgentRule(home + "/.ssh/authorized_keys")

	updated, changed, err := InsertPAMRule(string(current), rule, s.Settings.PAMAnchor)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if err := r.writeFile(path, []byte(updated), "root", "root", "0644"); err != nil {
		return false, err
	}
	return true, nil
}

// verifyAndRestart proves the new key works BEFORE restarting sshd, then
// restarts and proves it again. The one disaster this sequence can cause
// is a host with password auth disabled and no working key; both probes
// exist to make that impossible to miss.
func (s *Sequencer) verifyAndRestart(ctx context.Context, hc *HostContext) (bool, error) {
	target := hc.Host.Target()
	opts := sshutil.Options{
		User:    s.Settings.AdminUser,
		Timeout: s.Settings.ProbeTimeout,
	}

	if !s.Settings.SkipVerify {
		client, err := s.dial(ctx, target, opts)
		if err != nil {
			return false, errors.WrapWithCode(err, errors.ErrProvision,
				fmt.Sprintf("Cannot log in as %s with the new key; NOT restarting sshd", s.Settings.AdminUser),
				"Check that your agent holds the key matching admin.public_key_file, then re-run")
		}
		client.Close() //nolint:errcheck // Liveness probe, error not actionable
	}

	if !hc.restartSSHD {
		return false, nil
	}

	r := hc.runner()
	restart := "systemctl restart " + util.ShellQuote(s.Settings.SSHService)
	if err := r.sudoOK(restart, "restart "+s.Settings.SSHService); err != nil {
		return false, err
	}

	if !s.Settings.SkipVerify {
		client, err := s.dialRetry(ctx, target, opts)
		if err != nil {
			return true, errors.WrapWithCode(err, errors.ErrProvision,
				fmt.Sprintf("sshd on %s was restarted but key login now FAILS; the host may be locked out", hc.Host.Name),
				"Log in on the console or with another account and check /etc/ssh/sshd_config and the authorized_keys file")
		}
		client.Close() //nolint:errcheck // Liveness probe, error not actionable
	}
	return true, nil
}
