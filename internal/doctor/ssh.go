package doctor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/enrollkit/enroll/internal/provision"
	"github.com/enrollkit/enroll/internal/sshkeys"
	"github.com/enrollkit/enroll/internal/util"
)

// NewSSHChecks returns the local SSH checks. keyFile is the configured
// public key path; empty means fall back to key discovery.
func NewSSHChecks(keyFile string) []Check {
	return []Check{
		&publicKeyCheck{keyFile: keyFile},
		&agentCheck{},
	}
}

// publicKeyCheck verifies the operator's public key exists and is a
// single valid key line. A malformed key would be installed verbatim as
// the admin account's only authorized key.
type publicKeyCheck struct {
	keyFile string
}

func (c *publicKeyCheck) Name() string     { return "public_key" }
func (c *publicKeyCheck) Category() string { return "SSH" }

func (c *publicKeyCheck) Run() CheckResult {
	path := c.keyFile
	if path == "" {
		key := sshkeys.GetPreferredKey()
		if key == nil || !key.HasPublic {
			return CheckResult{
				Name:       c.Name(),
				Status:     StatusFail,
				Message:    "No SSH public key found",
				Suggestion: "Generate a key with: ssh-keygen -t ed25519",
			}
		}
		path = key.PublicPath
	}

	content, err := sshkeys.ReadPublicKey(util.ExpandUser(path))
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Cannot read public key: " + path,
			Suggestion: "Check admin.public_key_file, or generate a key with: ssh-keygen -t ed25519",
		}
	}

	if _, err := provision.ExclusiveAuthorizedKeys(content); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Public key %s doesn't look like a key: %v", path, err),
			Suggestion: "Point admin.public_key_file at a .pub file, not the private key",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Public key OK: " + path,
	}
}

// agentCheck verifies a usable SSH agent. Once hosts are hardened,
// password auth is off and sudo authenticates against the forwarded
// agent, so a dead agent means locked-out sudo.
type agentCheck struct{}

func (c *agentCheck) Name() string     { return "ssh_agent" }
func (c *agentCheck) Category() string { return "SSH" }

func (c *agentCheck) Run() CheckResult {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "SSH agent not running",
			Suggestion: "Fix: eval $(ssh-agent) && ssh-add",
		}
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "SSH agent socket not accessible",
			Suggestion: "Fix: eval $(ssh-agent) && ssh-add",
		}
	}
	conn.Close() //nolint:errcheck // Best-effort close, error not actionable

	cmd := exec.Command("ssh-add", "-l")
	output, err := cmd.Output()
	if err != nil {
		// Exit code 1 means no keys loaded
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return CheckResult{
				Name:       c.Name(),
				Status:     StatusWarn,
				Message:    "SSH agent running but no keys loaded",
				Suggestion: "Add a key with: ssh-add",
			}
		}
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Cannot query SSH agent",
			Suggestion: "Check SSH agent: ssh-add -l",
		}
	}

	keyCount := 0
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if strings.TrimSpace(line) != "" {
			keyCount++
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("SSH agent running with %d key%s loaded", keyCount, pluralize(keyCount)),
	}
}
