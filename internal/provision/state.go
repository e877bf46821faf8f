// Package provision turns a freshly created host into a managed node:
// probe it with its recorded credentials, create the admin account,
// install the operator's key as the only authorized key, disable
// password authentication for that account, and register the PAM
// SSH-agent helper for sudo.
//
// Progress through the sequence is an explicit state machine. Each step
// declares the minimum state it needs and a failure policy; a Required
// failure parks the host in Failed and everything after it is skipped.
package provision

// State is how far a host has progressed through provisioning.
type State int

const (
	// Unreached is the initial state: no successful connection yet.
	Unreached State = iota

	// Reachable means a probe with the derived credentials succeeded.
	Reachable

	// UserCreated means the admin group and account exist.
	UserCreated

	// KeyInstalled means the operator's key is the account's only
	// authorized key.
	KeyInstalled

	// Hardened is terminal success: password auth disabled, PAM helper
	// registered, sshd restarted, and the new key verified.
	Hardened

	// Failed is terminal: a required step failed. Nothing after it runs.
	Failed
)

// String returns the state name for logs and summaries.
func (s State) String() string {
	switch s {
	case Unreached:
		return "unreached"
	case Reachable:
		return "reachable"
	case UserCreated:
		return "user-created"
	case KeyInstalled:
		return "key-installed"
	case Hardened:
		return "hardened"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// AtLeast reports whether the host has progressed to min. Failed hosts
// satisfy no guard.
func (s State) AtLeast(min State) bool {
	if s == Failed {
		return false
	}
	return s >= min
}
