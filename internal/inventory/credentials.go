package inventory

// Credentials are the effective connection settings for one host,
// resolved from the recorded created account.
type Credentials struct {
	// User is the login name to connect as. Empty means the normal SSH
	// identity resolution (ssh_config, $USER) applies unchanged.
	User string

	// Password is the login password for the created account. Empty
	// means key or agent auth only.
	Password string

	// BecomePassword is fed to sudo when passwordless sudo is not
	// available. For freshly created accounts this is the same as the
	// login password.
	BecomePassword string
}

// DeriveCredentials resolves the connection identity for a host from its
// recorded created account. A host with no created_username keeps the
// operator's identity unchanged: the zero value is returned and the SSH
// layer falls back to its usual resolution.
func DeriveCredentials(h Host) Credentials {
	if h.CreatedUsername == "" {
		return Credentials{}
	}
	return Credentials{
		User:           h.CreatedUsername,
		Password:       h.CreatedPassword,
		BecomePassword: h.CreatedPassword,
	}
}

// Overridden reports whether the host's recorded account replaces the
// operator's own identity.
func (c Credentials) Overridden() bool {
	return c.User != ""
}
