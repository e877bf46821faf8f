package sshutil

import "io"

// SSHClient defines the interface for SSH command execution and file upload.
// Both the real Client and mock implementations satisfy this interface.
//
// This interface enables testing of SSH-dependent code without requiring
// actual SSH connections. The mock implementation provides a virtual
// filesystem and host model that respond realistically to the commands
// provisioning runs (id, getent, useradd, systemctl, package managers).
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// ExecStream runs a command and streams output to the provided writers.
	// Returns the exit code and any error.
	ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error)

	// ExecInput runs a command with the given bytes piped to its stdin.
	ExecInput(cmd string, input []byte) (stdout, stderr []byte, exitCode int, err error)

	// Upload writes content to a remote path via SFTP.
	Upload(path string, content []byte, mode uint32) error

	// Download reads the content of a remote file via SFTP.
	Download(path string) ([]byte, error)

	// Close closes the SSH connection.
	Close() error

	// GetHost returns the original host/alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string

	// GetUser returns the username the session authenticated as.
	GetUser() string

	// NewSession creates a new SSH session for command execution or liveness checks.
	// The returned session should be closed after use.
	NewSession() (Session, error)
}

// Session represents an SSH session that can be closed.
// This is a minimal interface for the ssh.Session type.
type Session interface {
	io.Closer
}
