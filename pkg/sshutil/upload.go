package sshutil

import (
	"io"
	"os"
	"path"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/pkg/sftp"
)

// Upload writes content to a remote path via SFTP with the given mode.
// Parent directories must already exist; provisioning writes into
// well-known locations (home directories, /tmp staging).
func (c *Client) Upload(remotePath string, content []byte, mode uint32) error {
	sftpClient, err := sftp.NewClient(c.Client)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to open SFTP channel",
			"The remote sshd may have the sftp subsystem disabled.")
	}
	defer sftpClient.Close()

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to create remote file "+remotePath,
			"Check the parent directory exists and is writable by "+c.User+".")
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to write remote file "+remotePath, "")
	}
	if err := f.Close(); err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to finalize remote file "+remotePath, "")
	}

	if mode != 0 {
		if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
			return errors.WrapWithCode(err, errors.ErrSSH,
				"Failed to chmod remote file "+remotePath, "")
		}
	}

	return nil
}

// Download reads the content of a remote file via SFTP.
// A missing file is reported as an error; callers that treat absence as
// empty should check with Exec("test -f ...") first.
func (c *Client) Download(remotePath string) ([]byte, error) {
	sftpClient, err := sftp.NewClient(c.Client)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to open SFTP channel",
			"The remote sshd may have the sftp subsystem disabled.")
	}
	defer sftpClient.Close()

	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to open remote file "+remotePath, "")
	}
	defer f.Close()

	return io.ReadAll(f)
}

// StagePath returns a remote staging location for a file about to be moved
// into place with elevated privileges.
func StagePath(name string) string {
	return path.Join("/tmp", ".enroll-"+name)
}
