package testing

// Default file content seeded by NewLinuxHost. Kept close to what a stock
// EL system ships so the editing code is exercised against realistic input.
const (
	DefaultSSHDConfig = `# This is the sshd server system-wide configuration file.
Port 22
PermitRootLogin yes
PasswordAuthentication yes
ChallengeResponseAuthentication no
UsePAM yes
Subsystem sftp /usr/libexec/openssh/sftp-server
`

	DefaultPAMSudo = `#%PAM-1.0
auth       include      system-auth
account    include      system-auth
password   include      system-auth
session    include      system-auth
`
)

// NewLinuxHost creates a mock client preloaded with the files a stock
// Linux host has before provisioning: an sshd_config allowing password
// auth and a default PAM sudo stack.
func NewLinuxHost(host string) *MockClient {
	m := NewMockClient(host)
	_ = m.fs.WriteFile("/etc/ssh/sshd_config", []byte(DefaultSSHDConfig))
	_ = m.fs.WriteFile("/etc/pam.d/sudo", []byte(DefaultPAMSudo))
	_ = m.fs.MkdirAll("/etc/ssh")
	_ = m.fs.MkdirAll("/etc/pam.d")
	_ = m.fs.MkdirAll("/tmp")
	return m
}

// NewCreatedHost creates a mock client that looks like a host just handed
// over by an external provisioning phase: a stock Linux host plus the
// recorded created account.
func NewCreatedHost(host, createdUser string) *MockClient {
	m := NewLinuxHost(host)
	m.AddUser(createdUser, "/home/"+createdUser)
	m.SetUser(createdUser)
	return m
}
