package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockUserLifecycle(t *testing.T) {
	m := NewMockClient("web-01")

	// No user yet
	_, stderr, code, err := m.Exec("id -u 'ansible'")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, string(stderr), "no such user")

	// Group must exist before useradd -G
	_, _, code, _ = m.Exec("sudo -n useradd -m -G 'wheel' 'ansible'")
	assert.NotEqual(t, 0, code)

	_, _, code, _ = m.Exec("sudo -n groupadd 'wheel'")
	require.Equal(t, 0, code)
	assert.True(t, m.HasGroup("wheel"))

	_, _, code, _ = m.Exec("sudo -n useradd -m -G 'wheel' 'ansible'")
	require.Equal(t, 0, code)

	user := m.User("ansible")
	require.NotNil(t, user)
	assert.Equal(t, "/home/ansible", user.Home)
	assert.Equal(t, []string{"wheel"}, user.Groups)

	// Second useradd fails like the real tool
	_, stderr, code, _ = m.Exec("useradd -m 'ansible'")
	assert.Equal(t, 9, code)
	assert.Contains(t, string(stderr), "already exists")

	// getent passwd reports the home directory
	stdout, _, code, _ := m.Exec("getent passwd 'ansible'")
	require.Equal(t, 0, code)
	assert.Contains(t, string(stdout), ":/home/ansible:")
}

func TestMockGroupMembership(t *testing.T) {
	m := NewMockClient("web-01")
	m.Exec("groupadd 'wheel'")
	m.Exec("groupadd 'docker'")
	m.AddUser("bob", "/home/bob", "docker")

	_, _, code, _ := m.Exec("usermod -a -G 'wheel' 'bob'")
	require.Equal(t, 0, code)
	assert.ElementsMatch(t, []string{"docker", "wheel"}, m.User("bob").Groups)

	// Appending an existing membership is a no-op
	_, _, code, _ = m.Exec("usermod -a -G 'wheel' 'bob'")
	require.Equal(t, 0, code)
	assert.Len(t, m.User("bob").Groups, 2)
}

func TestMockFileOps(t *testing.T) {
	m := NewMockClient("web-01")

	require.NoError(t, m.Upload("/tmp/.enroll-stage", []byte("content\n"), 0600))
	assert.Equal(t, uint32(0600), m.GetFS().Mode("/tmp/.enroll-stage"))

	_, _, code, _ := m.Exec("test -f '/tmp/.enroll-stage'")
	assert.Equal(t, 0, code)

	_, _, code, _ = m.Exec("sudo -n install -o root -g root -m 0600 '/tmp/.enroll-stage' '/etc/target'")
	require.Equal(t, 0, code)

	got, err := m.Download("/etc/target")
	require.NoError(t, err)
	assert.Equal(t, "content\n", string(got))
	assert.Equal(t, uint32(0600), m.GetFS().Mode("/etc/target"))

	stdout, _, code, _ := m.Exec("cat '/etc/target'")
	require.Equal(t, 0, code)
	assert.Equal(t, "content\n", string(stdout))

	m.Exec("rm -f '/tmp/.enroll-stage'")
	_, _, code, _ = m.Exec("test -f '/tmp/.enroll-stage'")
	assert.Equal(t, 1, code)
}

func TestMockPackageManager(t *testing.T) {
	m := NewMockClient("web-01")
	m.SetPackageManager("apt-get")

	_, _, code, _ := m.Exec("command -v apt-get")
	assert.Equal(t, 0, code)
	_, _, code, _ = m.Exec("command -v dnf")
	assert.Equal(t, 1, code)

	_, _, code, _ = m.Exec("sudo -n apt-get install -y 'pam_ssh_agent_auth'")
	require.Equal(t, 0, code)
	assert.True(t, m.HasPackage("pam_ssh_agent_auth"))
}

func TestMockSystemctl(t *testing.T) {
	m := NewMockClient("web-01")

	_, _, code, _ := m.Exec("sudo -n systemctl restart 'sshd'")
	require.Equal(t, 0, code)
	assert.Equal(t, "restarted", m.ServiceState("sshd"))
}

func TestMockCannedResponses(t *testing.T) {
	m := NewMockClient("web-01")
	m.SetCommandResponse(`useradd`, CommandResponse{
		Stderr:   []byte("useradd: cannot lock /etc/passwd"),
		ExitCode: 10,
	})

	m.Exec("groupadd 'wheel'")
	_, stderr, code, _ := m.Exec("sudo -n useradd -m -G 'wheel' 'ansible'")
	assert.Equal(t, 10, code)
	assert.Contains(t, string(stderr), "cannot lock")
}

func TestMockClosedConnection(t *testing.T) {
	m := NewMockClient("web-01")
	require.NoError(t, m.Close())

	_, _, code, err := m.Exec("uname -s")
	assert.Error(t, err)
	assert.Equal(t, -1, code)

	assert.Error(t, m.Upload("/x", nil, 0))
}

func TestNewCreatedHost(t *testing.T) {
	m := NewCreatedHost("web-01", "bob")

	assert.Equal(t, "bob", m.GetUser())
	require.NotNil(t, m.User("bob"))

	stdout, _, code, _ := m.Exec("cat '/etc/ssh/sshd_config'")
	require.Equal(t, 0, code)
	assert.Contains(t, string(stdout), "PasswordAuthentication yes")

	stdout, _, code, _ = m.Exec("cat '/etc/pam.d/sudo'")
	require.Equal(t, 0, code)
	assert.Contains(t, string(stdout), "auth       include      system-auth")
}
