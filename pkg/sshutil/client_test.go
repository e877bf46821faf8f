package sshutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSSHSettingsParsing(t *testing.T) {
	// Point HOME somewhere empty so a real ~/.ssh/config can't interfere.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENROLL_TEST_SSH_USER", "")
	t.Setenv("USER", "operator")

	tests := []struct {
		name     string
		host     string
		wantHost string
		wantPort string
		wantUser string
	}{
		{"bare hostname", "web-01", "web-01", "22", "operator"},
		{"user at host", "bob@web-01", "web-01", "22", "bob"},
		{"host with port", "web-01:2222", "web-01", "2222", "operator"},
		{"user host port", "bob@web-01:2222", "web-01", "2222", "bob"},
		{"ipv4", "192.168.1.100", "192.168.1.100", "22", "operator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := resolveSSHSettings(tt.host)
			assert.Equal(t, tt.wantHost, settings.hostname)
			assert.Equal(t, tt.wantPort, settings.port)
			assert.Equal(t, tt.wantUser, settings.user)
		})
	}
}

func TestResolveSSHSettingsFromConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ENROLL_TEST_SSH_USER", "")

	sshDir := filepath.Join(home, ".ssh")
	require.NoError(t, os.MkdirAll(sshDir, 0700))
	configContent := `Host web-01
    HostName 10.0.0.5
    Port 2200
    User deploy
`
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "config"), []byte(configContent), 0600))

	settings := resolveSSHSettings("web-01")
	assert.Equal(t, "10.0.0.5", settings.hostname)
	assert.Equal(t, "2200", settings.port)
	assert.Equal(t, "deploy", settings.user)

	// An explicit user@ beats the config file.
	settings = resolveSSHSettings("bob@web-01")
	assert.Equal(t, "bob", settings.user)
}

func TestPreprocessSSHConfigStopsAtMatch(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config")
	content := `Host a
    Port 22

Match user deploy
    Port 2222

Host b
    Port 23
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	got, matchLine, err := preprocessSSHConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 4, matchLine)
	assert.Contains(t, string(got), "Host a")
	assert.NotContains(t, string(got), "Match user")
	assert.NotContains(t, string(got), "Host b")
}

func TestBuildSSHConfigWithPassword(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("ENROLL_TEST_SSH_KEY", "")

	settings := &sshSettings{hostname: "web-01", port: "22", user: "bob"}
	cfg, err := buildSSHConfig(settings, Options{Password: "pw1", Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.User)
	assert.NotEmpty(t, cfg.Auth)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestBuildSSHConfigNoMethods(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("ENROLL_TEST_SSH_KEY", "")

	settings := &sshSettings{hostname: "web-01", port: "22", user: "bob"}
	_, err := buildSSHConfig(settings, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No SSH auth methods")
}

func TestSettingsAddress(t *testing.T) {
	s := &sshSettings{hostname: "web-01", port: "2222"}
	assert.Equal(t, "web-01:2222", s.address())
}

func TestStagePath(t *testing.T) {
	assert.Equal(t, "/tmp/.enroll-sshd_config", StagePath("sshd_config"))
}

func TestDialUnreachableHostFailsFast(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	start := time.Now()
	// Reserved TEST-NET address; nothing listens there.
	_, err := Dial("192.0.2.1", Options{Password: "x", Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "dial must honor the bounded timeout")
}
