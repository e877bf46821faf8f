package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, "ansible", cfg.Admin.Username)
	assert.Equal(t, "wheel", cfg.Admin.Group)
	assert.Equal(t, "~/.ssh/id_ed25519.pub", cfg.Admin.PublicKeyFile)
	assert.Equal(t, "pam_ssh_agent_auth", cfg.PAM.Package)
	assert.Equal(t, "sudo", cfg.PAM.Service)
	assert.Equal(t, 5*time.Second, cfg.SSH.ProbeTimeout)
	assert.Equal(t, 5, cfg.SSH.ConnectRetries)
	assert.Equal(t, 2*time.Second, cfg.SSH.RetryBackoff)
	assert.Equal(t, "sshd", cfg.SSH.Service)
	assert.Equal(t, 10, cfg.Concurrency)
	assert.Equal(t, "auto", cfg.Output.Color)
	assert.Equal(t, "normal", cfg.Output.Verbosity)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".enroll.yaml")

	content := `
version: 1
inventory:
  file: hosts.yaml
admin:
  username: automation
  group: sudo
  public_key_file: ~/.ssh/ops.pub
pam:
  package: pam_ssh_agent_auth
  service: sudo
  anchor: "auth       include      system-auth"
ssh:
  probe_timeout: 10s
  connect_retries: 3
  retry_backoff: 1s
  service: ssh
concurrency: 4
output:
  color: never
  verbosity: verbose
`
	err := os.WriteFile(configPath, []byte(content), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "hosts.yaml", cfg.Inventory.File)
	assert.Equal(t, "automation", cfg.Admin.Username)
	assert.Equal(t, "sudo", cfg.Admin.Group)
	assert.Equal(t, "~/.ssh/ops.pub", cfg.Admin.PublicKeyFile)
	assert.Equal(t, 10*time.Second, cfg.SSH.ProbeTimeout)
	assert.Equal(t, 3, cfg.SSH.ConnectRetries)
	assert.Equal(t, "ssh", cfg.SSH.Service)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "never", cfg.Output.Color)
}

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".enroll.yaml")

	// Minimal config: untouched sections keep their defaults.
	content := `
version: 1
inventory:
  file: hosts.yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ansible", cfg.Admin.Username)
	assert.Equal(t, 5*time.Second, cfg.SSH.ProbeTimeout)
	assert.Equal(t, "sshd", cfg.SSH.Service)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestFindExplicit(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1\n"), 0644))

	found, err := Find(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)

	_, err = Find(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
