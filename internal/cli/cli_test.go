package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/inventory"
)

func TestLimitHosts_NoFilter(t *testing.T) {
	hosts := []inventory.Host{{Name: "web-01"}, {Name: "db-01"}}

	out, err := limitHosts(hosts, nil)

	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLimitHosts_FiltersByName(t *testing.T) {
	hosts := []inventory.Host{{Name: "web-01"}, {Name: "db-01"}, {Name: "cache-01"}}

	out, err := limitHosts(hosts, []string{"db-01", "web-01"})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "db-01", out[0].Name)
	assert.Equal(t, "web-01", out[1].Name)
}

func TestLimitHosts_UnknownNameIsError(t *testing.T) {
	hosts := []inventory.Host{{Name: "web-01"}}

	_, err := limitHosts(hosts, []string{"web-01", "web-99"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "web-99")
}

func TestResolveSource_FileInventory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Inventory.File = "hosts.yaml"

	src, err := resolveSource(cfg, false)

	require.NoError(t, err)
	assert.IsType(t, &inventory.FileSource{}, src)
}

func TestResolveSource_Cons3rtRequiresToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Inventory.Cons3rt.URL = "https://api.example.io/rest"
	cfg.Inventory.Cons3rt.TokenEnv = "ENROLL_TEST_TOKEN"
	os.Unsetenv("ENROLL_TEST_TOKEN")

	_, err := resolveSource(cfg, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENROLL_TEST_TOKEN")
}

func TestResolveSource_Cons3rtWithCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Inventory.Cons3rt.URL = "https://api.example.io/rest"
	cfg.Inventory.Cons3rt.TokenEnv = "ENROLL_TEST_TOKEN"
	cfg.Inventory.Cons3rt.CacheFile = filepath.Join(t.TempDir(), "cache.json")
	cfg.Inventory.Cons3rt.CacheTTL = 10 * time.Minute
	t.Setenv("ENROLL_TEST_TOKEN", "tok")

	src, err := resolveSource(cfg, true)

	require.NoError(t, err)
	cached, ok := src.(*inventory.CachedSource)
	require.True(t, ok)
	assert.True(t, cached.Refresh)
}

func TestHostRow(t *testing.T) {
	h := inventory.Host{
		Name:            "web-01",
		Addr:            "10.0.0.5",
		CreatedUsername: "tmpuser",
		Vars:            map[string]string{"cons3rt_dr_name": "staging"},
	}

	row := hostRow(h)

	assert.Equal(t, "web-01", row.Name)
	assert.Equal(t, "10.0.0.5", row.Addr)
	assert.Equal(t, "tmpuser", row.User)
	assert.Equal(t, "staging", row.Source)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "dial failed", firstLine("dial failed\n\nSuggestion: retry"))
	assert.Equal(t, "plain", firstLine("plain"))
	assert.Equal(t, "", firstLine(""))
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "v1.2.3", formatVersion("v1.2.3"))
	assert.Equal(t, "", formatVersion(""))
}

func TestInitCommand_NonInteractive(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd) //nolint:errcheck // Test cleanup

	err = initCommand(InitOptions{
		NonInteractive: true,
		AdminUser:      "ops",
		KeyFile:        "~/.ssh/id_ed25519.pub",
		InventoryFile:  "hosts.yaml",
	})
	require.NoError(t, err)

	cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Admin.Username)
	assert.Equal(t, "hosts.yaml", cfg.Inventory.File)
	assert.Equal(t, 5*time.Second, cfg.SSH.ProbeTimeout)
	require.NoError(t, config.Validate(cfg))
}

func TestInitCommand_NonInteractiveRequiresInventory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd) //nolint:errcheck // Test cleanup

	err = initCommand(InitOptions{NonInteractive: true})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Inventory file is required")
}

func TestInitCommand_ExistingConfigWithoutForce(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd) //nolint:errcheck // Test cleanup

	require.NoError(t, os.WriteFile(config.ConfigFileName, []byte("version: 1\n"), 0644))

	err = initCommand(InitOptions{NonInteractive: true, InventoryFile: "hosts.yaml"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitCommand_ForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd) //nolint:errcheck // Test cleanup

	require.NoError(t, os.WriteFile(config.ConfigFileName, []byte("version: 1\n"), 0644))

	err = initCommand(InitOptions{
		Force:          true,
		NonInteractive: true,
		InventoryFile:  "hosts.yaml",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(config.ConfigFileName)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hosts.yaml")
}

func TestLoadPublicKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519.pub")
	require.NoError(t, os.WriteFile(keyPath, []byte("ssh-ed25519 AAAAC3 ops@laptop\n"), 0600))

	key, err := loadPublicKey(keyPath)

	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAAC3 ops@laptop", key)
}

func TestLoadPublicKey_Missing(t *testing.T) {
	_, err := loadPublicKey(filepath.Join(t.TempDir(), "nope.pub"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key")
}
