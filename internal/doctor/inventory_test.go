package doctor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollkit/enroll/internal/config"
)

func TestNewInventoryChecks_NilConfig(t *testing.T) {
	assert.Nil(t, NewInventoryChecks(nil))
}

func TestNewInventoryChecks_FileSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Inventory.File = "hosts.yaml"

	checks := NewInventoryChecks(cfg)

	require.Len(t, checks, 1)
	assert.Equal(t, "inventory_file", checks[0].Name())
}

func TestNewInventoryChecks_Cons3rtWithCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Inventory.Cons3rt.URL = "https://api.example.io/rest"
	cfg.Inventory.Cons3rt.TokenEnv = "CONS3RT_TOKEN"
	cfg.Inventory.Cons3rt.CacheFile = "cache.json"

	checks := NewInventoryChecks(cfg)

	require.Len(t, checks, 2)
	assert.Equal(t, "cons3rt_token", checks[0].Name())
	assert.Equal(t, "cons3rt_cache", checks[1].Name())
}

func TestInventoryFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts: []\n"), 0644))

	assert.Equal(t, StatusPass, (&inventoryFileCheck{path: path}).Run().Status)
	assert.Equal(t, StatusFail, (&inventoryFileCheck{path: filepath.Join(dir, "nope.yaml")}).Run().Status)
	assert.Equal(t, StatusFail, (&inventoryFileCheck{path: dir}).Run().Status, "directory is not a file")
}

func TestCons3rtTokenCheck(t *testing.T) {
	t.Setenv("ENROLL_DOCTOR_TOKEN", "tok")
	assert.Equal(t, StatusPass, (&cons3rtTokenCheck{tokenEnv: "ENROLL_DOCTOR_TOKEN"}).Run().Status)

	os.Unsetenv("ENROLL_DOCTOR_UNSET")
	result := (&cons3rtTokenCheck{tokenEnv: "ENROLL_DOCTOR_UNSET"}).Run()
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Suggestion, "ENROLL_DOCTOR_UNSET")

	assert.Equal(t, StatusFail, (&cons3rtTokenCheck{}).Run().Status)
}

func TestCons3rtCacheCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	result := (&cons3rtCacheCheck{path: path, ttl: time.Minute}).Run()
	assert.Equal(t, StatusWarn, result.Status, "missing cache is a warning")

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))
	result = (&cons3rtCacheCheck{path: path, ttl: time.Hour}).Run()
	assert.Equal(t, StatusPass, result.Status, "fresh cache passes")

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, stale, stale))
	result = (&cons3rtCacheCheck{path: path, ttl: time.Hour}).Run()
	assert.Equal(t, StatusWarn, result.Status, "stale cache is a warning")
	assert.Contains(t, result.Suggestion, "--refresh")
}
