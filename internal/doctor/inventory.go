package doctor

import (
	"fmt"
	"os"
	"time"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/util"
)

// NewInventoryChecks returns checks for the configured inventory
// source. cfg may be nil when no config was loaded; no checks then.
func NewInventoryChecks(cfg *config.Config) []Check {
	if cfg == nil {
		return nil
	}

	if cfg.Inventory.File != "" {
		return []Check{&inventoryFileCheck{path: cfg.Inventory.File}}
	}

	checks := []Check{&cons3rtTokenCheck{tokenEnv: cfg.Inventory.Cons3rt.TokenEnv}}
	if cfg.Inventory.Cons3rt.CacheFile != "" {
		checks = append(checks, &cons3rtCacheCheck{
			path: cfg.Inventory.Cons3rt.CacheFile,
			ttl:  cfg.Inventory.Cons3rt.CacheTTL,
		})
	}
	return checks
}

// inventoryFileCheck verifies the static inventory file exists.
type inventoryFileCheck struct {
	path string
}

func (c *inventoryFileCheck) Name() string     { return "inventory_file" }
func (c *inventoryFileCheck) Category() string { return "INVENTORY" }

func (c *inventoryFileCheck) Run() CheckResult {
	expanded := util.ExpandUser(c.path)
	info, err := os.Stat(expanded)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Inventory file not found: " + c.path,
			Suggestion: "Create it, or fix inventory.file in the config",
		}
	}
	if info.IsDir() {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    c.path + " is a directory, not a file",
			Suggestion: "Point inventory.file at a hosts YAML file",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Inventory file found: " + c.path,
	}
}

// cons3rtTokenCheck verifies the API token environment variable is set.
type cons3rtTokenCheck struct {
	tokenEnv string
}

func (c *cons3rtTokenCheck) Name() string     { return "cons3rt_token" }
func (c *cons3rtTokenCheck) Category() string { return "INVENTORY" }

func (c *cons3rtTokenCheck) Run() CheckResult {
	if c.tokenEnv == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "No token environment variable configured",
			Suggestion: "Set inventory.cons3rt.token_env in the config",
		}
	}
	if os.Getenv(c.tokenEnv) == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    c.tokenEnv + " is not set",
			Suggestion: fmt.Sprintf("Export your project token: export %s=<token>", c.tokenEnv),
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: c.tokenEnv + " is set",
	}
}

// cons3rtCacheCheck reports whether the inventory cache is fresh.
// Stale or missing is a warning only; apply refetches as needed.
type cons3rtCacheCheck struct {
	path string
	ttl  time.Duration
}

func (c *cons3rtCacheCheck) Name() string     { return "cons3rt_cache" }
func (c *cons3rtCacheCheck) Category() string { return "INVENTORY" }

func (c *cons3rtCacheCheck) Run() CheckResult {
	info, err := os.Stat(util.ExpandUser(c.path))
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No inventory cache yet",
			Suggestion: "Run 'enroll hosts' to fetch and cache the inventory",
		}
	}

	age := time.Since(info.ModTime())
	if c.ttl > 0 && age > c.ttl {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    fmt.Sprintf("Inventory cache is stale (%s old)", age.Round(time.Minute)),
			Suggestion: "Run 'enroll hosts --refresh' to refetch",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Inventory cache is fresh (%s old)", age.Round(time.Second)),
	}
}
