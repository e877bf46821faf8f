package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
)

// configNotFound is the shared error for commands that need a config.
func configNotFound() error {
	return errors.New(errors.ErrConfig,
		"No .enroll.yaml found",
		"Run 'enroll init' to create one, or pass --config")
}

// resolveSource builds the inventory source from config. The CONS3RT
// source is wrapped in its file cache when one is configured.
func resolveSource(cfg *config.Config, refresh bool) (inventory.Source, error) {
	if cfg.Inventory.File != "" {
		return inventory.NewFileSource(cfg.Inventory.File), nil
	}

	c := cfg.Inventory.Cons3rt
	token := os.Getenv(c.TokenEnv)
	if token == "" {
		return nil, errors.New(errors.ErrInventory,
			fmt.Sprintf("CONS3RT token environment variable %s is empty", c.TokenEnv),
			fmt.Sprintf("Export your project token: export %s=<token>", c.TokenEnv))
	}

	src := inventory.NewCons3rtSource(c.URL, token)
	if c.CacheFile == "" {
		return src, nil
	}

	cached := inventory.NewCachedSource(src, c.CacheFile, c.CacheTTL)
	cached.Refresh = refresh
	return cached, nil
}

// loadHosts resolves the inventory and applies the --limit filter.
func loadHosts(ctx context.Context, cfg *config.Config, refresh bool, limit []string) ([]inventory.Host, error) {
	src, err := resolveSource(cfg, refresh)
	if err != nil {
		return nil, err
	}

	hosts, err := src.Hosts(ctx)
	if err != nil {
		return nil, err
	}

	return limitHosts(hosts, limit)
}

// limitHosts filters hosts by name. Unknown names in the filter are an
// error: a typo should never silently provision nothing.
func limitHosts(hosts []inventory.Host, limit []string) ([]inventory.Host, error) {
	if len(limit) == 0 {
		return hosts, nil
	}

	byName := make(map[string]inventory.Host, len(hosts))
	for _, h := range hosts {
		byName[h.Name] = h
	}

	out := make([]inventory.Host, 0, len(limit))
	var missing []string
	for _, name := range limit {
		if h, ok := byName[name]; ok {
			out = append(out, h)
		} else {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, errors.New(errors.ErrInventory,
			"Hosts in --limit not found in inventory: "+strings.Join(missing, ", "),
			"Run 'enroll hosts' to see the resolved inventory")
	}
	return out, nil
}
