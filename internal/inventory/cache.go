package inventory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/enrollkit/enroll/internal/logger"
	"github.com/enrollkit/enroll/internal/util"
)

// cacheDocument is the on-disk cache shape: the fetch time plus the
// resolved hosts.
type cacheDocument struct {
	FetchedAt time.Time `json:"fetched_at"`
	Hosts     []Host    `json:"hosts"`
}

// CachedSource wraps an inventory source with a JSON file cache. A
// cache entry younger than TTL is served without hitting the source;
// Refresh forces a fetch regardless.
type CachedSource struct {
	Source  Source
	Path    string
	TTL     time.Duration
	Refresh bool

	Log logger.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewCachedSource wraps src with a file cache at path. A leading ~ in
// the path is expanded.
func NewCachedSource(src Source, path string, ttl time.Duration) *CachedSource {
	return &CachedSource{
		Source: src,
		Path:   util.ExpandUser(path),
		TTL:    ttl,
		Log:    logger.NewEnvLogger("[inventory]"),
		now:    time.Now,
	}
}

// Hosts returns cached hosts when the cache is fresh, otherwise fetches
// from the wrapped source and rewrites the cache. Cache write failures
// are logged, not fatal: the fetched result is still returned.
func (c *CachedSource) Hosts(ctx context.Context) ([]Host, error) {
	if !c.Refresh {
		if hosts, ok := c.load(); ok {
			c.log().Debug("serving %d hosts from cache %s", len(hosts), c.Path)
			return hosts, nil
		}
	}

	hosts, err := c.Source.Hosts(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.save(hosts); err != nil {
		c.log().Warn("cannot write inventory cache %s: %v", c.Path, err)
	}
	return hosts, nil
}

func (c *CachedSource) load() ([]Host, bool) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, false
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}

	if c.clock()().Sub(doc.FetchedAt) > c.TTL {
		return nil, false
	}
	return doc.Hosts, true
}

func (c *CachedSource) save(hosts []Host) error {
	doc := cacheDocument{FetchedAt: c.clock()(), Hosts: hosts}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return err
	}

	// Write-then-rename so a concurrent reader never sees a partial file.
	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, c.Path)
}

func (c *CachedSource) clock() func() time.Time {
	if c.now == nil {
		return time.Now
	}
	return c.now
}

func (c *CachedSource) log() logger.Logger {
	if c.Log == nil {
		return logger.Noop()
	}
	return c.Log
}
