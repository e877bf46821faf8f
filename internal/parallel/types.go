// Package parallel fans the provisioning sequence out across the
// inventory: one worker per host, bounded by the configured
// concurrency, with no shared mutable state between hosts.
package parallel

import (
	"time"

	"github.com/enrollkit/enroll/internal/provision"
)

// Config holds configuration for the parallel run.
type Config struct {
	// MaxParallel caps concurrent host sequences (0 = one worker per host).
	MaxParallel int
}

// Result holds the aggregate outcome of a run across all hosts.
type Result struct {
	Reports  []*provision.Report // One per host, in completion order
	Duration time.Duration       // Total wall-clock time

	Hardened  int // Hosts that completed the full sequence
	Unreached int // Hosts that never answered the probe
	Failed    int // Hosts where a required step failed
	Skipped   int // Hosts never started (run cancelled)
}

// Success reports whether no host failed. Unreached hosts don't count
// as failures: a fresh deployment often has hosts that aren't up yet.
func (r *Result) Success() bool {
	return r.Failed == 0
}

// Report returns the report for a host name, or nil.
func (r *Result) Report(name string) *provision.Report {
	for _, rep := range r.Reports {
		if rep.Host.Name == name {
			return rep
		}
	}
	return nil
}
