package parallel

import (
	"context"
	"sync"
	"time"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/provision"
)

// Runner executes the provisioning sequence for one host. Satisfied by
// *provision.Sequencer; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, host inventory.Host) *provision.Report
}

// Orchestrator coordinates parallel provisioning across hosts.
type Orchestrator struct {
	runner Runner
	hosts  []inventory.Host
	config Config

	results   []*provision.Report
	resultsMu sync.Mutex
}

// NewOrchestrator creates an orchestrator for the given hosts.
func NewOrchestrator(runner Runner, hosts []inventory.Host, cfg Config) *Orchestrator {
	return &Orchestrator{
		runner:  runner,
		hosts:   hosts,
		config:  cfg,
		results: make([]*provision.Report, 0, len(hosts)),
	}
}

// Run provisions all hosts. Each worker pulls hosts from a shared queue
// and runs the full sequence against them. Cancelling the context stops
// new hosts from being picked up; hosts already mid-sequence run to
// their safe stopping point inside the sequencer.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if len(o.hosts) == 0 {
		return nil, errors.New(errors.ErrInventory,
			"No hosts to provision",
			"Check the inventory source in .enroll.yaml, or the --limit filter")
	}

	startTime := time.Now()

	hostQueue := make(chan inventory.Host, len(o.hosts))
	for _, h := range o.hosts {
		hostQueue <- h
	}
	close(hostQueue)

	numWorkers := len(o.hosts)
	if o.config.MaxParallel > 0 && o.config.MaxParallel < numWorkers {
		numWorkers = o.config.MaxParallel
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx, hostQueue)
		}()
	}
	wg.Wait()

	return o.buildResult(time.Since(startTime)), nil
}

// worker drains the host queue. A cancelled context stops it from
// starting new hosts; the in-flight host's own sequence decides where
// it is safe to stop.
func (o *Orchestrator) worker(ctx context.Context, hostQueue <-chan inventory.Host) {
	for host := range hostQueue {
		select {
		case <-ctx.Done():
			o.collect(skippedReport(host))
			continue
		default:
		}

		o.collect(o.runner.Run(ctx, host))
	}
}

func (o *Orchestrator) collect(report *provision.Report) {
	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	o.results = append(o.results, report)
}

// skippedReport records a host the run never started.
func skippedReport(host inventory.Host) *provision.Report {
	return &provision.Report{
		Host:  host,
		State: provision.Unreached,
		Results: []provision.StepResult{
			{Name: provision.StepProbe, Status: provision.Skipped, Message: "run cancelled"},
		},
	}
}

func (o *Orchestrator) buildResult(duration time.Duration) *Result {
	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()

	result := &Result{
		Reports:  o.results,
		Duration: duration,
	}

	for _, rep := range o.results {
		switch {
		case rep.State == provision.Hardened:
			result.Hardened++
		case rep.Failed():
			result.Failed++
		case rep.Unreached() && !wasCancelled(rep):
			result.Unreached++
		default:
			// Cancelled before the probe, or stopped at a safe point
			// mid-sequence.
			result.Skipped++
		}
	}

	return result
}

func wasCancelled(rep *provision.Report) bool {
	for _, res := range rep.Results {
		if res.Name == provision.StepProbe {
			return res.Status == provision.Skipped
		}
	}
	return false
}
