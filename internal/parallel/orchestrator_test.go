package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/provision"
)

// fakeRunner produces canned reports and records concurrency.
type fakeRunner struct {
	mu         sync.Mutex
	running    int
	maxRunning int
	calls      atomic.Int32
	delay      time.Duration
	report     func(host inventory.Host) *provision.Report
}

func (f *fakeRunner) Run(_ context.Context, host inventory.Host) *provision.Report {
	f.calls.Add(1)
	f.mu.Lock()
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if f.report != nil {
		return f.report(host)
	}
	return &provision.Report{Host: host, State: provision.Hardened}
}

func hosts(names ...string) []inventory.Host {
	out := make([]inventory.Host, len(names))
	for i, n := range names {
		out[i] = inventory.Host{Name: n}
	}
	return out
}

func TestOrchestratorRunsAllHosts(t *testing.T) {
	runner := &fakeRunner{}
	o := NewOrchestrator(runner, hosts("a", "b", "c"), Config{})

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(3), runner.calls.Load())
	assert.Equal(t, 3, result.Hardened)
	assert.True(t, result.Success())
	assert.Len(t, result.Reports, 3)
	assert.NotNil(t, result.Report("b"))
	assert.Nil(t, result.Report("zzz"))
}

func TestOrchestratorBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	o := NewOrchestrator(runner, hosts("a", "b", "c", "d", "e", "f"), Config{MaxParallel: 2})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(6), runner.calls.Load())
	assert.LessOrEqual(t, runner.maxRunning, 2)
}

func TestOrchestratorNoHosts(t *testing.T) {
	o := NewOrchestrator(&fakeRunner{}, nil, Config{})

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInventory))
}

func TestOrchestratorCancellationStopsNewHosts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := &fakeRunner{delay: 30 * time.Millisecond}
	started := make(chan struct{}, 1)
	runner.report = func(host inventory.Host) *provision.Report {
		select {
		case started <- struct{}{}:
		default:
		}
		return &provision.Report{Host: host, State: provision.Hardened}
	}

	o := NewOrchestrator(runner, hosts("a", "b", "c", "d"), Config{MaxParallel: 1})

	go func() {
		<-started
		cancel()
	}()

	result, err := o.Run(ctx)
	require.NoError(t, err)

	// The in-flight host finished; the queued ones were skipped.
	assert.Len(t, result.Reports, 4)
	assert.GreaterOrEqual(t, result.Skipped, 2)
	assert.LessOrEqual(t, int(runner.calls.Load()), 2)

	for _, rep := range result.Reports {
		if len(rep.Results) == 1 {
			assert.Equal(t, "run cancelled", rep.Results[0].Message)
		}
	}
}

func TestOrchestratorCountsOutcomes(t *testing.T) {
	failedReport := func(host inventory.Host) *provision.Report {
		switch host.Name {
		case "good":
			return &provision.Report{Host: host, State: provision.Hardened}
		case "down":
			return &provision.Report{Host: host, State: provision.Unreached,
				Results: []provision.StepResult{
					{Name: provision.StepProbe, Status: provision.StepFailed, Err: errors.New(errors.ErrSSH, "unreachable", "")},
				}}
		default:
			return &provision.Report{Host: host, State: provision.Failed,
				Results: []provision.StepResult{
					{Name: provision.StepCreateUser, Status: provision.StepFailed, Err: errors.New(errors.ErrProvision, "useradd failed", "")},
				}}
		}
	}

	o := NewOrchestrator(&fakeRunner{report: failedReport}, hosts("good", "down", "bad"), Config{})
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Hardened)
	assert.Equal(t, 1, result.Unreached)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Success())
}
