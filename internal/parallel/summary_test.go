package parallel

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/provision"
)

func sampleResult() *Result {
	return &Result{
		Reports: []*provision.Report{
			{
				Host:  inventory.Host{Name: "web-01"},
				State: provision.Hardened,
				Results: []provision.StepResult{
					{Name: provision.StepProbe, Status: provision.Succeeded},
					{Name: provision.StepCreateUser, Status: provision.Succeeded, Changed: true},
				},
				Duration: 1200 * time.Millisecond,
			},
			{
				Host:  inventory.Host{Name: "db-01"},
				State: provision.Failed,
				Results: []provision.StepResult{
					{Name: provision.StepProbe, Status: provision.Succeeded},
					{Name: provision.StepCreateUser, Status: provision.StepFailed,
						Err: errors.New(errors.ErrProvision, "useradd failed", "")},
				},
				Duration: 300 * time.Millisecond,
			},
		},
		Duration: 2 * time.Second,
		Hardened: 1,
		Failed:   1,
	}
}

func TestRenderSummaryTo(t *testing.T) {
	var sb strings.Builder
	RenderSummaryTo(&sb, sampleResult(), SummaryConfig{})
	out := sb.String()

	require.Contains(t, out, "Provisioning Summary")
	// Hosts sorted by name: db-01 before web-01.
	assert.Less(t, strings.Index(out, "db-01"), strings.Index(out, "web-01"))
	assert.Contains(t, out, "hardened")
	assert.Contains(t, out, "1 failed")

	// The failing step's error shows without verbose.
	assert.Contains(t, out, "create-user:")
	assert.Contains(t, out, "useradd failed")

	// Retry hint names only the failed host.
	assert.Contains(t, out, "enroll apply --limit db-01")
	assert.NotContains(t, out, "--limit web-01")
}

func TestRenderSummaryVerboseShowsAllSteps(t *testing.T) {
	var sb strings.Builder
	RenderSummaryTo(&sb, sampleResult(), SummaryConfig{Verbose: true})
	out := sb.String()

	assert.Contains(t, out, provision.StepProbe)
	assert.Contains(t, out, "(changed)")
}

func TestRenderSummaryNilResult(t *testing.T) {
	var sb strings.Builder
	RenderSummaryTo(&sb, nil, SummaryConfig{})
	assert.Empty(t, sb.String())
}

func TestFormatBriefSummary(t *testing.T) {
	assert.Equal(t, "No results", FormatBriefSummary(nil))

	ok := &Result{Reports: make([]*provision.Report, 3), Hardened: 3, Duration: time.Second}
	assert.Equal(t, "3/3 hosts hardened (1.0s)", FormatBriefSummary(ok))

	mixed := sampleResult()
	got := FormatBriefSummary(mixed)
	assert.Contains(t, got, "1 hardened")
	assert.Contains(t, got, "1 failed")
}
