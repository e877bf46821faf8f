package ui

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientColors(t *testing.T) {
	assert.Len(t, GradientColors, 4)
	for _, c := range GradientColors {
		assert.NotEmpty(t, string(c))
	}
}

func TestSpinnerLifecycle(t *testing.T) {
	var mu sync.Mutex
	var out strings.Builder

	s := NewSpinner("probing web-01")
	s.SetOutput(func(str string) {
		mu.Lock()
		out.WriteString(str)
		mu.Unlock()
	})

	assert.Equal(t, SpinnerPending, s.State())
	assert.Equal(t, "probing web-01", s.Label())

	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())
	time.Sleep(80 * time.Millisecond)
	s.Success()

	assert.Equal(t, SpinnerSuccess, s.State())
	assert.Positive(t, s.Elapsed())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, out.String(), "probing web-01")
	assert.Contains(t, out.String(), SymbolComplete)
}

func TestSpinnerFailAndSkip(t *testing.T) {
	for _, tt := range []struct {
		name   string
		finish func(*Spinner)
		state  SpinnerState
		symbol string
	}{
		{"fail", (*Spinner).Fail, SpinnerFailed, SymbolFail},
		{"skip", (*Spinner).Skip, SpinnerSkipped, SymbolSkipped},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var out strings.Builder
			s := NewSpinner("x")
			s.SetOutput(func(str string) {
				mu.Lock()
				out.WriteString(str)
				mu.Unlock()
			})
			s.Start()
			tt.finish(s)
			assert.Equal(t, tt.state, s.State())
			mu.Lock()
			defer mu.Unlock()
			assert.Contains(t, out.String(), tt.symbol)
		})
	}
}

func TestSpinnerDoubleStartIsSafe(t *testing.T) {
	s := NewSpinner("x")
	s.SetOutput(func(string) {})
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", FormatDuration(50*time.Millisecond))
	assert.Equal(t, "1.2s", FormatDuration(1200*time.Millisecond))
}

func TestRenderHostTable(t *testing.T) {
	out := RenderHostTable([]HostTableRow{
		{Name: "web-01", Addr: "10.0.0.5", User: "tmpuser", Source: "dr lab"},
		{Name: "db-01"},
	})

	require.Contains(t, out, "HOST")
	assert.Contains(t, out, "web-01")
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "tmpuser")
	assert.Contains(t, out, "db-01")
}

func TestRenderHostTableWithProbeResults(t *testing.T) {
	out := RenderHostTable([]HostTableRow{
		{Name: "web-01", Reached: "ok"},
		{Name: "db-01", Reached: "connection refused"},
	})

	assert.Contains(t, out, SymbolComplete)
	assert.Contains(t, out, SymbolFail)
	assert.Contains(t, out, "connection refused")
}

func TestRenderHostTableEmpty(t *testing.T) {
	assert.Equal(t, "No hosts in inventory", RenderHostTable(nil))
}
