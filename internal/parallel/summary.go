package parallel

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/enrollkit/enroll/internal/provision"
	"github.com/enrollkit/enroll/internal/ui"
)

// SummaryConfig holds configuration for rendering the summary.
type SummaryConfig struct {
	// Verbose shows every step for every host, not just failures.
	Verbose bool
}

// RenderSummary prints a formatted summary of the run to stdout.
func RenderSummary(result *Result, verbose bool) {
	RenderSummaryTo(os.Stdout, result, SummaryConfig{Verbose: verbose})
}

// RenderSummaryTo prints a formatted summary to the specified writer.
func RenderSummaryTo(w io.Writer, result *Result, cfg SummaryConfig) {
	if result == nil {
		return
	}

	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	warnStyle := lipgloss.NewStyle().Foreground(ui.ColorWarning)
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	headerStyle := lipgloss.NewStyle().Foreground(ui.ColorSecondary).Bold(true)

	divider := mutedStyle.Render(strings.Repeat("─", 60))

	fmt.Fprintln(w)
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Provisioning Summary"))
	fmt.Fprintln(w)

	// Sort reports by host name for consistent output
	reports := make([]*provision.Report, len(result.Reports))
	copy(reports, result.Reports)
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Host.Name < reports[j].Host.Name
	})

	for _, rep := range reports {
		symbol := ui.SymbolSuccess
		style := successStyle
		switch {
		case rep.Failed():
			symbol = ui.SymbolFail
			style = errorStyle
		case rep.State != provision.Hardened:
			symbol = ui.SymbolSkipped
			style = warnStyle
		}

		// Host line: [symbol] host-name state (changed, duration)
		fmt.Fprintf(w, "  %s %s %s %s\n",
			style.Render(symbol),
			rep.Host.Name,
			style.Render(rep.State.String()),
			mutedStyle.Render(fmt.Sprintf("(%d changed, %s)", rep.Changed(), ui.FormatDuration(rep.Duration))),
		)

		renderSteps(w, rep, cfg.Verbose, successStyle, errorStyle, mutedStyle)
	}

	fmt.Fprintln(w)

	hardenedStyle := successStyle
	if result.Hardened == 0 {
		hardenedStyle = mutedStyle
	}
	failedStyle := mutedStyle
	if result.Failed > 0 {
		failedStyle = errorStyle
	}
	unreachedStyle := mutedStyle
	if result.Unreached > 0 {
		unreachedStyle = warnStyle
	}

	fmt.Fprintf(w, "  %s %d hardened  %s %d unreached  %s %d failed  %s %d skipped  %s\n",
		hardenedStyle.Render(ui.SymbolSuccess),
		result.Hardened,
		unreachedStyle.Render(ui.SymbolPending),
		result.Unreached,
		failedStyle.Render(ui.SymbolFail),
		result.Failed,
		mutedStyle.Render(ui.SymbolSkipped),
		result.Skipped,
		mutedStyle.Render(fmt.Sprintf("(%s)", ui.FormatDuration(result.Duration))),
	)

	fmt.Fprintln(w)

	// Actionable pointer for failures
	if result.Failed > 0 {
		fmt.Fprintln(w, headerStyle.Render("Retry Failed Hosts:"))
		fmt.Fprintln(w)
		for _, rep := range reports {
			if rep.Failed() {
				fmt.Fprintf(w, "  %s enroll apply --limit %s\n",
					mutedStyle.Render("$"),
					rep.Host.Name,
				)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, divider)
}

// renderSteps shows per-step detail: all steps in verbose mode, only
// the failing step otherwise.
func renderSteps(w io.Writer, rep *provision.Report, verbose bool, successStyle, errorStyle, mutedStyle lipgloss.Style) {
	for _, res := range rep.Results {
		switch {
		case verbose:
			symbol := mutedStyle.Render(ui.SymbolSkipped)
			if res.Status == provision.Succeeded {
				symbol = successStyle.Render(ui.SymbolSuccess)
			} else if res.Status == provision.StepFailed {
				symbol = errorStyle.Render(ui.SymbolFail)
			}
			line := fmt.Sprintf("    %s %s", symbol, res.Name)
			if res.Changed {
				line += mutedStyle.Render(" (changed)")
			}
			if res.Message != "" {
				line += mutedStyle.Render(" " + res.Message)
			}
			fmt.Fprintln(w, line)
		case res.Status == provision.StepFailed && res.Err != nil:
			fmt.Fprintf(w, "    %s %s\n", errorStyle.Render(res.Name+":"), firstLine(res.Err.Error()))
		}
	}
}

// FormatBriefSummary returns a one-line summary string.
func FormatBriefSummary(result *Result) string {
	if result == nil {
		return "No results"
	}

	total := len(result.Reports)
	if result.Failed == 0 && result.Unreached == 0 {
		return fmt.Sprintf("%d/%d hosts hardened (%s)",
			result.Hardened, total, ui.FormatDuration(result.Duration))
	}

	return fmt.Sprintf("%d hardened, %d unreached, %d failed of %d hosts (%s)",
		result.Hardened, result.Unreached, result.Failed, total, ui.FormatDuration(result.Duration))
}

// firstLine trims a multi-line error down to its headline.
func firstLine(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "✗"))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
