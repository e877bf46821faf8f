package ui

import "github.com/charmbracelet/lipgloss"

// HostTableRow is one line of the inventory listing.
type HostTableRow struct {
	Name    string
	Addr    string
	User    string // created account, or "-" when the operator identity applies
	Source  string // vars worth surfacing (deployment run etc.)
	Reached string // "", "ok", or an error summary when probed
}

// RenderHostTable renders the resolved inventory as a formatted table.
// Reached column only appears when at least one row was probed.
func RenderHostTable(rows []HostTableRow) string {
	if len(rows) == 0 {
		return "No hosts in inventory"
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)

	probed := false
	for _, row := range rows {
		if row.Reached != "" {
			probed = true
			break
		}
	}

	header := "  " + padRight("HOST", 20) + padRight("ADDR", 18) + padRight("USER", 12) + "SOURCE"
	if probed {
		header = "  " + padRight("", 2) + padRight("HOST", 20) + padRight("ADDR", 18) + padRight("USER", 12) + "SOURCE"
	}

	output := headerStyle.Render(header) + "\n"

	for _, row := range rows {
		line := "  "
		if probed {
			switch row.Reached {
			case "ok":
				line += successStyle.Render(SymbolComplete) + " "
			case "":
				line += mutedStyle.Render(SymbolPending) + " "
			default:
				line += errorStyle.Render(SymbolFail) + " "
			}
		}
		line += padRight(row.Name, 20)
		line += mutedStyle.Render(padRight(orDash(row.Addr), 18))
		line += padRight(orDash(row.User), 12)
		line += mutedStyle.Render(orDash(row.Source))
		output += line + "\n"

		if probed && row.Reached != "" && row.Reached != "ok" {
			output += "      " + errorStyle.Render(row.Reached) + "\n"
		}
	}

	return output
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// padRight pads a string to the specified width.
func padRight(s string, width int) string {
	// Account for ANSI codes when calculating visible length
	visibleLen := lipgloss.Width(s)
	for visibleLen < width {
		s += " "
		visibleLen++
	}
	return s
}
