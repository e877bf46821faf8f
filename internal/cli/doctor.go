package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/doctor"
	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/ui"
)

var doctorJSON bool

// doctorCmd diagnoses the local setup before a provisioning run.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the local setup",
	Long: `Check everything a provisioning run needs on this machine: the
config file, your public key, the SSH agent, and the inventory source.

Nothing remote is touched; use 'enroll probe' for host reachability.

Examples:
  enroll doctor
  enroll doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand()
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorOutput represents the JSON output for doctor command.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Summary    SummaryOutput    `json:"summary"`
}

// CategoryOutput represents a category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

// doctorCommand implements the doctor command logic.
func doctorCommand() error {
	// A missing or broken config is itself a finding, not an abort.
	cfgPath, err := config.Find(configFlag)
	if err != nil {
		cfgPath = ""
	}

	var cfg *config.Config
	if cfgPath != "" {
		cfg, _ = config.Load(cfgPath) //nolint:errcheck // Config checks report load errors
	}

	checks := collectChecks(cfgPath, cfg)
	results := doctor.RunAll(checks)

	if doctorJSON {
		if err := outputDoctorJSON(checks, results); err != nil {
			return err
		}
	} else {
		outputDoctorText(checks, results)
	}

	if doctor.HasFailures(results) {
		return errors.New(errors.ErrConfig,
			doctor.Summary(results),
			"Fix the failed checks above and run 'enroll doctor' again")
	}
	return nil
}

// collectChecks gathers all diagnostic checks for the current setup.
func collectChecks(cfgPath string, cfg *config.Config) []doctor.Check {
	var checks []doctor.Check

	checks = append(checks, doctor.NewConfigChecks(cfgPath)...)

	keyFile := ""
	if cfg != nil {
		keyFile = cfg.Admin.PublicKeyFile
	}
	checks = append(checks, doctor.NewSSHChecks(keyFile)...)
	checks = append(checks, doctor.NewInventoryChecks(cfg)...)

	return checks
}

// outputDoctorJSON outputs results in JSON format.
func outputDoctorJSON(checks []doctor.Check, results []doctor.CheckResult) error {
	grouped := make(map[string][]doctor.CheckResult)
	var categoryOrder []string

	for i, check := range checks {
		cat := check.Category()
		if _, exists := grouped[cat]; !exists {
			categoryOrder = append(categoryOrder, cat)
		}
		grouped[cat] = append(grouped[cat], results[i])
	}

	output := DoctorOutput{
		Categories: make([]CategoryOutput, 0, len(categoryOrder)),
	}
	for _, cat := range categoryOrder {
		output.Categories = append(output.Categories, CategoryOutput{
			Name:    cat,
			Results: grouped[cat],
		})
	}

	counts := doctor.CountByStatus(results)
	output.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		AllClear: !doctor.HasIssues(results),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// outputDoctorText outputs results in human-readable format.
func outputDoctorText(checks []doctor.Check, results []doctor.CheckResult) {
	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	warnStyle := lipgloss.NewStyle().Foreground(ui.ColorWarning)
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Println()
	fmt.Println(headerStyle.Render("Enroll Diagnostic Report"))
	fmt.Println()

	categoryOrder := []string{"CONFIG", "SSH", "INVENTORY"}
	grouped := make(map[string][]int)
	for i, check := range checks {
		grouped[check.Category()] = append(grouped[check.Category()], i)
	}

	for _, category := range categoryOrder {
		indices, ok := grouped[category]
		if !ok || len(indices) == 0 {
			continue
		}

		fmt.Println(headerStyle.Render(category))
		for _, idx := range indices {
			result := results[idx]

			var symbol string
			switch result.Status {
			case doctor.StatusPass:
				symbol = successStyle.Render(ui.SymbolSuccess)
			case doctor.StatusWarn:
				symbol = warnStyle.Render("!")
			default:
				symbol = errorStyle.Render(ui.SymbolFail)
			}

			fmt.Printf("  %s %s\n", symbol, firstLine(result.Message))
			if result.Suggestion != "" && result.Status != doctor.StatusPass {
				fmt.Printf("    %s\n", mutedStyle.Render(result.Suggestion))
			}
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("━", 60))
	fmt.Println()

	if doctor.HasIssues(results) {
		fmt.Printf("%s %s\n", errorStyle.Render(ui.SymbolFail), doctor.Summary(results))
	} else {
		fmt.Printf("%s %s\n", successStyle.Render(ui.SymbolSuccess), doctor.Summary(results))
	}
}
