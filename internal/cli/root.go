// Package cli wires the enroll commands together.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/enrollkit/enroll/internal/config"
)

// Persistent flags shared by all commands.
var (
	configFlag string
	colorFlag  string
)

// rootCmd is the base command for enroll.
var rootCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Turn freshly created hosts into managed nodes",
	Long: `enroll provisions newly created hosts for management: it probes each
host with its recorded credentials, creates the admin account, installs
your SSH key as the account's only authorized key, disables password
authentication for it, and registers the PAM SSH-agent helper so sudo
works off your forwarded agent.

Hosts come from a YAML inventory file or the CONS3RT deployment API.

Examples:
  enroll init                 # create .enroll.yaml
  enroll doctor               # check the local setup
  enroll hosts                # show the resolved inventory
  enroll probe                # check which hosts answer
  enroll apply                # provision everything
  enroll apply --limit web-01 # provision one host`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		applyColorMode(colorFlag)
	},
}

// Execute runs the root command. Errors are already formatted by the
// structured error type; print them and exit non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyColorMode forces or disables color rendering. "auto" leaves the
// terminal detection alone.
func applyColorMode(mode string) {
	switch mode {
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	case "always":
		lipgloss.SetColorProfile(termenv.ANSI256)
	}
}

// loadConfig finds, loads, and validates the config for a command run.
func loadConfig() (*config.Config, error) {
	path, err := config.Find(configFlag)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, configNotFound()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// Overlay the color config unless the flag already decided.
	if colorFlag == "auto" && cfg.Output.Color != "" {
		applyColorMode(cfg.Output.Color)
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: search for .enroll.yaml)")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto", "Color output: auto, always, or never")
}
