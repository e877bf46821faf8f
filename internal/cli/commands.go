package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	applyLimitFlag    []string
	applySkipVerify   bool
	applyAskPass      bool
	applyDryRun       bool
	applyConcurrency  int
	applyProbeTimeout time.Duration
	applyVerbose      bool

	probeLimitFlag []string

	hostsRefresh bool

	initForce          bool
	initNonInteractive bool
	initAdminUser      string
	initKeyFile        string
	initInventoryFile  string
)

// applyCmd runs the full provisioning sequence across the inventory.
var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Provision all inventory hosts",
	Long: `Run the full provisioning sequence against every host in the
inventory: probe, create the admin account, install your key, disable
password auth, register the PAM agent helper, and restart sshd.

Hosts run in parallel, each through its own strictly ordered sequence.
Unreachable hosts are reported and skipped; they don't fail the run.

Examples:
  enroll apply
  enroll apply --limit web-01 --limit db-01
  enroll apply --dry-run
  enroll apply --skip-verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyCommand(cmd, applyOptions{
			limit:        applyLimitFlag,
			skipVerify:   applySkipVerify,
			askPass:      applyAskPass,
			dryRun:       applyDryRun,
			concurrency:  applyConcurrency,
			probeTimeout: applyProbeTimeout,
			verbose:      applyVerbose,
		})
	},
}

// probeCmd checks reachability without changing anything.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check which inventory hosts answer",
	Long: `Dial every inventory host with its derived credentials and report
which ones answer. Nothing on the hosts is changed.

Examples:
  enroll probe
  enroll probe --limit web-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return probeCommand(cmd, probeLimitFlag)
	},
}

// hostsCmd lists the resolved inventory.
var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List the resolved inventory",
	Long: `Resolve and print the inventory from the configured source.

With a CONS3RT source the cached result is used when fresh; --refresh
forces an API fetch.

Examples:
  enroll hosts
  enroll hosts --refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostsCommand(cmd, hostsRefresh)
	},
}

// initCmd creates a new .enroll.yaml configuration.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .enroll.yaml configuration",
	Long: `Initialize a new enroll configuration file in the current directory.

Prompts for the admin account, your public key, and the inventory
source. Use the flags with --non-interactive for scripted setup.

Examples:
  enroll init
  enroll init --force
  enroll init --non-interactive --inventory-file hosts.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(InitOptions{
			Force:          initForce,
			NonInteractive: initNonInteractive,
			AdminUser:      initAdminUser,
			KeyFile:        initKeyFile,
			InventoryFile:  initInventoryFile,
		})
	},
}

func init() {
	applyCmd.Flags().StringArrayVar(&applyLimitFlag, "limit", nil, "Only provision the named hosts (repeatable)")
	applyCmd.Flags().BoolVar(&applySkipVerify, "skip-verify", false, "Skip the key verification probes around the sshd restart")
	applyCmd.Flags().BoolVar(&applyAskPass, "ask-pass", false, "Prompt for a password for hosts with no recorded credentials")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Probe hosts and show what would run without changing anything")
	applyCmd.Flags().IntVar(&applyConcurrency, "concurrency", 0, "Max hosts provisioned at once (overrides config)")
	applyCmd.Flags().DurationVar(&applyProbeTimeout, "probe-timeout", 0, "Per-attempt connection timeout (overrides config)")
	applyCmd.Flags().BoolVarP(&applyVerbose, "verbose", "v", false, "Show every step for every host in the summary")

	probeCmd.Flags().StringArrayVar(&probeLimitFlag, "limit", nil, "Only probe the named hosts (repeatable)")

	hostsCmd.Flags().BoolVar(&hostsRefresh, "refresh", false, "Bypass the inventory cache")

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "Skip prompts and use flags/defaults")
	initCmd.Flags().StringVar(&initAdminUser, "admin-user", "", "Admin account name (non-interactive)")
	initCmd.Flags().StringVar(&initKeyFile, "key-file", "", "Operator public key file (non-interactive)")
	initCmd.Flags().StringVar(&initInventoryFile, "inventory-file", "", "Static inventory file path (non-interactive)")

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(initCmd)
}
