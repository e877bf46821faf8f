package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/logger"
	"github.com/enrollkit/enroll/internal/parallel"
	"github.com/enrollkit/enroll/internal/provision"
	"github.com/enrollkit/enroll/internal/ui"
	"github.com/enrollkit/enroll/internal/util"
)

type applyOptions struct {
	limit        []string
	skipVerify   bool
	askPass      bool
	dryRun       bool
	concurrency  int
	probeTimeout time.Duration
	verbose      bool
}

// applyCommand provisions the inventory.
func applyCommand(cmd *cobra.Command, opts applyOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	publicKey, err := loadPublicKey(cfg.Admin.PublicKeyFile)
	if err != nil {
		return err
	}

	// Ctrl-C stops new hosts; in-flight hosts finish their safe window.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hosts, err := loadHosts(ctx, cfg, false, opts.limit)
	if err != nil {
		return err
	}

	settings := provision.NewSettings(cfg, publicKey)
	settings.SkipVerify = opts.skipVerify
	settings.DryRun = opts.dryRun
	if opts.probeTimeout > 0 {
		settings.ProbeTimeout = opts.probeTimeout
	}

	if opts.askPass {
		password, err := promptPassword(hosts)
		if err != nil {
			return err
		}
		settings.FallbackPassword = password
	}

	concurrency := cfg.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}

	if opts.dryRun {
		fmt.Printf("Dry run: probing %d host(s), nothing will change\n", len(hosts))
	} else {
		fmt.Printf("Provisioning %d host(s)...\n", len(hosts))
	}

	sequencer := provision.NewSequencer(settings, logger.NewEnvLogger("[provision]"))
	orchestrator := parallel.NewOrchestrator(sequencer, hosts, parallel.Config{MaxParallel: concurrency})

	result, err := orchestrator.Run(ctx)
	if err != nil {
		return err
	}

	parallel.RenderSummary(result, opts.verbose)

	if !result.Success() {
		return errors.New(errors.ErrProvision,
			fmt.Sprintf("%d host(s) failed", result.Failed),
			"See the summary above; retry failed hosts with --limit")
	}
	return nil
}

// loadPublicKey reads the operator's public key file.
func loadPublicKey(path string) (string, error) {
	expanded := util.ExpandUser(path)
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot read public key file: "+expanded,
			"Check admin.public_key_file in .enroll.yaml; generate a key with 'ssh-keygen -t ed25519'")
	}
	return strings.TrimSpace(string(data)), nil
}

// promptPassword asks for the shared password used on hosts with no
// recorded created account. Skipped when every host has one.
func promptPassword(hosts []inventory.Host) (string, error) {
	needed := false
	for _, h := range hosts {
		if h.CreatedUsername == "" {
			needed = true
			break
		}
	}
	if !needed {
		return "", nil
	}

	fmt.Printf("%s Password for hosts without recorded credentials: ", ui.SymbolPending)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot read password from terminal",
			"Run without --ask-pass, or run from an interactive terminal")
	}
	return string(raw), nil
}
