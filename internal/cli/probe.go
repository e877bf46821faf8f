package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/ui"
	"github.com/enrollkit/enroll/pkg/sshutil"
)

// probeCommand dials every inventory host and reports which answer.
// Read-only: nothing on the hosts is changed.
func probeCommand(cmd *cobra.Command, limit []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	hosts, err := loadHosts(ctx, cfg, false, limit)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Probing %d host(s)", len(hosts)))
	spinner.Start()

	results := probeHosts(ctx, cfg, hosts)

	unreachedCount := 0
	for _, r := range results {
		if r != "ok" {
			unreachedCount++
		}
	}
	if unreachedCount == 0 {
		spinner.Success()
	} else {
		spinner.Fail()
	}
	fmt.Println()

	rows := make([]ui.HostTableRow, len(hosts))
	for i, h := range hosts {
		rows[i] = hostRow(h)
		rows[i].Reached = results[i]
	}

	fmt.Print(ui.RenderHostTable(rows))

	if unreachedCount > 0 {
		return errors.New(errors.ErrSSH,
			fmt.Sprintf("%d of %d host(s) unreachable", unreachedCount, len(hosts)),
			"Fresh deployments can take a few minutes to accept SSH; try again shortly")
	}
	fmt.Printf("\n%s All %d host(s) reachable\n", ui.SymbolSuccess, len(hosts))
	return nil
}

// probeHosts dials hosts in parallel and returns per-host outcomes,
// "ok" or a one-line error, indexed like the input.
func probeHosts(ctx context.Context, cfg *config.Config, hosts []inventory.Host) []string {
	maxParallel := cfg.Concurrency
	if maxParallel <= 0 {
		maxParallel = 1
	}

	results := make([]string, len(hosts))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h inventory.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[i] = "cancelled"
				return
			}

			creds := inventory.DeriveCredentials(h)
			client, err := sshutil.Dial(h.Target(), sshutil.Options{
				User:     creds.User,
				Password: creds.Password,
				Timeout:  cfg.SSH.ProbeTimeout,
			})
			if err != nil {
				results[i] = firstLine(err.Error())
				return
			}
			defer client.Close() //nolint:errcheck // Probe connection, error not actionable
			results[i] = "ok"
		}(i, h)
	}

	wg.Wait()
	return results
}

// hostRow maps an inventory host onto a table row.
func hostRow(h inventory.Host) ui.HostTableRow {
	return ui.HostTableRow{
		Name:   h.Name,
		Addr:   h.Addr,
		User:   h.CreatedUsername,
		Source: h.Vars["cons3rt_dr_name"],
	}
}

// firstLine trims an error message to its first line for table output.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
