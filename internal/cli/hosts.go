package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enrollkit/enroll/internal/ui"
)

// hostsCommand prints the resolved inventory.
func hostsCommand(cmd *cobra.Command, refresh bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hosts, err := loadHosts(cmd.Context(), cfg, refresh, nil)
	if err != nil {
		return err
	}

	rows := make([]ui.HostTableRow, len(hosts))
	for i, h := range hosts {
		rows[i] = hostRow(h)
	}

	fmt.Print(ui.RenderHostTable(rows))
	fmt.Printf("\n%d host(s)\n", len(hosts))
	return nil
}
