package provision

import (
	"fmt"
	"strings"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/util"
)

// packageManagers in probe order. apt-get first: Debian systems often
// ship a dnf-shaped compatibility shim, never the other way around.
var packageManagers = []string{"apt-get", "dnf", "yum", "zypper"}

// detectPackageManager probes the host for a known package manager.
func detectPackageManager(r *runner) (string, error) {
	for _, pm := range packageManagers {
		_, _, code, err := r.run("command -v " + pm)
		if err != nil {
			return "", errors.Wrap(err, "Package manager probe failed")
		}
		if code == 0 {
			return pm, nil
		}
	}
	return "", errors.New(errors.ErrProvision,
		fmt.Sprintf("No supported package manager found (tried %s)", strings.Join(packageManagers, ", ")),
		"Only apt-get, dnf, yum, and zypper hosts are supported")
}

// installCommand builds the non-interactive install invocation for the
// detected package manager.
func installCommand(pm, pkg string) string {
	switch pm {
	case "apt-get":
		return fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get install -y %s", util.ShellQuote(pkg))
	case "zypper":
		return fmt.Sprintf("zypper --non-interactive install %s", util.ShellQuote(pkg))
	default: // dnf, yum
		return fmt.Sprintf("%s install -y %s", pm, util.ShellQuote(pkg))
	}
}
