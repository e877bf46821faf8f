package provision

import (
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/logger"
	"github.com/enrollkit/enroll/pkg/sshutil"
)

// HostContext carries everything the steps on one host share: the
// connection, the derived credentials, gathered facts, and the state
// machine position. It is owned by a single worker and never shared
// across hosts.
type HostContext struct {
	Host  inventory.Host
	Creds inventory.Credentials

	// Client is the live connection established by the probe. Nil until
	// the probe succeeds.
	Client sshutil.SSHClient

	// State is the host's position in the provisioning state machine.
	State State

	// Facts are best-effort observations (kernel, hostname, package
	// manager). Missing keys are normal.
	Facts map[string]string

	// Results accumulates one entry per step, in sequence order.
	Results []StepResult

	Log logger.Logger

	// restartSSHD is set once sshd_config changed and a restart is owed.
	restartSSHD bool

	// noAbort is set once the host enters the window where stopping
	// early could strand it (config rewritten, restart pending).
	// Cancellation is ignored until the sequence completes.
	noAbort bool
}

// NewHostContext creates a context for one host with derived credentials.
func NewHostContext(h inventory.Host, log logger.Logger) *HostContext {
	if log == nil {
		log = logger.Noop()
	}
	return &HostContext{
		Host:  h,
		Creds: inventory.DeriveCredentials(h),
		State: Unreached,
		Facts: make(map[string]string),
		Log:   log,
	}
}

// advance moves the state forward, never backward.
func (hc *HostContext) advance(s State) {
	if s > hc.State && hc.State != Failed {
		hc.State = s
	}
}

// record appends a step result.
func (hc *HostContext) record(r StepResult) {
	hc.Results = append(hc.Results, r)
}

// Result returns the recorded result for a step name, or nil.
func (hc *HostContext) Result(name string) *StepResult {
	for i := range hc.Results {
		if hc.Results[i].Name == name {
			return &hc.Results[i]
		}
	}
	return nil
}

// runner returns the privileged command runner for this host.
func (hc *HostContext) runner() *runner {
	return &runner{client: hc.Client, becomePassword: hc.Creds.BecomePassword}
}
