package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/logger"
	"github.com/enrollkit/enroll/pkg/sshutil"
)

// Dialer opens an SSH connection. Tests inject one backed by the mock
// client; the default wraps sshutil.Dial.
type Dialer func(ctx context.Context, target string, opts sshutil.Options) (sshutil.SSHClient, error)

// Settings are the resolved knobs the sequence needs, flattened out of
// the config file plus the loaded public key content.
type Settings struct {
	AdminUser  string
	AdminGroup string
	PublicKey  string

	PAMPackage string
	PAMService string
	PAMAnchor  string

	SSHService     string
	ProbeTimeout   time.Duration
	ConnectRetries int
	RetryBackoff   time.Duration

	// SkipVerify drops the key verification probes around the sshd
	// restart. Explicit opt-out only.
	SkipVerify bool

	// DryRun probes reachability but records every privileged step as
	// skipped instead of executing it.
	DryRun bool

	// FallbackPassword is used for hosts with no recorded created
	// account (the --ask-pass prompt). Empty means key/agent auth only.
	FallbackPassword string
}

// NewSettings flattens a validated config and the operator's public key
// content into sequence settings.
func NewSettings(cfg *config.Config, publicKey string) Settings {
	return Settings{
		AdminUser:      cfg.Admin.Username,
		AdminGroup:     cfg.Admin.Group,
		PublicKey:      publicKey,
		PAMPackage:     cfg.PAM.Package,
		PAMService:     cfg.PAM.Service,
		PAMAnchor:      cfg.PAM.Anchor,
		SSHService:     cfg.SSH.Service,
		ProbeTimeout:   cfg.SSH.ProbeTimeout,
		ConnectRetries: cfg.SSH.ConnectRetries,
		RetryBackoff:   cfg.SSH.RetryBackoff,
	}
}

// Report is the outcome of the full sequence on one host.
type Report struct {
	Host     inventory.Host
	State    State
	Results  []StepResult
	Duration time.Duration
}

// Failed reports whether a required step failed.
func (r *Report) Failed() bool { return r.State == Failed }

// Unreached reports whether the host never answered the probe.
func (r *Report) Unreached() bool { return r.State == Unreached }

// Changed counts the steps that modified the host.
func (r *Report) Changed() int {
	n := 0
	for _, res := range r.Results {
		if res.Changed {
			n++
		}
	}
	return n
}

// Err returns the first required-step error, or nil.
func (r *Report) Err() error {
	for _, res := range r.Results {
		if res.Status == StepFailed && res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Sequencer runs the provisioning sequence against single hosts. One
// Sequencer is shared by all workers; per-host state lives in the
// HostContext.
type Sequencer struct {
	Settings Settings

	// Dial defaults to the real SSH dialer.
	Dial Dialer

	Log logger.Logger
}

// NewSequencer creates a sequencer with the real SSH dialer.
func NewSequencer(settings Settings, log logger.Logger) *Sequencer {
	if log == nil {
		log = logger.NewEnvLogger("[provision]")
	}
	return &Sequencer{Settings: settings, Log: log}
}

// Run executes the full sequence against one host and returns its
// report. Run never returns an error: failures are recorded per step so
// one broken host doesn't abort the others.
func (s *Sequencer) Run(ctx context.Context, host inventory.Host) *Report {
	start := time.Now()
	hc := NewHostContext(host, s.Log)
	if !hc.Creds.Overridden() && s.Settings.FallbackPassword != "" {
		hc.Creds.Password = s.Settings.FallbackPassword
		hc.Creds.BecomePassword = s.Settings.FallbackPassword
	}

	s.deriveCredentials(hc)
	s.probe(ctx, hc)

	if hc.Client != nil {
		defer hc.Client.Close() //nolint:errcheck // Cleanup, error not actionable
	}

	for _, step := range s.steps() {
		s.runStep(ctx, hc, step)
	}

	return &Report{
		Host:     host,
		State:    hc.State,
		Results:  hc.Results,
		Duration: time.Since(start),
	}
}

// deriveCredentials resolves the connection identity. Local, and it
// can't fail: an absent created account just means the operator's own
// identity is used.
func (s *Sequencer) deriveCredentials(hc *HostContext) {
	msg := "using operator identity"
	if hc.Creds.Overridden() {
		msg = "using created account " + hc.Creds.User
	}
	hc.Log.Debug("%s: %s", hc.Host.Name, msg)
	hc.record(StepResult{Name: StepDeriveCredentials, Status: Succeeded, Message: msg})
}

// probe dials the host with bounded retries. An unreachable host is a
// normal outcome for a fresh deployment, not a run failure: the host
// stays Unreached and everything after is skipped.
func (s *Sequencer) probe(ctx context.Context, hc *HostContext) {
	if err := ctx.Err(); err != nil {
		hc.record(StepResult{Name: StepProbe, Status: Skipped, Message: "run cancelled"})
		return
	}

	opts := sshutil.Options{
		User:     hc.Creds.User,
		Password: hc.Creds.Password,
		Timeout:  s.Settings.ProbeTimeout,
	}

	client, err := s.dialRetry(ctx, hc.Host.Target(), opts)
	if err != nil {
		hc.Log.Warn("%s: unreachable: %v", hc.Host.Name, err)
		hc.record(StepResult{Name: StepProbe, Status: StepFailed, Message: "host unreachable", Err: err})
		return
	}

	hc.Client = client
	hc.advance(Reachable)
	hc.record(StepResult{Name: StepProbe, Status: Succeeded,
		Message: fmt.Sprintf("connected as %s", client.GetUser())})
}

// runStep applies guard, cancellation, and policy around one step.
func (s *Sequencer) runStep(ctx context.Context, hc *HostContext, step Step) {
	if hc.State == Failed {
		hc.record(StepResult{Name: step.Name, Status: Skipped, Message: "earlier required step failed"})
		return
	}
	if s.Settings.DryRun {
		msg := "dry run, would execute"
		if !hc.State.AtLeast(Reachable) {
			msg = "host unreachable"
		}
		hc.record(StepResult{Name: step.Name, Status: Skipped, Message: msg})
		return
	}
	if ctx.Err() != nil && !hc.noAbort {
		hc.record(StepResult{Name: step.Name, Status: Skipped, Message: "run cancelled"})
		return
	}
	if !hc.State.AtLeast(step.Guard) {
		hc.record(StepResult{Name: step.Name, Status: Skipped,
			Message: fmt.Sprintf("requires state %s, host is %s", step.Guard, hc.State)})
		return
	}

	changed, err := step.Run(ctx, hc)
	if err != nil {
		if step.Policy == BestEffort {
			hc.Log.Warn("%s: %s failed (best effort): %v", hc.Host.Name, step.Name, err)
			hc.record(StepResult{Name: step.Name, Status: StepFailed, Changed: changed, Err: err,
				Message: "failed, continuing"})
			return
		}
		hc.Log.Error("%s: %s failed: %v", hc.Host.Name, step.Name, err)
		hc.record(StepResult{Name: step.Name, Status: StepFailed, Changed: changed, Err: err})
		hc.State = Failed
		return
	}

	hc.record(StepResult{Name: step.Name, Status: Succeeded, Changed: changed})
	if step.Advance > hc.State {
		hc.advance(step.Advance)
	}
	hc.Log.Debug("%s: %s ok (changed=%v, state=%s)", hc.Host.Name, step.Name, changed, hc.State)
}

// dial opens a single connection attempt.
func (s *Sequencer) dial(ctx context.Context, target string, opts sshutil.Options) (sshutil.SSHClient, error) {
	if s.Dial != nil {
		return s.Dial(ctx, target, opts)
	}
	return sshutil.Dial(target, opts)
}

// dialRetry opens a connection with the configured retry budget.
func (s *Sequencer) dialRetry(ctx context.Context, target string, opts sshutil.Options) (sshutil.SSHClient, error) {
	if s.Dial != nil {
		var lastErr error
		backoff := s.Settings.RetryBackoff
		for attempt := 0; attempt <= s.Settings.ConnectRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, errors.Wrap(ctx.Err(), "Connection attempt cancelled")
				}
				backoff *= 2
			}
			client, err := s.Dial(ctx, target, opts)
			if err == nil {
				return client, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
	return sshutil.DialRetry(target, opts, s.Settings.ConnectRetries, s.Settings.RetryBackoff)
}
