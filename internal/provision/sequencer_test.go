package provision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollkit/enroll/internal/inventory"
	"github.com/enrollkit/enroll/internal/logger"
	"github.com/enrollkit/enroll/pkg/sshutil"
	sshtesting "github.com/enrollkit/enroll/pkg/sshutil/testing"
)

const testKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAA ops@laptop"

func testSettings() Settings {
	return Settings{
		AdminUser:      "ansible",
		AdminGroup:     "wheel",
		PublicKey:      testKey,
		PAMPackage:     "pam_ssh_agent_auth",
		PAMService:     "sudo",
		PAMAnchor:      "auth       include      system-auth",
		SSHService:     "sshd",
		ProbeTimeout:   time.Second,
		ConnectRetries: 0,
		RetryBackoff:   time.Millisecond,
	}
}

func testHost() inventory.Host {
	return inventory.Host{Name: "web-01", CreatedUsername: "tmpuser", CreatedPassword: "pw1"}
}

// keepOpen wraps a mock so the sequencer's Close calls don't tear down
// the shared host model between dials.
type keepOpen struct {
	*sshtesting.MockClient
}

func (k keepOpen) Close() error { return nil }

// modelDialer returns the shared host model for every dial.
func modelDialer(m *sshtesting.MockClient) Dialer {
	return func(_ context.Context, _ string, _ sshutil.Options) (sshutil.SSHClient, error) {
		return keepOpen{m}, nil
	}
}

func newTestSequencer(m *sshtesting.MockClient) *Sequencer {
	s := NewSequencer(testSettings(), logger.Noop())
	s.Dial = modelDialer(m)
	return s
}

func TestSequencerProvisionsFreshHost(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	s := newTestSequencer(m)

	report := s.Run(context.Background(), testHost())

	require.Equal(t, Hardened, report.State, "report: %+v", report.Results)
	assert.False(t, report.Failed())
	for _, res := range report.Results {
		assert.Equal(t, Succeeded, res.Status, res.Name)
	}

	// Admin account exists and is in the admin group.
	user := m.User("ansible")
	require.NotNil(t, user)
	assert.Contains(t, user.Groups, "wheel")

	// The operator's key is the only authorized key, mode 0600.
	fs := m.GetFS()
	authKeys, err := fs.ReadFile("/home/ansible/.ssh/authorized_keys")
	require.NoError(t, err)
	assert.Equal(t, testKey+"\n", string(authKeys))
	assert.Equal(t, uint32(0600), fs.Mode("/home/ansible/.ssh/authorized_keys"))

	// sshd_config carries the managed Match block.
	sshd, err := fs.ReadFile("/etc/ssh/sshd_config")
	require.NoError(t, err)
	assert.Contains(t, string(sshd), blockBegin)
	assert.Contains(t, string(sshd), "Match User ansible")
	assert.Contains(t, string(sshd), "PasswordAuthentication no")

	// PAM rule sits before the anchor.
	pam, err := fs.ReadFile("/etc/pam.d/sudo")
	require.NoError(t, err)
	ruleIdx := strings.Index(string(pam), "pam_ssh_agent_auth.so")
	anchorIdx := strings.Index(string(pam), "auth       include      system-auth")
	require.Greater(t, ruleIdx, 0)
	assert.Less(t, ruleIdx, anchorIdx)

	// Helper package installed, sshd restarted.
	assert.True(t, m.HasPackage("pam_ssh_agent_auth"))
	assert.Equal(t, "restarted", m.ServiceState("sshd"))

	assert.NotZero(t, report.Duration)
}

func TestSequencerSecondRunChangesNothing(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	s := newTestSequencer(m)

	first := s.Run(context.Background(), testHost())
	require.Equal(t, Hardened, first.State)

	fs := m.GetFS()
	sshdBefore, err := fs.ReadFile("/etc/ssh/sshd_config")
	require.NoError(t, err)
	pamBefore, err := fs.ReadFile("/etc/pam.d/sudo")
	require.NoError(t, err)

	second := s.Run(context.Background(), testHost())
	require.Equal(t, Hardened, second.State)

	// Package install is the only step allowed to report changed on a
	// re-run (ensure-latest semantics).
	for _, res := range second.Results {
		if res.Name == StepInstallPAMPackage {
			continue
		}
		assert.False(t, res.Changed, res.Name)
	}

	sshdAfter, err := fs.ReadFile("/etc/ssh/sshd_config")
	require.NoError(t, err)
	assert.Equal(t, string(sshdBefore), string(sshdAfter))

	pamAfter, err := fs.ReadFile("/etc/pam.d/sudo")
	require.NoError(t, err)
	assert.Equal(t, string(pamBefore), string(pamAfter))
}

func TestSequencerDryRunChangesNothing(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	s := newTestSequencer(m)
	s.Settings.DryRun = true

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, Reachable, report.State)
	assert.Equal(t, Succeeded, resultByName(t, report, StepProbe).Status)
	for _, name := range []string{StepEnsureGroup, StepCreateUser, StepInstallAuthorizedKey, StepDisablePasswordAuth, StepVerifyAndRestart} {
		res := resultByName(t, report, name)
		assert.Equal(t, Skipped, res.Status, name)
		assert.Contains(t, res.Message, "dry run", name)
	}

	// Nothing on the host changed.
	assert.Nil(t, m.User("ansible"))
	assert.False(t, m.HasPackage("pam_ssh_agent_auth"))
	assert.Empty(t, m.ServiceState("sshd"))
}

func TestSequencerUnreachableHostSkipsEverything(t *testing.T) {
	s := NewSequencer(testSettings(), logger.Noop())
	s.Dial = func(context.Context, string, sshutil.Options) (sshutil.SSHClient, error) {
		return nil, errors.New("connection refused")
	}

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, Unreached, report.State)
	assert.True(t, report.Unreached())
	assert.False(t, report.Failed())

	probe := resultByName(t, report, StepProbe)
	assert.Equal(t, StepFailed, probe.Status)

	for _, name := range []string{StepGatherFacts, StepEnsureGroup, StepCreateUser,
		StepInstallAuthorizedKey, StepDisablePasswordAuth, StepVerifyAndRestart} {
		res := resultByName(t, report, name)
		assert.Equal(t, Skipped, res.Status, name)
	}
}

func TestSequencerRequiredFailureStopsHost(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	m.SetCommandResponse("useradd", sshtesting.CommandResponse{
		Stderr:   []byte("useradd: cannot lock /etc/passwd"),
		ExitCode: 10,
	})
	s := newTestSequencer(m)

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, Failed, report.State)
	assert.True(t, report.Failed())
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "cannot lock")

	// Nothing after the failed step ran.
	assert.Equal(t, Skipped, resultByName(t, report, StepInstallAuthorizedKey).Status)
	assert.False(t, m.GetFS().IsFile("/home/ansible/.ssh/authorized_keys"))
	assert.Empty(t, m.ServiceState("sshd"))
}

func TestSequencerBestEffortFailureContinues(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	m.SetCommandResponse("uname", sshtesting.CommandResponse{
		Error: errors.New("session torn down"),
	})
	s := newTestSequencer(m)

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, StepFailed, resultByName(t, report, StepGatherFacts).Status)
	assert.Equal(t, Hardened, report.State)
}

func TestSequencerVerifyFailureBlocksRestart(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	s := NewSequencer(testSettings(), logger.Noop())
	s.Dial = func(_ context.Context, _ string, opts sshutil.Options) (sshutil.SSHClient, error) {
		if opts.User == "ansible" {
			return nil, errors.New("permission denied (publickey)")
		}
		return keepOpen{m}, nil
	}

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, Failed, report.State)
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "NOT restarting sshd")

	// The restart never happened: the active sshd still honors the old
	// config even though the file changed.
	assert.Empty(t, m.ServiceState("sshd"))
}

func TestSequencerReportsLockoutAfterRestart(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	adminDials := 0
	s := NewSequencer(testSettings(), logger.Noop())
	s.Dial = func(_ context.Context, _ string, opts sshutil.Options) (sshutil.SSHClient, error) {
		if opts.User == "ansible" {
			adminDials++
			if adminDials > 1 {
				return nil, errors.New("connection reset")
			}
		}
		return keepOpen{m}, nil
	}

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, Failed, report.State)
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "locked out")

	// The restart DID happen; the result must say so.
	assert.Equal(t, "restarted", m.ServiceState("sshd"))
	assert.True(t, resultByName(t, report, StepVerifyAndRestart).Changed)
}

func TestSequencerSkipVerify(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	adminDials := 0
	settings := testSettings()
	settings.SkipVerify = true

	s := NewSequencer(settings, logger.Noop())
	s.Dial = func(_ context.Context, _ string, opts sshutil.Options) (sshutil.SSHClient, error) {
		if opts.User == "ansible" {
			adminDials++
		}
		return keepOpen{m}, nil
	}

	report := s.Run(context.Background(), testHost())

	assert.Equal(t, Hardened, report.State)
	assert.Zero(t, adminDials, "verification probes must not run with SkipVerify")
	assert.Equal(t, "restarted", m.ServiceState("sshd"))
}

func TestSequencerCancelledRunSkipsHost(t *testing.T) {
	m := sshtesting.NewCreatedHost("web-01", "tmpuser")
	s := newTestSequencer(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := s.Run(ctx, testHost())

	assert.Equal(t, Unreached, report.State)
	assert.Equal(t, Skipped, resultByName(t, report, StepProbe).Status)
	assert.Nil(t, m.User("ansible"))
}

func TestSequencerNoCreatedAccountUsesOperatorIdentity(t *testing.T) {
	m := sshtesting.NewLinuxHost("web-01")
	s := newTestSequencer(m)

	report := s.Run(context.Background(), inventory.Host{Name: "web-01"})

	derive := resultByName(t, report, StepDeriveCredentials)
	assert.Contains(t, derive.Message, "operator identity")
	assert.Equal(t, Hardened, report.State)
}

func resultByName(t *testing.T, report *Report, name string) StepResult {
	t.Helper()
	for _, res := range report.Results {
		if res.Name == name {
			return res
		}
	}
	t.Fatalf("no result named %s in %+v", name, report.Results)
	return StepResult{}
}
