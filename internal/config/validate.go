package config

import (
	"fmt"
	"strings"

	"github.com/enrollkit/enroll/internal/errors"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but enroll only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Update enroll to the latest release")
	}

	if err := validateInventory(cfg.Inventory); err != nil {
		return err
	}
	if err := validateAdmin(cfg.Admin); err != nil {
		return err
	}
	if err := validatePAM(cfg.PAM); err != nil {
		return err
	}
	if err := validateSSH(cfg.SSH); err != nil {
		return err
	}

	if cfg.Concurrency < 0 {
		return errors.New(errors.ErrConfig,
			"'concurrency' cannot be negative",
			"Use 0 for one worker per host, or a positive limit.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return err
	}

	return nil
}

func validateInventory(inv InventoryConfig) error {
	hasFile := inv.File != ""
	hasAPI := inv.Cons3rt.URL != ""

	if !hasFile && !hasAPI {
		return errors.New(errors.ErrConfig,
			"No inventory source configured",
			"Set 'inventory.file' to a hosts.yaml path, or configure 'inventory.cons3rt'.")
	}
	if hasFile && hasAPI {
		return errors.New(errors.ErrConfig,
			"Both file and cons3rt inventory sources are configured",
			"Pick one: a static 'inventory.file' or the 'inventory.cons3rt' API.")
	}

	if hasAPI {
		if !strings.HasPrefix(inv.Cons3rt.URL, "http://") && !strings.HasPrefix(inv.Cons3rt.URL, "https://") {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Inventory API URL '%s' doesn't look like a URL", inv.Cons3rt.URL),
				"Use a full base URL like https://api.example.io/rest")
		}
		if inv.Cons3rt.TokenEnv == "" {
			return errors.New(errors.ErrConfig,
				"'inventory.cons3rt.token_env' is required",
				"Name the environment variable that holds your project token (e.g., CONS3RT_TOKEN).")
		}
		if inv.Cons3rt.CacheTTL < 0 {
			return errors.New(errors.ErrConfig,
				"'inventory.cons3rt.cache_ttl' cannot be negative",
				"Use 0 to disable caching, or a duration like 10m.")
		}
	}

	return nil
}

func validateAdmin(admin AdminConfig) error {
	if admin.Username == "" {
		return errors.New(errors.ErrConfig,
			"'admin.username' is required",
			"Name the automation account to create, e.g., ansible.")
	}
	if strings.ContainsAny(admin.Username, " \t:") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' is not a valid username", admin.Username),
			"Usernames cannot contain whitespace or colons.")
	}
	if admin.Group == "" {
		return errors.New(errors.ErrConfig,
			"'admin.group' is required",
			"Name the privilege group, e.g., wheel or sudo.")
	}
	if admin.PublicKeyFile == "" {
		return errors.New(errors.ErrConfig,
			"'admin.public_key_file' is required",
			"Point it at the operator public key, e.g., ~/.ssh/id_ed25519.pub.")
	}
	return nil
}

func validatePAM(pam PAMConfig) error {
	if pam.Package == "" {
		return errors.New(errors.ErrConfig,
			"'pam.package' is required",
			"The helper package name, usually pam_ssh_agent_auth.")
	}
	if pam.Service == "" {
		return errors.New(errors.ErrConfig,
			"'pam.service' is required",
			"The PAM service to edit, usually sudo.")
	}
	if strings.Contains(pam.Service, "/") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("'pam.service' should be a service name, not a path: %s", pam.Service),
			"Use just the file name under /etc/pam.d, e.g., sudo.")
	}
	if pam.Anchor == "" {
		return errors.New(errors.ErrConfig,
			"'pam.anchor' is required",
			"The PAM line the rule is inserted before, e.g., 'auth include system-auth'.")
	}
	return nil
}

func validateSSH(ssh SSHConfig) error {
	if ssh.ProbeTimeout <= 0 {
		return errors.New(errors.ErrConfig,
			"'ssh.probe_timeout' must be positive",
			"Use a duration like 5s. Probes must never block indefinitely.")
	}
	if ssh.ConnectRetries < 0 {
		return errors.New(errors.ErrConfig,
			"'ssh.connect_retries' cannot be negative",
			"Use 0 for a single attempt, or a small count like 5.")
	}
	if ssh.RetryBackoff < 0 {
		return errors.New(errors.ErrConfig,
			"'ssh.retry_backoff' cannot be negative",
			"Use a duration like 2s.")
	}
	if ssh.Service == "" {
		return errors.New(errors.ErrConfig,
			"'ssh.service' is required",
			"The daemon service name: sshd on EL systems, ssh on Debian.")
	}
	return nil
}

func validateOutput(out OutputConfig) error {
	switch out.Color {
	case "", "auto", "always", "never":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown color mode '%s'", out.Color),
			"Use auto, always, or never.")
	}
	switch out.Verbosity {
	case "", "quiet", "normal", "verbose":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown verbosity '%s'", out.Verbosity),
			"Use quiet, normal, or verbose.")
	}
	return nil
}
