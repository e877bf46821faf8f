package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete .enroll.yaml configuration file.
type Config struct {
	Version     int             `yaml:"version" mapstructure:"version"`
	Inventory   InventoryConfig `yaml:"inventory" mapstructure:"inventory"`
	Admin       AdminConfig     `yaml:"admin" mapstructure:"admin"`
	PAM         PAMConfig       `yaml:"pam" mapstructure:"pam"`
	SSH         SSHConfig       `yaml:"ssh" mapstructure:"ssh"`
	Concurrency int             `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig    `yaml:"output" mapstructure:"output"`
}

// InventoryConfig selects where host records come from.
// Exactly one source must be configured.
type InventoryConfig struct {
	// File is the path to a static YAML inventory.
	File string `yaml:"file" mapstructure:"file"`

	// Cons3rt configures the deployment-run API inventory source.
	Cons3rt Cons3rtConfig `yaml:"cons3rt" mapstructure:"cons3rt"`
}

// Cons3rtConfig holds settings for the CONS3RT API inventory source.
type Cons3rtConfig struct {
	// URL is the base URL of the REST API (e.g., https://api.example.io/rest).
	URL string `yaml:"url" mapstructure:"url"`

	// TokenEnv names the environment variable holding the project token.
	// The token itself never lives in the config file.
	TokenEnv string `yaml:"token_env" mapstructure:"token_env"`

	// CacheFile is where the fetched inventory is cached as JSON.
	CacheFile string `yaml:"cache_file" mapstructure:"cache_file"`

	// CacheTTL is how long a cached inventory stays fresh.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// AdminConfig describes the administrative account to create on each host.
type AdminConfig struct {
	// Username of the automation account (e.g., "ansible").
	Username string `yaml:"username" mapstructure:"username"`

	// Group is the privilege group the account joins (e.g., "wheel").
	Group string `yaml:"group" mapstructure:"group"`

	// PublicKeyFile is the operator's public key installed as the account's
	// sole authorized key. Supports ~ expansion.
	PublicKeyFile string `yaml:"public_key_file" mapstructure:"public_key_file"`
}

// PAMConfig controls the SSH-agent PAM helper registration.
type PAMConfig struct {
	// Package is the helper package name (e.g., "pam_ssh_agent_auth").
	Package string `yaml:"package" mapstructure:"package"`

	// Service is the PAM service file to edit under /etc/pam.d (e.g., "sudo").
	Service string `yaml:"service" mapstructure:"service"`

	// Anchor is the line the sufficient rule is inserted before.
	Anchor string `yaml:"anchor" mapstructure:"anchor"`
}

// SSHConfig controls connection probing and the daemon restart.
type SSHConfig struct {
	// ProbeTimeout bounds each connection attempt.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`

	// ConnectRetries is how many times to retry a failed probe.
	// New hosts often take a while before sshd accepts connections.
	ConnectRetries int `yaml:"connect_retries" mapstructure:"connect_retries"`

	// RetryBackoff is the base delay between retries (doubles each attempt).
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`

	// Service is the SSH daemon service name (sshd on EL, ssh on Debian).
	Service string `yaml:"service" mapstructure:"service"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	// "auto" disables color when output is piped.
	Color string `yaml:"color" mapstructure:"color"`

	// Verbosity: "quiet", "normal", or "verbose".
	Verbosity string `yaml:"verbosity" mapstructure:"verbosity"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Admin: AdminConfig{
			Username:      "ansible",
			Group:         "wheel",
			PublicKeyFile: "~/.ssh/id_ed25519.pub",
		},
		PAM: PAMConfig{
			Package: "pam_ssh_agent_auth",
			Service: "sudo",
			Anchor:  "auth       include      system-auth",
		},
		SSH: SSHConfig{
			ProbeTimeout:   5 * time.Second,
			ConnectRetries: 5,
			RetryBackoff:   2 * time.Second,
			Service:        "sshd",
		},
		Concurrency: 10,
		Output: OutputConfig{
			Color:     "auto",
			Verbosity: "normal",
		},
	}
}
