package doctor

import (
	"fmt"

	"github.com/enrollkit/enroll/internal/config"
)

// NewConfigChecks returns the configuration checks. path is the
// resolved config file path, or "" when none was found.
func NewConfigChecks(path string) []Check {
	return []Check{
		&configExistsCheck{path: path},
		&configValidCheck{path: path},
	}
}

// configExistsCheck verifies a config file was found.
type configExistsCheck struct {
	path string
}

func (c *configExistsCheck) Name() string     { return "config_exists" }
func (c *configExistsCheck) Category() string { return "CONFIG" }

func (c *configExistsCheck) Run() CheckResult {
	if c.path == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "No " + config.ConfigFileName + " found",
			Suggestion: "Run 'enroll init' to create one",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Config found: " + c.path,
	}
}

// configValidCheck verifies the config parses and validates.
type configValidCheck struct {
	path string
}

func (c *configValidCheck) Name() string     { return "config_valid" }
func (c *configValidCheck) Category() string { return "CONFIG" }

func (c *configValidCheck) Run() CheckResult {
	if c.path == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Skipped: no config to validate",
			Suggestion: "Run 'enroll init' first",
		}
	}

	cfg, err := config.Load(c.path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Config doesn't parse: %v", err),
			Suggestion: "Fix the YAML, or regenerate with 'enroll init --force'",
		}
	}
	if err := config.Validate(cfg); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("Config is invalid: %v", err),
			Suggestion: "Fix the reported field, or regenerate with 'enroll init --force'",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Config parses and validates",
	}
}
