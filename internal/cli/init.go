package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/enrollkit/enroll/internal/config"
	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/sshkeys"
	"github.com/enrollkit/enroll/internal/ui"
	"github.com/enrollkit/enroll/internal/util"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Force          bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use flags and defaults
	AdminUser      string // Pre-specified admin account name
	KeyFile        string // Pre-specified public key file
	InventoryFile  string // Pre-specified static inventory file
}

// initCommand creates a new .enroll.yaml configuration file.
func initCommand(opts InitOptions) error {
	configPath := filepath.Join(".", config.ConfigFileName)

	// Check for existing config
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	adminUser := cfg.Admin.Username
	keyFile := cfg.Admin.PublicKeyFile
	inventoryFile := opts.InventoryFile
	useCons3rt := false
	cons3rtURL := ""

	if opts.NonInteractive {
		if opts.AdminUser != "" {
			adminUser = opts.AdminUser
		}
		if opts.KeyFile != "" {
			keyFile = opts.KeyFile
		}
		if inventoryFile == "" {
			return errors.New(errors.ErrConfig,
				"Inventory file is required in non-interactive mode",
				"Provide --inventory-file, or run interactively to configure CONS3RT")
		}
	} else {
		if opts.AdminUser != "" {
			adminUser = opts.AdminUser
		}
		if opts.KeyFile != "" {
			keyFile = opts.KeyFile
		} else if key := sshkeys.GetPreferredKey(); key != nil && key.HasPublic {
			keyFile = key.PublicPath
		}

		sourceChoice := "file"
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Admin account name").
					Description("The account created and managed on every host").
					Placeholder("ansible").
					Value(&adminUser).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("admin account name is required")
						}
						if strings.ContainsAny(s, " \t\n") {
							return fmt.Errorf("account name cannot contain whitespace")
						}
						return nil
					}),
			),
			huh.NewGroup(
				huh.NewInput().
					Title("Public key file").
					Description("Installed as the admin account's only authorized key").
					Placeholder("~/.ssh/id_ed25519.pub").
					Value(&keyFile).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("public key file is required")
						}
						return nil
					}),
			),
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Inventory source").
					Description("Where the list of hosts comes from").
					Options(
						huh.NewOption("Static YAML file", "file"),
						huh.NewOption("CONS3RT deployment API", "cons3rt"),
					).
					Value(&sourceChoice),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Check terminal compatibility or use --non-interactive flag")
		}

		if sourceChoice == "cons3rt" {
			useCons3rt = true
			cons3rtURL = cfg.Inventory.Cons3rt.URL
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("CONS3RT API URL").
						Placeholder("https://api.cons3rt.com/rest").
						Value(&cons3rtURL).
						Validate(func(s string) error {
							if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
								return fmt.Errorf("URL must start with http:// or https://")
							}
							return nil
						}),
				),
			)
			if err := form.Run(); err != nil {
				return errors.WrapWithCode(err, errors.ErrConfig,
					"Failed to get user input",
					"Check terminal compatibility or use --non-interactive flag")
			}
		} else {
			if inventoryFile == "" {
				inventoryFile = "hosts.yaml"
			}
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Inventory file").
						Description("YAML file listing hosts and their created credentials").
						Placeholder("hosts.yaml").
						Value(&inventoryFile).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return fmt.Errorf("inventory file is required")
							}
							return nil
						}),
				),
			)
			if err := form.Run(); err != nil {
				return errors.WrapWithCode(err, errors.ErrConfig,
					"Failed to get user input",
					"Check terminal compatibility or use --non-interactive flag")
			}
		}
	}

	cfg.Admin.Username = adminUser
	cfg.Admin.PublicKeyFile = keyFile
	if useCons3rt {
		cfg.Inventory.File = ""
		cfg.Inventory.Cons3rt.URL = cons3rtURL
		cfg.Inventory.Cons3rt.TokenEnv = "CONS3RT_TOKEN"
		cfg.Inventory.Cons3rt.CacheFile = ".enroll-inventory.json"
		cfg.Inventory.Cons3rt.CacheTTL = 10 * time.Minute
	} else {
		cfg.Inventory.File = inventoryFile
	}

	// The config is still saved when the key is missing; offer to
	// generate one interactively, warn otherwise.
	if _, err := os.Stat(util.ExpandUser(keyFile)); err != nil {
		if opts.NonInteractive {
			fmt.Printf("%s Public key file %s not found; generate one with 'ssh-keygen -t ed25519'\n",
				ui.SymbolFail, keyFile)
		} else if err := offerKeyGeneration(keyFile); err != nil {
			return err
		}
	}

	if err := os.WriteFile(configPath, []byte(renderConfig(cfg)), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", configPath),
			"Check directory permissions")
	}

	fmt.Printf("%s Created %s\n\n", ui.SymbolSuccess, configPath)
	fmt.Println("Next steps:")
	fmt.Println("  enroll hosts  - Show the resolved inventory")
	fmt.Println("  enroll probe  - Check which hosts answer")
	fmt.Println("  enroll apply  - Provision everything")
	if useCons3rt {
		fmt.Printf("\nExport your CONS3RT token first: export %s=<token>\n", cfg.Inventory.Cons3rt.TokenEnv)
	}

	return nil
}

// renderConfig lays out the config file by hand so durations read as
// "5s" instead of raw nanoseconds.
func renderConfig(cfg *config.Config) string {
	var b strings.Builder
	b.WriteString("# enroll configuration\n")
	b.WriteString("# Run 'enroll apply' to provision every inventory host\n\n")
	fmt.Fprintf(&b, "version: %d\n", cfg.Version)

	b.WriteString("inventory:\n")
	if cfg.Inventory.File != "" {
		fmt.Fprintf(&b, "  file: %s\n", cfg.Inventory.File)
	} else {
		b.WriteString("  cons3rt:\n")
		fmt.Fprintf(&b, "    url: %s\n", cfg.Inventory.Cons3rt.URL)
		fmt.Fprintf(&b, "    token_env: %s\n", cfg.Inventory.Cons3rt.TokenEnv)
		fmt.Fprintf(&b, "    cache_file: %s\n", cfg.Inventory.Cons3rt.CacheFile)
		fmt.Fprintf(&b, "    cache_ttl: %s\n", cfg.Inventory.Cons3rt.CacheTTL)
	}

	b.WriteString("admin:\n")
	fmt.Fprintf(&b, "  username: %s\n", cfg.Admin.Username)
	fmt.Fprintf(&b, "  group: %s\n", cfg.Admin.Group)
	fmt.Fprintf(&b, "  public_key_file: %s\n", cfg.Admin.PublicKeyFile)

	b.WriteString("pam:\n")
	fmt.Fprintf(&b, "  package: %s\n", cfg.PAM.Package)
	fmt.Fprintf(&b, "  service: %s\n", cfg.PAM.Service)
	fmt.Fprintf(&b, "  anchor: %q\n", cfg.PAM.Anchor)

	b.WriteString("ssh:\n")
	fmt.Fprintf(&b, "  probe_timeout: %s\n", cfg.SSH.ProbeTimeout)
	fmt.Fprintf(&b, "  connect_retries: %d\n", cfg.SSH.ConnectRetries)
	fmt.Fprintf(&b, "  retry_backoff: %s\n", cfg.SSH.RetryBackoff)
	fmt.Fprintf(&b, "  service: %s\n", cfg.SSH.Service)

	fmt.Fprintf(&b, "concurrency: %d\n", cfg.Concurrency)
	return b.String()
}

// offerKeyGeneration asks whether to create a missing key pair. The
// public key lands next to the private key with a .pub suffix.
func offerKeyGeneration(keyFile string) error {
	privatePath := strings.TrimSuffix(util.ExpandUser(keyFile), ".pub")

	var generate bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Public key %s doesn't exist. Generate a new ed25519 key pair?", keyFile)).
				Value(&generate),
		),
	)
	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Generate a key manually: ssh-keygen -t ed25519")
	}
	if !generate {
		fmt.Printf("%s Skipped; generate one later with 'ssh-keygen -t ed25519'\n", ui.SymbolSkipped)
		return nil
	}

	if err := sshkeys.GenerateKey(privatePath, "ed25519"); err != nil {
		return err
	}
	fmt.Printf("%s Generated %s\n", ui.SymbolSuccess, keyFile)
	return nil
}
