package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-webui/openwebui-cli/internal/api"
	"github.com/open-webui/openwebui-cli/internal/config"
)

// ConfigCmd creates the config parent command.
func ConfigCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "CLI configuration",
	}

	cmd.AddCommand(configInitCmd(opts))
	cmd.AddCommand(configShowCmd(opts))
	cmd.AddCommand(configSetCmd(opts))
	cmd.AddCommand(configGetCmd(opts))

	return cmd
}

func configInitCmd(opts *Options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(opts, force)
		},
	}

	// No shorthand: "f" belongs to the global --format flag.
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")

	return cmd
}

func runConfigInit(opts *Options, force bool) error {
	render := newRenderer(opts)

	configPath, err := config.Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		render.Warnf("Config already exists at: %s", configPath)
		render.Infof("Use --force to overwrite")
		return fmt.Errorf("config already exists")
	}

	render.Infof("OpenWebUI CLI Configuration Setup\n")

	uri, err := promptLine("Server URI", config.DefaultURI)
	if err != nil {
		return err
	}
	if err := config.ValidateURI(uri); err != nil {
		return api.Usagef("%v", err)
	}

	model, err := promptLine("Default model (optional)", "")
	if err != nil {
		return err
	}

	format, err := promptLine("Default output format (text/json/yaml)", "text")
	if err != nil {
		return err
	}
	if format != "text" && format != "json" && format != "yaml" {
		return api.Usagef("format must be 'text', 'json', or 'yaml'")
	}

	cfg := config.New()
	cfg.Profiles[config.DefaultProfile] = config.Profile{URI: uri}
	cfg.Defaults.Model = model
	cfg.Defaults.Format = format

	if err := config.Save(cfg); err != nil {
		return err
	}

	render.Successf("\nConfiguration saved to: %s", configPath)
	render.Infof("\nNext steps:")
	render.Infof("  1. Run 'openwebui auth login' to authenticate")
	render.Infof("  2. Run 'openwebui models list' to see available models")
	render.Infof("  3. Run 'openwebui chat send -m <model> -p \"Hello\"' to chat")
	return nil
}

func configShowCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)

			configPath, err := config.Path()
			if err != nil {
				return err
			}
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				render.Warnf("No config file found. Run 'openwebui config init' first.")
				return fmt.Errorf("no config file")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if render.structured() {
				return render.Emit(cfg)
			}

			render.Fieldf("Config file", "%s", configPath)
			fmt.Println()

			rows := make([][]string, 0, len(cfg.Profiles))
			for name, profile := range cfg.Profiles {
				isDefault := ""
				if name == cfg.DefaultProfile {
					isDefault = "*"
				}
				rows = append(rows, []string{name, profile.URI, isDefault})
			}
			render.Table("Profiles", []string{"NAME", "URI", "DEFAULT"}, rows)

			fmt.Println()
			render.Fieldf("Defaults", "")
			render.Infof("  Model: %s", valueOr(cfg.Defaults.Model, "(not set)"))
			render.Infof("  Format: %s", cfg.Defaults.Format)
			render.Infof("  Stream: %t", cfg.Defaults.Stream)
			render.Infof("  Timeout: %ds", cfg.Defaults.Timeout)
			return nil
		},
	}
}

func configSetCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value using dot notation.

Examples:
  openwebui config set defaults.model mistral
  openwebui config set defaults.timeout 60
  openwebui config set profiles.prod.uri https://prod.example.com
  openwebui config set output.colors false`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			render := newRenderer(opts)
			key, value := args[0], args[1]

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return api.Usagef("error setting %s: %v", key, err)
			}
			if err := config.Save(cfg); err != nil {
				return err
			}
			render.Successf("Set %s = %s", key, value)
			return nil
		},
	}
}

func configGetCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value using dot notation.

Prints just the value, suitable for scripting.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return api.Usagef("error getting %s: %v", args[0], err)
			}
			fmt.Println(value)
			return nil
		},
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// setConfigValue applies a dot-notation assignment: defaults.<field>,
// output.<field>, or profiles.<name>.uri.
func setConfigValue(cfg *config.Config, key, value string) error {
	parts := strings.Split(key, ".")

	switch {
	case len(parts) == 2 && parts[0] == "defaults":
		switch parts[1] {
		case "model":
			cfg.Defaults.Model = value
		case "format":
			if value != "text" && value != "json" && value != "yaml" {
				return fmt.Errorf("format must be 'text', 'json', or 'yaml'")
			}
			cfg.Defaults.Format = value
		case "stream":
			cfg.Defaults.Stream = parseBool(value)
		case "timeout":
			timeout, err := strconv.Atoi(value)
			if err != nil || timeout <= 0 {
				return fmt.Errorf("timeout must be a positive integer")
			}
			cfg.Defaults.Timeout = timeout
		default:
			return fmt.Errorf("unknown defaults field: %s", parts[1])
		}
		return nil

	case len(parts) == 2 && parts[0] == "output":
		switch parts[1] {
		case "colors":
			cfg.Output.Colors = parseBool(value)
		case "progress_bars":
			cfg.Output.ProgressBars = parseBool(value)
		case "timestamps":
			cfg.Output.Timestamps = parseBool(value)
		default:
			return fmt.Errorf("unknown output field: %s", parts[1])
		}
		return nil

	case len(parts) == 3 && parts[0] == "profiles":
		if parts[2] != "uri" {
			return fmt.Errorf("profile field must be 'uri', got %q", parts[2])
		}
		if err := config.ValidateURI(value); err != nil {
			return err
		}
		if cfg.Profiles == nil {
			cfg.Profiles = map[string]config.Profile{}
		}
		cfg.Profiles[parts[1]] = config.Profile{URI: value}
		return nil

	default:
		return fmt.Errorf("key format: section.field or profiles.<name>.uri (e.g., 'defaults.model')")
	}
}

// getConfigValue reads a dot-notation key. profiles.<name> is shorthand for
// profiles.<name>.uri.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	parts := strings.Split(key, ".")

	switch {
	case len(parts) == 2 && parts[0] == "defaults":
		switch parts[1] {
		case "model":
			return cfg.Defaults.Model, nil
		case "format":
			return cfg.Defaults.Format, nil
		case "stream":
			return strconv.FormatBool(cfg.Defaults.Stream), nil
		case "timeout":
			return strconv.Itoa(cfg.Defaults.Timeout), nil
		default:
			return "", fmt.Errorf("unknown field: %s", parts[1])
		}

	case len(parts) == 2 && parts[0] == "output":
		switch parts[1] {
		case "colors":
			return strconv.FormatBool(cfg.Output.Colors), nil
		case "progress_bars":
			return strconv.FormatBool(cfg.Output.ProgressBars), nil
		case "timestamps":
			return strconv.FormatBool(cfg.Output.Timestamps), nil
		default:
			return "", fmt.Errorf("unknown field: %s", parts[1])
		}

	case len(parts) == 2 && parts[0] == "profiles":
		profile, ok := cfg.Profiles[parts[1]]
		if !ok {
			return "", fmt.Errorf("unknown profile: %s", parts[1])
		}
		return profile.URI, nil

	case len(parts) == 3 && parts[0] == "profiles":
		if parts[2] != "uri" {
			return "", fmt.Errorf("unknown field: %s", parts[2])
		}
		profile, ok := cfg.Profiles[parts[1]]
		if !ok {
			return "", fmt.Errorf("unknown profile: %s", parts[1])
		}
		return profile.URI, nil

	default:
		return "", fmt.Errorf("key format: section.field or profiles.<name>.uri (e.g., 'defaults.model')")
	}
}
