// Package cli builds the openwebui command tree.
package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/open-webui/openwebui-cli/internal/api"
)

// Options carries the global flags from the entry point into every handler.
// It is populated once by the root command and treated as read-only below it.
type Options struct {
	Profile string
	URI     string
	Token   string
	Format  string
	Timeout int // seconds; 0 means use the configured default
	Quiet   bool
	Verbose bool
}

func (o *Options) clientOptions() api.ClientOptions {
	return api.ClientOptions{
		Profile: o.Profile,
		URI:     o.URI,
		Token:   o.Token,
		Timeout: time.Duration(o.Timeout) * time.Second,
	}
}

// NewRootCmd builds the root command with global flags and all subcommands.
func NewRootCmd(version string) *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "openwebui",
		Short: "CLI for OpenWebUI",
		Long: `OpenWebUI CLI - interact with your OpenWebUI instance from the command line.

Environment variables:
  OPENWEBUI_URI       Server URI (overrides config file)
  OPENWEBUI_TOKEN     Bearer token (overrides keyring)
  OPENWEBUI_PROFILE   Profile name (overrides default_profile)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.Verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.Profile, "profile", "P", "", "Use named profile")
	rootCmd.PersistentFlags().StringVarP(&opts.URI, "uri", "U", "", "Server URI (overrides env and config)")
	rootCmd.PersistentFlags().StringVar(&opts.Token, "token", "", "Bearer token (overrides env and keyring)")
	rootCmd.PersistentFlags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().IntVarP(&opts.Timeout, "timeout", "t", 0, "Request timeout in seconds")
	rootCmd.PersistentFlags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&opts.Verbose, "verbose", false, "Enable debug logging")
	AddHelpJSONFlag(rootCmd)

	// Bad flags are usage errors, exit code 2.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return api.Usagef("%v", err)
	})

	rootCmd.AddCommand(AuthCmd(opts))
	rootCmd.AddCommand(ChatCmd(opts))
	rootCmd.AddCommand(ModelsCmd(opts))
	rootCmd.AddCommand(RagCmd(opts))
	rootCmd.AddCommand(AdminCmd(opts))
	rootCmd.AddCommand(ConfigCmd(opts))

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute(version string) int {
	_ = godotenv.Load()

	rootCmd := NewRootCmd(version)
	CheckHelpJSON(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		errorLine(os.Stderr, err)
		return api.ExitCode(err)
	}
	return api.ExitSuccess
}

// exactArgs is cobra.ExactArgs with the failure classified as a usage error
// so a wrong argument count exits 2, same as a bad flag.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return api.Usagef("%v", err)
		}
		return nil
	}
}

// minimumArgs is cobra.MinimumNArgs with the same usage classification.
func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return api.Usagef("%v", err)
		}
		return nil
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))
}
