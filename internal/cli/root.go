package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/config"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile string
	EnvFile    string

	// Overrides for the resolved configuration. Empty means unset.
	APIURL      string
	EventsURL   string
	JournalPath string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for upscalectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "upscalectl",
		Short: "Live dashboard for the image upscaling pipeline",
		Long: `upscalectl follows the upscaling servers and keeps a consistent view of
every job: pending submissions, jobs in flight with their progress, and
completed results.

It merges the status snapshot, the server-sent event stream, and local
submissions into one projection, whatever order they arrive in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with UPSCALE_* variables")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "producer base URL (overrides "+config.EnvAPIURL+")")
	cmd.PersistentFlags().StringVar(&opts.EventsURL, "events-url", "", "event stream URL (overrides "+config.EnvEventsURL+")")
	cmd.PersistentFlags().StringVar(&opts.JournalPath, "journal", "", "record applied mutations to this SQLite file")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// resolve loads the configuration, applies flag overrides, and installs the
// process logger. Commands that talk to the servers call it first.
func (o *RootOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.Options{File: o.ConfigFile, DotEnv: o.EnvFile})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}
	if o.EventsURL != "" {
		cfg.EventsURL = o.EventsURL
	}
	if o.JournalPath != "" {
		cfg.JournalPath = o.JournalPath
	}
	if o.Verbose {
		cfg.LogLevel = string(logger.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger.Set(logger.New(cmd.ErrOrStderr(), cfg.LogLevel, logger.ParseFormat(cfg.LogFormat)))
	return cfg, nil
}

// formatter returns an OutputFormatter bound to cmd's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
