package cli

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/captable/internal/config"
	"github.com/roach88/captable/internal/logging"
)

// RootOptions holds global flags for all commands and the configuration
// resolved from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	LogLevel   string
	ServiceURL string

	cfg *config.Config
	log zerolog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the captable CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "captable",
		Short: "captable - cap table documents and pro-rata lineage",
		Long: `Inspect and edit startup capitalization table documents.

Documents hold holders, financing rounds and the instruments issued in
each round. Commands validate rounds, resolve pro-rata rights granted in
earlier rounds, apply edits with lineage propagation, and submit documents
to the external computation service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, err := opts.configure(cmd); err != nil {
				return WrapExitError(ExitCommandError, ErrCodeConfig, err)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (trace|debug|info|warn|error|disabled)")
	flags.StringVar(&opts.ServiceURL, "service-url", "", "computation service base URL")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewRightsCommand(opts))
	cmd.AddCommand(NewExerciseCommand(opts))
	cmd.AddCommand(NewAllocateCommand(opts))
	cmd.AddCommand(NewRenameHolderCommand(opts))
	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// configure resolves the configuration from the config file, environment
// and flags, and builds the logger. Later calls return the first result.
func (o *RootOptions) configure(cmd *cobra.Command) (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}

	v := config.New()
	if err := config.ReadFile(v, o.ConfigFile); err != nil {
		return nil, err
	}
	if o.ServiceURL != "" {
		v.Set(config.KeyServiceURL, o.ServiceURL)
	}
	switch {
	case o.LogLevel != "":
		v.Set(config.KeyLogLevel, o.LogLevel)
	case o.Verbose:
		v.Set(config.KeyLogLevel, "debug")
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	o.cfg, o.log = cfg, log
	return cfg, nil
}

// start builds the formatter for cmd and makes sure configuration is
// resolved. Subcommands run without the root (as in tests) configure here.
func (o *RootOptions) start(cmd *cobra.Command) (*OutputFormatter, error) {
	f := &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
	if _, err := o.configure(cmd); err != nil {
		return f, commandError(f, ErrCodeConfig, err.Error(), nil)
	}
	return f, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
