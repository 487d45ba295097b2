package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/app"
	"github.com/roach88/stockbook/internal/config"
)

// RootOptions holds global flags for all commands, and the application
// context built from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// NewApp builds the application context. Tests replace it to pin the
	// clock and ids; nil means app.New.
	NewApp func(cfg config.Config, console io.Writer) (*app.App, error)

	app     *app.App
	traceID string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stockbook CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockbook",
		Short: "stockbook - inventory and sales for a small shop",
		Long: `stockbook keeps a product catalog, records sales against stock and
manages backups of its single-file store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app != nil {
				return opts.app.Close()
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errUsage("%v", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the store file (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSaleCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))
	cmd.AddCommand(NewCategoryCommand(opts))
	cmd.AddCommand(NewProfileCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// setup loads configuration, applies flag overrides and builds the app.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Store = o.Database
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}

	newApp := o.NewApp
	if newApp == nil {
		newApp = app.New
	}
	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}

	o.traceID = newTraceID()
	a.Logger = a.Logger.With(zap.String("trace_id", o.traceID))
	a.Logger.Debug("command started",
		zap.String("command", cmd.CommandPath()),
		zap.String("store", cfg.Store),
	)
	o.app = a
	return nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
		TraceID:   o.traceID,
	}
}

func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
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

// Execute runs the command tree with args and reports any error through the
// output envelope. It returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	return execute(&RootOptions{}, args, stdout, stderr)
}

func execute(opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return report(cmd, opts, cmd.Execute())
}

func report(cmd *cobra.Command, opts *RootOptions, err error) int {
	if err == nil {
		return ExitSuccess
	}
	var silent *silentExit
	if errors.As(err, &silent) {
		if opts.app != nil {
			_ = opts.app.Close()
		}
		return silent.code
	}
	f := opts.formatter(cmd)
	if !isValidFormat(f.Format) {
		f.Format = "text"
	}
	if f.Format == "text" {
		f.Writer = cmd.ErrOrStderr()
	}
	if opts.app != nil {
		opts.app.Logger.Debug("command failed", zap.Error(err))
		_ = opts.app.Close()
	}
	_ = f.Fail(err)
	return GetExitCode(err)
}
