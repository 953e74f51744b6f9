package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	LogFile string

	// Logger is built in PersistentPreRunE from the flags above.
	Logger *slog.Logger

	closeLog func() error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the rpa CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rpa",
		Short: "rpa - workflow compiler and runner",
		Long: `Compile and run RPA workflow projects.

A project is a set of scenarios, each a graph of activities joined by
connections. Projects are read from .rpa, .json, .yaml or .cue files,
validated, compiled to a flat instruction program and run on a virtual
machine.`,
		Version:       ir.EngineVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			logger, closeLog, err := newLogger(cmd.ErrOrStderr(), opts.Verbose, opts.LogFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to set up logging", err)
			}
			opts.Logger = logger
			opts.closeLog = closeLog
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "also write JSON logs to this file")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewLogsCommand(opts))

	return cmd, opts
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if opts.closeLog != nil {
		if cerr := opts.closeLog(); cerr != nil {
			fmt.Fprintf(stderr, "closing log file: %v\n", cerr)
		}
	}
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	if !isReported(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}

// logger returns the configured logger, or slog.Default when the command
// runs without the root's PersistentPreRunE (unit tests of subcommands).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
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
