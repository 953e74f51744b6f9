package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bissakov/qazcode-rpa-sub001/internal/compiler"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
)

// ValidationOutput is the JSON payload of validate.
type ValidationOutput struct {
	Valid     bool                       `json:"valid"`
	Project   string                     `json:"project"`
	Scenarios int                        `json:"scenarios"`
	Errors    []compiler.ValidationIssue `json:"errors"`
	Warnings  []compiler.ValidationIssue `json:"warnings"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <project-file>",
		Short: "Check a project graph without running it",
		Long: `Check a project for structural problems without compiling it.

Reports missing Start/End nodes, broken connections, dead-end paths,
invalid conditions, unknown scenarios and similar errors, plus warnings
such as uncovered branches, possible use before definition and recursive
scenario calls. Exits 1 when any error is found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	project, err := LoadProject(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded project %q with %d scenario(s)", project.Name, len(project.AllScenarios()))

	res := compiler.Validate(project)
	out := validationOutput(project, res)

	if formatter.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		printIssues(formatter.Writer, res)
		if out.Valid {
			fmt.Fprintf(formatter.Writer, "✓ Project %q is valid (%d warning(s))\n", project.Name, len(out.Warnings))
		}
	}

	if !out.Valid {
		return reportedExit(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(out.Errors)))
	}
	return nil
}

// validateForBuild runs graph validation ahead of compile and run. Errors
// are printed and returned as an ExitFailure; warnings are only printed in
// text mode.
func validateForBuild(formatter *OutputFormatter, project *graph.Project) error {
	res := compiler.Validate(project)
	if !res.HasErrors() {
		if formatter.Format != "json" {
			for _, w := range res.Warnings() {
				fmt.Fprintf(formatter.GetErrWriter(), "%s\n", formatIssue(w))
			}
		}
		return nil
	}

	if formatter.Format == "json" {
		first := res.Errors()[0]
		_ = formatter.Error(first.Code, first.Message, validationOutput(project, res))
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		printIssues(formatter.Writer, res)
	}
	return reportedExit(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(res.Errors())))
}

func validationOutput(project *graph.Project, res *compiler.ValidationResult) ValidationOutput {
	out := ValidationOutput{
		Valid:     !res.HasErrors(),
		Project:   project.Name,
		Scenarios: len(project.AllScenarios()),
		Errors:    res.Errors(),
		Warnings:  res.Warnings(),
	}
	if out.Errors == nil {
		out.Errors = []compiler.ValidationIssue{}
	}
	if out.Warnings == nil {
		out.Warnings = []compiler.ValidationIssue{}
	}
	return out
}

func printIssues(w io.Writer, res *compiler.ValidationResult) {
	for _, issue := range res.Errors() {
		fmt.Fprintln(w, formatIssue(issue))
	}
	for _, issue := range res.Warnings() {
		fmt.Fprintln(w, formatIssue(issue))
	}
}

// formatIssue renders one issue as
//
//	ERROR [E003] scenario main, node n4: ...
func formatIssue(i compiler.ValidationIssue) string {
	label := "WARN "
	if i.Level == compiler.LevelError {
		label = "ERROR"
	}
	switch {
	case i.ScenarioID != "" && i.NodeID != "":
		return fmt.Sprintf("  %s [%s] scenario %s, node %s: %s", label, i.Code, i.ScenarioID, i.NodeID, i.Message)
	case i.ScenarioID != "":
		return fmt.Sprintf("  %s [%s] scenario %s: %s", label, i.Code, i.ScenarioID, i.Message)
	}
	return fmt.Sprintf("  %s [%s] %s", label, i.Code, i.Message)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// outputLoadError prints a LoadProject failure. Unreadable projects are
// command errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code := loadErrorCode(err)
	_ = formatter.Error(code, err.Error(), nil)
	return &ExitError{Code: ExitCommandError, Message: "failed to load project", Err: err, Reported: true}
}
