package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bissakov/qazcode-rpa-sub001/internal/compiler"
	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
	"github.com/bissakov/qazcode-rpa-sub001/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationOutput is the JSON payload of compile.
type CompilationOutput struct {
	Project            string          `json:"project"`
	Hash               string          `json:"hash"`
	Instructions       int             `json:"instructions"`
	EntryPoint         int             `json:"entry_point"`
	RecursiveScenarios []string        `json:"recursive_scenarios,omitempty"`
	OutputFile         string          `json:"output_file,omitempty"`
	Program            json.RawMessage `json:"program,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <project-file>",
		Short: "Compile a project to an instruction program",
		Long: `Validate and compile a project to its flat instruction program.

Text output is a disassembly listing, one instruction per line. JSON
output carries the canonical program encoding and its content hash;
compiling the same project twice always gives the same hash.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	project, program, err := buildProgram(formatter, path)
	if err != nil {
		return err
	}

	hash, err := ir.Hash(program)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash program", err)
	}
	canonical, err := ir.ToCanonical(program)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode program", err)
	}
	listing := ir.Disassemble(program)

	if opts.Output != "" {
		content := []byte(listing)
		if formatter.Format == "json" {
			content = canonical
		}
		if err := os.WriteFile(opts.Output, content, 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return &ExitError{Code: ExitCommandError, Message: "failed to write output", Err: err, Reported: true}
		}
	}

	if formatter.Format == "json" {
		out := CompilationOutput{
			Project:            project.Name,
			Hash:               hash,
			Instructions:       program.Len(),
			EntryPoint:         program.EntryPoint,
			RecursiveScenarios: program.RecursiveScenarios,
			OutputFile:         opts.Output,
		}
		if opts.Output == "" {
			out.Program = canonical
		}
		return formatter.Success(out)
	}

	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %q: %d instructions, hash %s\n", project.Name, program.Len(), hash)
		fmt.Fprintf(formatter.Writer, "  Written to %s\n", opts.Output)
		return nil
	}
	fmt.Fprint(formatter.Writer, listing)
	fmt.Fprintf(formatter.Writer, "; hash %s\n", hash)
	return nil
}

// buildProgram runs load, validate and compile, printing whatever fails.
func buildProgram(formatter *OutputFormatter, path string) (*graph.Project, *ir.Program, error) {
	project, err := LoadProject(path)
	if err != nil {
		return nil, nil, outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded project %q with %d scenario(s)", project.Name, len(project.AllScenarios()))

	if err := validateForBuild(formatter, project); err != nil {
		return nil, nil, err
	}

	program, err := compiler.Compile(project)
	if err != nil {
		return nil, nil, outputCompileErrors(formatter, err)
	}
	formatter.VerboseLog("Compiled %d instruction(s), entry point %d", program.Len(), program.EntryPoint)
	return project, program, nil
}

// outputCompileErrors prints every CompileError in err.
func outputCompileErrors(formatter *OutputFormatter, err error) error {
	var all *compiler.Errors
	errs := []*compiler.CompileError{}
	if errors.As(err, &all) {
		errs = all.Errs
	} else {
		var one *compiler.CompileError
		if errors.As(err, &one) {
			errs = append(errs, one)
		}
	}

	if formatter.Format == "json" {
		code, msg := "C000", err.Error()
		if len(errs) > 0 {
			code, msg = errs[0].Code, errs[0].Message
		}
		_ = formatter.Error(code, msg, errs)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		if len(errs) == 0 {
			fmt.Fprintf(formatter.Writer, "  %v\n", err)
		}
		for _, e := range errs {
			fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
		}
	}
	return &ExitError{Code: ExitFailure, Message: "compilation failed", Err: err, Reported: true}
}
