package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/bissakov/qazcode-rpa-sub001/internal/graph"
)

// Error code constants shared by every command. Graph and compile codes
// (E0xx/E1xx/W0xx, C0xx) come from the compiler and pass through as-is.
const (
	ErrCodeGeneric     = "L001" // Generic/unknown error
	ErrCodeNotFound    = "L002" // Path not found
	ErrCodeFormat      = "L003" // Unsupported file extension
	ErrCodeParseFailed = "L004" // JSON/YAML/CUE syntax error
	ErrCodeDecode      = "L005" // Document does not describe a project
	ErrCodeInvalid     = "L006" // Struct validation failed
	ErrCodeWriteFailed = "L007" // File write error
	ErrCodeDatabase    = "L008" // Run history unavailable
	ErrCodeConfig      = "L009" // Run config unreadable
)

// LoadError represents an error that occurred while loading a project file.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SupportedExtensions lists the project file extensions LoadProject accepts.
var SupportedExtensions = []string{".rpa", ".json", ".yaml", ".yml", ".cue"}

// LoadProject reads a project from path. The format follows the file
// extension:
//
//	.rpa, .json  JSON
//	.yaml, .yml  YAML
//	.cue         CUE, evaluated to a concrete value
//
// The decoded document goes through graph.Decode and graph.Check, so a
// returned project has the right shape. Graph rules are left to
// compiler.Validate.
func LoadProject(path string) (*graph.Project, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "project file not found", Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: fmt.Sprintf("reading project file: %v", err), Err: err}
	}

	raw, err := parseDocument(path, data)
	if err != nil {
		return nil, err
	}

	project, err := graph.Decode(raw)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Path: path, Message: err.Error(), Err: err}
	}
	if err := graph.Check(project); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Path: path, Message: err.Error(), Err: err}
	}
	return project, nil
}

// parseDocument turns file bytes into the generic map graph.Decode takes.
func parseDocument(path string, data []byte) (any, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		raw any
		err error
	)
	switch ext {
	case ".rpa", ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".cue":
		raw, err = evalCUE(path, data)
	default:
		return nil, &LoadError{
			Code:    ErrCodeFormat,
			Path:    path,
			Message: fmt.Sprintf("unsupported extension %q (want one of %s)", ext, strings.Join(SupportedExtensions, ", ")),
		}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Path: path, Message: err.Error(), Err: err}
	}
	return raw, nil
}

// evalCUE compiles a single CUE file and decodes the result. The value
// must be concrete: every field a project needs has to be resolved.
func evalCUE(path string, data []byte) (any, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE value is not concrete: %w", err)
	}

	var raw any
	if err := value.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding CUE value: %w", err)
	}
	return raw, nil
}

// loadErrorCode returns the code carried by err, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}
