package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var configValidate = validator.New()

// RunConfig holds engine settings read from a YAML run config. Flags given
// on the command line override it.
type RunConfig struct {
	MaxCallDepth     int           `yaml:"max_call_depth" default:"100" validate:"gte=1"`
	MaxSteps         int           `yaml:"max_steps" validate:"gte=0"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" default:"100ms" validate:"gt=0"`
	DelaySlice       time.Duration `yaml:"delay_slice" default:"50ms" validate:"gt=0"`
	LogCapacity      int           `yaml:"log_capacity" default:"100" validate:"gte=1,lte=10000"`

	// Powershell is the interpreter used for RunPowershell. Empty skips
	// scripts with a warning.
	Powershell string `yaml:"powershell"`

	// Database records the run in SQLite when set.
	Database string `yaml:"database"`

	NodeTrace bool `yaml:"node_trace"`

	// Globals override Global variables, same syntax as --var values.
	Globals map[string]string `yaml:"globals"`
}

// DefaultRunConfig returns a RunConfig with every default applied.
func DefaultRunConfig() RunConfig {
	var cfg RunConfig
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("run config defaults: %v", err))
	}
	return cfg
}

// LoadRunConfig reads a YAML run config. An empty path returns the
// defaults. Fields missing from the file keep their defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("run config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c RunConfig) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation (rule: %s=%s)", fe.Field(), fe.Tag(), fe.Param()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
