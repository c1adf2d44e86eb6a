package workcell

import (
	"fmt"

	"github.com/labkit/workcell/service/dispatch"
	"github.com/labkit/workcell/service/processor"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON, YAML, environment variables, etc. The zero-value is
// useful - all nested fields inherit their package defaults.
type Config struct {
	Processor ProcessorConfig `json:"processor" yaml:"processor"`
	Dispatch  dispatch.Config `json:"dispatch" yaml:"dispatch"`

	// RunRoot is the directory run directories are created under
	RunRoot string `json:"runRoot" yaml:"runRoot"`
}

type ProcessorConfig struct {
	WorkerCount int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Processor: ProcessorConfig{
			WorkerCount: processor.DefaultConfig().WorkerCount,
		},
		Dispatch: dispatch.DefaultConfig(),
		RunRoot:  "runs",
	}
}

// Validate returns an aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Processor.WorkerCount <= 0 {
		return fmt.Errorf("processor.workerCount must be > 0")
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be > 0")
	}
	if c.RunRoot == "" {
		return fmt.Errorf("runRoot must not be empty")
	}
	return nil
}
