package model

import "fmt"

// ConfigurationError reports a workflow/workcell topology mismatch.  It is
// raised when a runner is constructed or a job is submitted, always before
// any dispatch occurs.
type ConfigurationError struct {
	Workflow string
	Module   string
	Detail   string
}

func (e *ConfigurationError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("workflow %s: module %s: %s", e.Workflow, e.Module, e.Detail)
	}
	return fmt.Sprintf("workflow %s: %s", e.Workflow, e.Detail)
}
