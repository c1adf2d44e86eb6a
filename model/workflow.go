package model

import (
	"fmt"
)

// Step represents one action invocation within a workflow: a command sent to
// a single module with a set of arguments.  Steps are authored data; the
// argument resolver produces a resolved copy per run and never mutates the
// persisted step.
type Step struct {
	// Name is the unique identifier of the step within a workflow
	Name string `json:"name" yaml:"name"`

	// Module names the workcell module this step targets
	Module string `json:"module" yaml:"module"`

	// Command is the action handle looked up in the module's action registry
	Command string `json:"command" yaml:"command"`

	// Args may contain literal values, location-name references or payload
	// references ("payload.<key>")
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`

	// Files lists file references streamed to the module alongside the action
	Files []string `json:"files,omitempty" yaml:"files,omitempty"`

	// HaltOnFailure aborts the remaining sequence when this step reports a
	// logical failure; the default is to continue so that downstream
	// cleanup steps still run
	HaltOnFailure bool `json:"haltOnFailure,omitempty" yaml:"haltOnFailure,omitempty"`
}

// CloneArgs returns a shallow copy of the step's argument map so that a
// resolver can substitute values without touching the authored step.
func (s *Step) CloneArgs() map[string]interface{} {
	if s.Args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(s.Args))
	for k, v := range s.Args {
		out[k] = v
	}
	return out
}

// Workflow represents a declarative, sequential workflow definition: the set
// of modules it uses and an ordered flow of steps.
type Workflow struct {
	// Name is the unique identifier for the workflow
	Name string `json:"name" yaml:"name"`

	// Version specifies the workflow version
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Modules lists the module names this workflow declares as used; every
	// step's module must appear here and in the bound workcell
	Modules []string `json:"modules" yaml:"modules"`

	// Flowdef is the ordered sequence of steps
	Flowdef []*Step `json:"flowdef" yaml:"flowdef"`

	// HaltOnFailure aborts the run on the first logical step failure
	HaltOnFailure bool `json:"haltOnFailure,omitempty" yaml:"haltOnFailure,omitempty"`
}

// DeclaresModule reports whether the workflow lists the module as used.
func (w *Workflow) DeclaresModule(name string) bool {
	for _, candidate := range w.Modules {
		if candidate == name {
			return true
		}
	}
	return false
}

// Validate performs a best-effort structural validation of the workflow.
// The returned slice is empty when the workflow is sound.  The function does
// not consult any workcell - cross checking against a workcell is Bind's job.
func (w *Workflow) Validate() []error {
	var issues []error
	if len(w.Flowdef) == 0 {
		issues = append(issues, fmt.Errorf("flowdef is empty"))
		return issues
	}
	seen := map[string]bool{}
	for _, step := range w.Flowdef {
		if step.Name == "" {
			issues = append(issues, fmt.Errorf("step with empty name"))
			continue
		}
		if seen[step.Name] {
			issues = append(issues, fmt.Errorf("duplicate step %s", step.Name))
		}
		seen[step.Name] = true
		if step.Module == "" {
			issues = append(issues, fmt.Errorf("step %s has no module", step.Name))
		} else if !w.DeclaresModule(step.Module) {
			issues = append(issues, fmt.Errorf("step %s uses undeclared module %s", step.Name, step.Module))
		}
		if step.Command == "" {
			issues = append(issues, fmt.Errorf("step %s has no command", step.Name))
		}
	}
	return issues
}

// Bind cross-checks the workflow against a workcell: every declared module
// and every step's module must resolve to exactly one workcell module.  A
// violation is a *ConfigurationError - raised before any dispatch so a
// misconfigured run has no partial side effects.
func (w *Workflow) Bind(cell *Workcell) error {
	if cell == nil {
		return &ConfigurationError{Workflow: w.Name, Detail: "no workcell bound"}
	}
	for _, name := range w.Modules {
		if cell.FindModule(name) == nil {
			return &ConfigurationError{Workflow: w.Name, Module: name, Detail: "module not present in workcell"}
		}
	}
	for _, step := range w.Flowdef {
		if !w.DeclaresModule(step.Module) {
			return &ConfigurationError{Workflow: w.Name, Module: step.Module, Detail: fmt.Sprintf("step %s uses undeclared module", step.Name)}
		}
		if cell.FindModule(step.Module) == nil {
			return &ConfigurationError{Workflow: w.Name, Module: step.Module, Detail: fmt.Sprintf("step %s targets module absent from workcell", step.Name)}
		}
	}
	return nil
}
