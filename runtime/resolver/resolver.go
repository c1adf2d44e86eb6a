// Package resolver turns an authored step into a dispatchable one: location
// names become registered location values, payload references become payload
// values and the run-results placeholder becomes the run's result directory.
// Resolution is a pure, deterministic, single pass per step - it never
// mutates the workflow's persisted step.
package resolver

import (
	"fmt"

	"github.com/labkit/workcell/model"
)

// RunResultsArg is the literal argument value replaced with the run's
// absolute result-directory path.
const RunResultsArg = "local_run_results"

// payloadPrefix is the canonical prefix of a payload reference.
const payloadPrefix = "payload."

// ResolvedStep is a step whose arguments contain only literal values, plus a
// side map recording which argument keys were satisfied by location
// substitution (conventionally source/target).
type ResolvedStep struct {
	// Step is the authored step the resolution was produced from
	Step *model.Step

	// Args holds the fully resolved argument values
	Args map[string]interface{}

	// Locations maps argument key to the pre-substitution location name
	Locations map[string]string
}

// ResolutionError reports malformed special-argument usage within one step.
// It aborts run construction - no dispatch happens for a step the resolver
// rejects.
type ResolutionError struct {
	Step   string
	Detail string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("step %s: %s", e.Step, e.Detail)
}

// Resolve produces a ResolvedStep for one authored step against the bound
// workcell, the run payload and the run's result directory.
//
// Missing payload keys are intentionally lax: an arg referencing an unknown
// payload key passes through as a literal string and is left to a
// higher-level workflow linter.
func Resolve(step *model.Step, cell *model.Workcell, payload map[string]interface{}, resultDir string) (*ResolvedStep, error) {
	resolved := &ResolvedStep{
		Step:      step,
		Args:      step.CloneArgs(),
		Locations: make(map[string]string),
	}

	// Location substitution: an arg value that textually matches a location
	// name registered for the step's module is replaced with the registered
	// location value.
	if locations := cell.ModuleLocations(step.Module); len(locations) > 0 {
		for key, value := range resolved.Args {
			name := fmt.Sprint(value)
			if registered, ok := locations[name]; ok {
				resolved.Locations[key] = name
				resolved.Args[key] = registered
			}
		}
	}

	// Payload injection: an arg value equal to "payload.<key>" is replaced
	// with the payload value.  A step without args is a no-op, not an error.
	if len(payload) > 0 && len(resolved.Args) > 0 {
		for payloadKey, payloadValue := range payload {
			reference := payloadPrefix + payloadKey
			for key, value := range resolved.Args {
				if text, ok := value.(string); ok && text == reference {
					resolved.Args[key] = payloadValue
				}
			}
		}
	}

	// Result-directory injection: at most one arg may carry the
	// run-results placeholder; a second occurrence is a configuration
	// error, not a precedence guess.
	var resultKey string
	for key, value := range resolved.Args {
		if text, ok := value.(string); ok && text == RunResultsArg {
			if resultKey != "" {
				return nil, &ResolutionError{
					Step:   step.Name,
					Detail: fmt.Sprintf("%q used by both %s and %s; at most one argument may reference the run results directory", RunResultsArg, resultKey, key),
				}
			}
			resultKey = key
		}
	}
	if resultKey != "" {
		resolved.Args[resultKey] = resultDir
	}

	return resolved, nil
}
