package dispatch

import (
	"context"
	"fmt"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/model/protocol"
	"github.com/labkit/workcell/runtime/resolver"
)

// Simulated returns a synthetic success without any network call.  It backs
// dry runs and CI execution: a run flagged simulate uses it for every
// module regardless of the declared interface.
type Simulated struct{}

var _ Dispatcher = (*Simulated)(nil)

// NewSimulated creates a simulated dispatcher.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Dispatch fabricates a successful outcome naming the step and command.
func (d *Simulated) Dispatch(_ context.Context, step *resolver.ResolvedStep, module *model.Module) (*protocol.StepResponse, error) {
	return protocol.Succeeded(
		fmt.Sprintf("simulated %s on module %s", step.Step.Command, module.Name),
		fmt.Sprintf("simulated step %s: command %s args %v", step.Step.Name, step.Step.Command, step.Args),
	), nil
}
