package node

import (
	"context"

	"github.com/labkit/workcell/model/protocol"
)

// HandlerFunc implements one module action.  A returned error is treated as
// an unrecoverable exception: the module transitions to ERROR and the caller
// receives a failed step response with diagnostic log text.
type HandlerFunc func(ctx context.Context, request *protocol.ActionRequest) (*protocol.StepResponse, error)

// ActionArg declares one argument of an action.  Schemas are declared data,
// not derived from handler signatures by reflection.
type ActionArg struct {
	Name        string      `json:"name"`
	Type        string      `json:"type,omitempty"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Action is one registered (name, handler, argument schema) entry.  A node
// builds its ordered action list at construction time; dispatch looks up by
// name.
type Action struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Args        []ActionArg `json:"args,omitempty"`
	Files       []string    `json:"files,omitempty"`
	Handler     HandlerFunc `json:"-"`
}

// About is the module capability descriptor served at /about.
type About struct {
	Name          string    `json:"name"`
	Model         string    `json:"model,omitempty"`
	Interface     string    `json:"interface"`
	Description   string    `json:"description,omitempty"`
	Actions       []*Action `json:"actions"`
	ResourcePools []string  `json:"resource_pools,omitempty"`
	AdminCommands []string  `json:"admin_commands,omitempty"`
}

// StateReport is the status document served at /state.
type StateReport struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}
