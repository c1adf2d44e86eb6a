// Package node is the module-side framework: it hosts the action-lock state
// machine that admits one action at a time, an explicit action registry and
// the HTTP and TCP surfaces modules expose to the workflow engine.  Device
// logic plugs in as action handlers; everything else - admission, status
// publication, exception funneling - is handled here.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/labkit/workcell/model/protocol"
)

// Node is one module service instance.
type Node struct {
	name          string
	model         string
	description   string
	iface         string
	resourcePools []string
	adminCommands []string

	state   *State
	actions []*Action

	startup  func(ctx context.Context) error
	shutdown func(ctx context.Context) error

	logger *slog.Logger
}

// Option customises a node.
type Option func(*Node)

// WithModel sets the instrument model the node controls.
func WithModel(model string) Option {
	return func(n *Node) { n.model = model }
}

// WithDescription sets the human-readable node description.
func WithDescription(description string) Option {
	return func(n *Node) { n.description = description }
}

// WithInterface overrides the advertised interface name.
func WithInterface(iface string) Option {
	return func(n *Node) { n.iface = iface }
}

// WithAction registers an action.
func WithAction(action *Action) Option {
	return func(n *Node) { n.actions = append(n.actions, action) }
}

// WithResourcePools sets the resource pools advertised through /about and
// /resources.
func WithResourcePools(pools ...string) Option {
	return func(n *Node) { n.resourcePools = pools }
}

// WithAdminCommands sets the admin commands advertised through /about.
func WithAdminCommands(commands ...string) Option {
	return func(n *Node) { n.adminCommands = commands }
}

// WithStartup sets the device startup routine, run asynchronously by Start.
func WithStartup(startup func(ctx context.Context) error) Option {
	return func(n *Node) { n.startup = startup }
}

// WithShutdown sets the device teardown routine, run by Stop.
func WithShutdown(shutdown func(ctx context.Context) error) Option {
	return func(n *Node) { n.shutdown = shutdown }
}

// WithLogger sets the node logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// New creates a node.  The node starts in INIT and stays there until Start's
// background startup routine completes.
func New(name string, options ...Option) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node: a unique name is required")
	}
	n := &Node{
		name:   name,
		iface:  "rest",
		state:  NewState(),
		logger: slog.Default(),
	}
	for _, option := range options {
		option(n)
	}
	seen := map[string]bool{}
	for _, action := range n.actions {
		if action.Name == "" || action.Handler == nil {
			return nil, fmt.Errorf("node %s: action with empty name or nil handler", name)
		}
		if seen[action.Name] {
			return nil, fmt.Errorf("node %s: duplicate action %s", name, action.Name)
		}
		seen[action.Name] = true
	}
	return n, nil
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// State returns the node's status cell.
func (n *Node) State() *State { return n.state }

// Start launches the startup routine off the request-handling path so the
// status endpoint is reachable immediately, reporting INIT until the device
// is up.  A startup failure moves the node to ERROR.
func (n *Node) Start(ctx context.Context) {
	go func() {
		if n.startup != nil {
			if err := n.startup(ctx); err != nil {
				n.logger.Error("startup failed", "node", n.name, "error", err)
				n.state.Fail(fmt.Errorf("startup: %w", err))
				return
			}
		}
		n.state.Ready()
		n.logger.Info("startup complete", "node", n.name)
	}()
}

// Stop runs the shutdown routine, funneling any failure into ERROR.
func (n *Node) Stop(ctx context.Context) {
	if n.shutdown == nil {
		return
	}
	if err := n.shutdown(ctx); err != nil {
		n.logger.Error("shutdown failed", "node", n.name, "error", err)
		n.state.Fail(fmt.Errorf("shutdown: %w", err))
	}
}

// Lookup returns the registered action with the given name, nil when absent.
func (n *Node) Lookup(name string) *Action {
	for _, action := range n.actions {
		if action.Name == name {
			return action
		}
	}
	return nil
}

// Execute admits and runs one action under the action lock.
//
// A *ConflictError is returned without touching state when the lock is
// unavailable.  An unknown action name yields a failed step response inside
// a normal acquire/release pair.  A handler error or panic transitions the
// node to ERROR and yields a failed step response with diagnostic log text -
// the lock is implicitly released because no further actions are admitted in
// ERROR anyway.
func (n *Node) Execute(ctx context.Context, request *protocol.ActionRequest) (response *protocol.StepResponse, err error) {
	if err := n.state.Acquire(); err != nil {
		return nil, err
	}

	action := n.Lookup(request.Name)
	if action == nil {
		n.state.Release()
		return protocol.Failed(
			fmt.Sprintf("action %q not found", request.Name),
			fmt.Sprintf("action %q not found; available: %v", request.Name, n.actionNames()),
		), nil
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			failure := fmt.Errorf("panic in action %s: %v", request.Name, recovered)
			n.state.Fail(failure)
			response = protocol.Failed(failure.Error(), fmt.Sprintf("args: %v", request.Args))
			err = nil
		}
	}()

	result, handlerErr := action.Handler(ctx, request)
	if handlerErr != nil {
		n.state.Fail(handlerErr)
		return protocol.Failed(
			fmt.Sprintf("action %s failed: %v", request.Name, handlerErr),
			fmt.Sprintf("exception while processing action %q with args %v: %v", request.Name, request.Args, handlerErr),
		), nil
	}

	n.state.Release()
	if result == nil || !result.Status.Valid() {
		result = protocol.Succeeded(fmt.Sprintf("action %s completed", request.Name), "")
	}
	return result, nil
}

// About returns the module capability descriptor.
func (n *Node) About() *About {
	status := &About{
		Name:          n.name,
		Model:         n.model,
		Interface:     n.iface,
		Description:   n.description,
		Actions:       n.actions,
		ResourcePools: n.resourcePools,
		AdminCommands: n.adminCommands,
	}
	return status
}

// Report returns the status document served at /state.
func (n *Node) Report() *StateReport {
	status, errText := n.state.Status()
	return &StateReport{Status: status, Error: errText}
}

// IsConflict reports whether the error is an action-lock conflict.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

func (n *Node) actionNames() []string {
	names := make([]string, 0, len(n.actions))
	for _, action := range n.actions {
		names = append(names, action.Name)
	}
	sort.Strings(names)
	return names
}
