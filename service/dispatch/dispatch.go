// Package dispatch sends resolved steps to modules.  A Registry maps a
// module's declared interface type to a Dispatcher capability; REST, TCP and
// simulated adapters are provided.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labkit/workcell/model"
	"github.com/labkit/workcell/model/protocol"
	"github.com/labkit/workcell/runtime/resolver"
)

// Dispatcher sends one resolved step to one module and returns the module's
// step response.  Transport-level failures are returned as errors (see
// errors.go for the taxonomy); a module's logical failure is data inside the
// response, never an error.
type Dispatcher interface {
	Dispatch(ctx context.Context, step *resolver.ResolvedStep, module *model.Module) (*protocol.StepResponse, error)
}

// Config bounds the dispatch transports.
type Config struct {
	// Timeout caps one dispatch attempt, connection included
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries bounds retries of transient network failures
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`

	// RetryDelay is the pause between network retry attempts
	RetryDelay time.Duration `json:"retryDelay" yaml:"retryDelay"`

	// BusyRetries bounds retries when the module reports its action lock
	// is held; once exhausted ErrModuleBusy surfaces to the caller
	BusyRetries int `json:"busyRetries" yaml:"busyRetries"`

	// BusyDelay is the backoff between busy retries
	BusyDelay time.Duration `json:"busyDelay" yaml:"busyDelay"`
}

// DefaultConfig returns the default dispatch configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		RetryDelay:  time.Second,
		BusyRetries: 5,
		BusyDelay:   2 * time.Second,
	}
}

// Registry maps module interface types to dispatchers.
type Registry struct {
	mu      sync.RWMutex
	entries map[model.ModuleInterface]Dispatcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[model.ModuleInterface]Dispatcher)}
}

// DefaultRegistry returns a registry with the REST, TCP and simulated
// adapters registered under their canonical interface names.
func DefaultRegistry(config Config) *Registry {
	registry := NewRegistry()
	registry.Register(model.InterfaceREST, NewREST(config))
	registry.Register(model.InterfaceTCP, NewTCP(config))
	registry.Register(model.InterfaceSimulated, NewSimulated())
	return registry
}

// Register binds a dispatcher to an interface type, replacing any previous
// binding.
func (r *Registry) Register(iface model.ModuleInterface, dispatcher Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[iface] = dispatcher
}

// Lookup returns the dispatcher for an interface type.
func (r *Registry) Lookup(iface model.ModuleInterface) (Dispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dispatcher, ok := r.entries[iface]
	if !ok {
		return nil, fmt.Errorf("no dispatcher registered for interface %q", iface)
	}
	return dispatcher, nil
}
