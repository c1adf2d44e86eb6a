package model

import (
	"fmt"
)

// ModuleInterface identifies the protocol a module speaks.  The dispatch
// registry selects a protocol adapter based on this value.
type ModuleInterface string

const (
	// InterfaceREST dispatches actions as HTTP POST requests to the
	// module's /action endpoint.
	InterfaceREST ModuleInterface = "rest"

	// InterfaceTCP dispatches actions as framed messages over a raw TCP
	// connection.
	InterfaceTCP ModuleInterface = "tcp"

	// InterfaceSimulated short-circuits dispatch with a synthetic success,
	// used for dry runs and CI.
	InterfaceSimulated ModuleInterface = "simulated"
)

// Module describes one networked hardware-control service registered in a
// workcell.  Modules are immutable after the workcell is loaded.
type Module struct {
	// Name is the unique identifier of the module within a workcell
	Name string `json:"name" yaml:"name"`

	// Interface selects the protocol adapter used to reach the module
	Interface ModuleInterface `json:"interface" yaml:"interface"`

	// Model names the instrument or resource the module controls
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Config holds address, port and interface specific settings
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// Address returns the module's configured address ("" when absent).  For
// REST modules this is a base URL, for TCP modules a host name or IP.
func (m *Module) Address() string {
	if m == nil || m.Config == nil {
		return ""
	}
	if v, ok := m.Config["address"]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Port returns the module's configured port, 0 when absent.
func (m *Module) Port() int {
	if m == nil || m.Config == nil {
		return 0
	}
	switch v := m.Config["port"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var port int
		_, _ = fmt.Sscanf(v, "%d", &port)
		return port
	}
	return 0
}

// Workcell is the registry of modules and their named locations available to
// workflows.  It is loaded once per server lifetime and treated as read-only
// during execution; location-occupancy bookkeeping is kept outside of it.
type Workcell struct {
	// Name identifies the workcell
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Modules lists the hardware-control services in this workcell
	Modules []*Module `json:"modules" yaml:"modules"`

	// Locations maps module name to a mapping of location name to the
	// opaque value a location name resolves to (a coordinate, a slot
	// index, a deck position - the engine never interprets it)
	Locations map[string]map[string]interface{} `json:"locations,omitempty" yaml:"locations,omitempty"`
}

// FindModule returns the module with the given name, nil when absent.
func (w *Workcell) FindModule(name string) *Module {
	if w == nil {
		return nil
	}
	for _, module := range w.Modules {
		if module.Name == name {
			return module
		}
	}
	return nil
}

// ModuleLocations returns the named locations registered for a module, nil
// when the module has none.
func (w *Workcell) ModuleLocations(module string) map[string]interface{} {
	if w == nil || w.Locations == nil {
		return nil
	}
	return w.Locations[module]
}

// Validate performs a best-effort structural validation of the workcell.
// The returned slice is empty when the workcell is sound.
func (w *Workcell) Validate() []error {
	var issues []error
	seen := map[string]bool{}
	for _, module := range w.Modules {
		if module.Name == "" {
			issues = append(issues, fmt.Errorf("module with empty name"))
			continue
		}
		if seen[module.Name] {
			issues = append(issues, fmt.Errorf("duplicate module %s", module.Name))
		}
		seen[module.Name] = true
		switch module.Interface {
		case InterfaceREST, InterfaceTCP, InterfaceSimulated:
		case "":
			issues = append(issues, fmt.Errorf("module %s has no interface", module.Name))
		default:
			issues = append(issues, fmt.Errorf("module %s has unknown interface %s", module.Name, module.Interface))
		}
	}
	for moduleName := range w.Locations {
		if !seen[moduleName] {
			issues = append(issues, fmt.Errorf("locations declared for unknown module %s", moduleName))
		}
	}
	return issues
}
