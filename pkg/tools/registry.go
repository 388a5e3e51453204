// Package tools provides the Nautobot tool implementations and the registry
// that exposes them as a capability provider.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
)

// Tool is one invocable inventory operation.
type Tool interface {
	// Name returns the tool identifier.
	Name() string
	// Definition returns the capability descriptor advertised to planners.
	Definition() capability.Capability
	// Exec runs the tool. Domain failures come back inside the result
	// envelope; a non-nil error means the call itself could not complete.
	Exec(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolFactory creates a tool instance bound to a Nautobot client.
type ToolFactory func(client *nautobot.Client) (Tool, error)

// immutableRegistry is the global, read-only tool registry.
type immutableRegistry struct {
	factories map[string]ToolFactory
	mu        sync.RWMutex
	sealed    bool
}

//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	factories: make(map[string]ToolFactory),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(name string, factory ToolFactory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}
	globalRegistry.factories[name] = factory
}

// Seal prevents further tool registrations.
// Called automatically when the first Provider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// Names returns all registered tool names, sorted.
func Names() []string {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	names := make([]string, 0, len(globalRegistry.factories))
	for name := range globalRegistry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFactory(name string) (ToolFactory, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	factory, ok := globalRegistry.factories[name]
	return factory, ok
}

// Provider instantiates an allow-list of registered tools against one
// Nautobot client and serves them as a capability provider.
type Provider struct {
	logger *logx.Logger
	tools  map[string]Tool
	names  []string
}

// NewProvider builds the allowed tools; an empty allow-list exposes
// DefaultTools. Seals the global registry on first use; unknown names fail
// fast so misconfigured allow-lists surface at boot.
func NewProvider(client *nautobot.Client, allowed []string) (*Provider, error) {
	Seal()

	if len(allowed) == 0 {
		allowed = DefaultTools
	}

	p := &Provider{
		logger: logx.NewLogger("tools"),
		tools:  make(map[string]Tool, len(allowed)),
	}
	for _, name := range allowed {
		factory, ok := lookupFactory(name)
		if !ok {
			return nil, fmt.Errorf("tool '%s' not registered", name)
		}
		tool, err := factory(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
		}
		p.tools[name] = tool
		p.names = append(p.names, name)
	}
	sort.Strings(p.names)

	p.logger.Info("🔧 Tool provider ready with %d tools", len(p.names))
	return p, nil
}

// Name identifies this provider in capability backend refs.
func (p *Provider) Name() string {
	return "nautobot-tools"
}

// Discover returns the capability descriptors in stable name order.
func (p *Provider) Discover(_ context.Context) ([]capability.Capability, error) {
	caps := make([]capability.Capability, 0, len(p.names))
	for _, name := range p.names {
		caps = append(caps, p.tools[name].Definition())
	}
	return caps, nil
}

// Invoke executes the named tool.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	tool, ok := p.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not available", name)
	}
	return tool.Exec(ctx, args)
}

// Get returns an instantiated tool by name, for direct in-process use.
func (p *Provider) Get(name string) (Tool, error) {
	tool, ok := p.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool '%s' not available", name)
	}
	return tool, nil
}

//nolint:gochecknoinits // Factory pattern requires init() for tool registration
func init() {
	Register(ToolGetPrefixesByLocation, func(c *nautobot.Client) (Tool, error) {
		return NewPrefixesTool(c)
	})
	Register(ToolExportPrefixesToCSV, func(c *nautobot.Client) (Tool, error) {
		return NewExportPrefixesTool(c)
	})
	Register(ToolAnalyzePrefixes, func(c *nautobot.Client) (Tool, error) {
		return NewAnalyzePrefixesTool(c)
	})
	Register(ToolGetDevicesByLocation, func(c *nautobot.Client) (Tool, error) {
		return NewDevicesByLocationTool(c)
	})
	Register(ToolGetDevicesByLocationAndRole, func(c *nautobot.Client) (Tool, error) {
		return NewDevicesByRoleTool(c)
	})
	Register(ToolGetInterfacesByDevice, func(c *nautobot.Client) (Tool, error) {
		return NewInterfacesTool(c)
	})
	Register(ToolGetCircuitsByLocation, func(c *nautobot.Client) (Tool, error) {
		return NewCircuitsByLocationTool(c)
	})
	Register(ToolGetCircuitsByProvider, func(c *nautobot.Client) (Tool, error) {
		return NewCircuitsByProviderTool(c)
	})
	Register(ToolGetLocations, func(c *nautobot.Client) (Tool, error) {
		return NewLocationsTool(c)
	})
	Register(ToolGetProviders, func(c *nautobot.Client) (Tool, error) {
		return NewProvidersTool(c)
	})
}
