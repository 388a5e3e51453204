package tools

import (
	"context"
	"fmt"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
)

// LocationsTool lists every location with its hierarchy information.
type LocationsTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewLocationsTool creates the location discovery tool.
func NewLocationsTool(client *nautobot.Client) (*LocationsTool, error) {
	if client == nil {
		return nil, fmt.Errorf("locations tool requires a nautobot client")
	}
	return &LocationsTool{client: client, logger: logx.NewLogger("tool-discovery")}, nil
}

// Name returns the tool identifier.
func (t *LocationsTool) Name() string {
	return ToolGetLocations
}

// Definition returns the get_locations capability descriptor.
func (t *LocationsTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetLocations,
		Description: "List all available locations with their hierarchy information.",
		InputSchema: capability.InputSchema{Type: "object"},
	}
}

// Exec lists locations.
func (t *LocationsTool) Exec(ctx context.Context, _ map[string]any) (map[string]any, error) {
	locations, err := t.client.GetLocations(ctx)
	if err != nil {
		return failureResult(err, "Failed to retrieve locations: %v", err)
	}
	if len(locations) == 0 {
		return successResult("No locations found in the system", 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d locations", len(locations))
	rows := make([]any, 0, len(locations))
	for _, loc := range locations {
		rows = append(rows, map[string]any{
			"name":          loc.Name,
			"location_type": loc.LocationType,
			"parent":        loc.Parent,
			"description":   loc.Description,
		})
	}
	return successResult(fmt.Sprintf("Found %d locations", len(locations)), len(locations), rows), nil
}

// ProvidersTool lists every circuit provider.
type ProvidersTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewProvidersTool creates the provider discovery tool.
func NewProvidersTool(client *nautobot.Client) (*ProvidersTool, error) {
	if client == nil {
		return nil, fmt.Errorf("providers tool requires a nautobot client")
	}
	return &ProvidersTool{client: client, logger: logx.NewLogger("tool-discovery")}, nil
}

// Name returns the tool identifier.
func (t *ProvidersTool) Name() string {
	return ToolGetProviders
}

// Definition returns the get_providers capability descriptor.
func (t *ProvidersTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetProviders,
		Description: "List all available circuit providers.",
		InputSchema: capability.InputSchema{Type: "object"},
	}
}

// Exec lists providers.
func (t *ProvidersTool) Exec(ctx context.Context, _ map[string]any) (map[string]any, error) {
	providers, err := t.client.GetProviders(ctx)
	if err != nil {
		return failureResult(err, "Failed to retrieve providers: %v", err)
	}
	if len(providers) == 0 {
		return successResult("No providers found in the system", 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d providers", len(providers))
	rows := make([]any, 0, len(providers))
	for _, provider := range providers {
		rows = append(rows, map[string]any{
			"name":        provider.Name,
			"asn":         provider.ASN,
			"description": provider.Description,
		})
	}
	return successResult(fmt.Sprintf("Found %d providers", len(providers)), len(providers), rows), nil
}
