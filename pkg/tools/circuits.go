package tools

import (
	"context"
	"fmt"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
)

// CircuitsByLocationTool collects circuits across one or more locations.
type CircuitsByLocationTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewCircuitsByLocationTool creates the location-scoped circuit tool.
func NewCircuitsByLocationTool(client *nautobot.Client) (*CircuitsByLocationTool, error) {
	if client == nil {
		return nil, fmt.Errorf("circuits tool requires a nautobot client")
	}
	return &CircuitsByLocationTool{client: client, logger: logx.NewLogger("tool-circuits")}, nil
}

// Name returns the tool identifier.
func (t *CircuitsByLocationTool) Name() string {
	return ToolGetCircuitsByLocation
}

// Definition returns the get_circuits_by_location capability descriptor.
func (t *CircuitsByLocationTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetCircuitsByLocation,
		Description: "Query Nautobot for circuits terminating at one or more locations and return raw circuit data.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_names": {
					Type:        "array",
					Description: "Location names to collect circuits for, e.g., ['BRCN', 'NYDC']",
					Items:       &capability.Property{Type: "string"},
				},
			},
			Required: []string{"location_names"},
		},
	}
}

// Exec collects circuits location by location, preserving request order.
func (t *CircuitsByLocationTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	locations, ok := stringListArg(args, "location_names")
	if !ok {
		return errorResult("location_names is required and must be a non-empty list of strings"), nil
	}

	var all []nautobot.Circuit
	for _, location := range locations {
		circuits, err := t.client.GetCircuitsByLocation(ctx, location)
		if err != nil {
			return failureResult(err, "Failed to retrieve circuits for locations %v: %v", locations, err)
		}
		if len(circuits) == 0 {
			t.logger.Debug("No circuits found for location %s", location)
			continue
		}
		all = append(all, circuits...)
	}

	if len(all) == 0 {
		return successResult(fmt.Sprintf("No circuits found for locations %v", locations), 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d circuits across %d locations", len(all), len(locations))
	return successResult(
		fmt.Sprintf("Found %d circuits for locations %v", len(all), locations),
		len(all),
		circuitRows(all),
	), nil
}

// CircuitsByProviderTool returns circuits purchased from one provider.
type CircuitsByProviderTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewCircuitsByProviderTool creates the provider-scoped circuit tool.
func NewCircuitsByProviderTool(client *nautobot.Client) (*CircuitsByProviderTool, error) {
	if client == nil {
		return nil, fmt.Errorf("circuits tool requires a nautobot client")
	}
	return &CircuitsByProviderTool{client: client, logger: logx.NewLogger("tool-circuits")}, nil
}

// Name returns the tool identifier.
func (t *CircuitsByProviderTool) Name() string {
	return ToolGetCircuitsByProvider
}

// Definition returns the get_circuits_by_provider capability descriptor.
func (t *CircuitsByProviderTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetCircuitsByProvider,
		Description: "Query Nautobot for all circuits purchased from a specific provider.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"provider_name": {
					Type:        "string",
					Description: "The provider name, e.g., 'NTT'",
				},
			},
			Required: []string{"provider_name"},
		},
	}
}

// Exec runs the provider lookup.
func (t *CircuitsByProviderTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	provider, ok := stringArg(args, "provider_name")
	if !ok {
		return errorResult("provider_name is required"), nil
	}

	circuits, err := t.client.GetCircuitsByProvider(ctx, provider)
	if err != nil {
		return failureResult(err, "Failed to retrieve circuits for provider '%s': %v", provider, err)
	}
	if len(circuits) == 0 {
		return successResult(fmt.Sprintf("No circuits found for provider '%s'", provider), 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d circuits for provider %s", len(circuits), provider)
	return successResult(
		fmt.Sprintf("Found %d circuits for provider '%s'", len(circuits), provider),
		len(circuits),
		circuitRows(circuits),
	), nil
}

func circuitRows(circuits []nautobot.Circuit) []any {
	rows := make([]any, 0, len(circuits))
	for _, c := range circuits {
		rows = append(rows, map[string]any{
			"cid":         c.CID,
			"status":      c.Status,
			"provider":    c.Provider,
			"type":        c.Type,
			"commit_rate": c.CommitRate,
			"description": c.Description,
		})
	}
	return rows
}
