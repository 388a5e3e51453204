package tools

import (
	"context"
	"fmt"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
)

// DevicesByLocationTool returns raw device rows for a location.
type DevicesByLocationTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewDevicesByLocationTool creates the device lookup tool.
func NewDevicesByLocationTool(client *nautobot.Client) (*DevicesByLocationTool, error) {
	if client == nil {
		return nil, fmt.Errorf("devices tool requires a nautobot client")
	}
	return &DevicesByLocationTool{client: client, logger: logx.NewLogger("tool-devices")}, nil
}

// Name returns the tool identifier.
func (t *DevicesByLocationTool) Name() string {
	return ToolGetDevicesByLocation
}

// Definition returns the get_devices_by_location capability descriptor.
func (t *DevicesByLocationTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetDevicesByLocation,
		Description: "Query Nautobot for devices by a location name and return raw device data.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_name": {
					Type:        "string",
					Description: "The location name, e.g., 'NY Data Center'",
				},
			},
			Required: []string{"location_name"},
		},
	}
}

// Exec runs the device lookup.
func (t *DevicesByLocationTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, ok := stringArg(args, "location_name")
	if !ok {
		return errorResult("location_name is required"), nil
	}

	devices, err := t.client.GetDevicesByLocation(ctx, location)
	if err != nil {
		return failureResult(err, "Failed to get devices for location '%s': %v", location, err)
	}
	if len(devices) == 0 {
		return successResult(fmt.Sprintf("No devices found at location '%s'", location), 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d devices for %s", len(devices), location)
	return successResult(
		fmt.Sprintf("Found %d devices at location '%s'", len(devices), location),
		len(devices),
		deviceRows(devices),
	), nil
}

// DevicesByRoleTool narrows the device lookup to one role.
type DevicesByRoleTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewDevicesByRoleTool creates the role-filtered device lookup tool.
func NewDevicesByRoleTool(client *nautobot.Client) (*DevicesByRoleTool, error) {
	if client == nil {
		return nil, fmt.Errorf("devices tool requires a nautobot client")
	}
	return &DevicesByRoleTool{client: client, logger: logx.NewLogger("tool-devices")}, nil
}

// Name returns the tool identifier.
func (t *DevicesByRoleTool) Name() string {
	return ToolGetDevicesByLocationAndRole
}

// Definition returns the get_devices_by_location_and_role capability
// descriptor.
func (t *DevicesByRoleTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetDevicesByLocationAndRole,
		Description: "Query Nautobot for devices by location and device role, e.g. all WAN routers at a site.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"location_name": {
					Type:        "string",
					Description: "The location name, e.g., 'NY Data Center'",
				},
				"role_name": {
					Type:        "string",
					Description: "The device role name, e.g., 'WAN Router'",
				},
			},
			Required: []string{"location_name", "role_name"},
		},
	}
}

// Exec runs the role-filtered lookup.
func (t *DevicesByRoleTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, ok := stringArg(args, "location_name")
	if !ok {
		return errorResult("location_name is required"), nil
	}
	role, ok := stringArg(args, "role_name")
	if !ok {
		return errorResult("role_name is required"), nil
	}

	devices, err := t.client.GetDevicesByLocationAndRole(ctx, location, role)
	if err != nil {
		return failureResult(err, "Failed to get devices with role '%s' at location '%s': %v", role, location, err)
	}
	if len(devices) == 0 {
		return successResult(fmt.Sprintf("No devices with role '%s' found at location '%s'", role, location), 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d %s devices for %s", len(devices), role, location)
	return successResult(
		fmt.Sprintf("Found %d devices with role '%s' at location '%s'", len(devices), role, location),
		len(devices),
		deviceRows(devices),
	), nil
}

func deviceRows(devices []nautobot.Device) []any {
	rows := make([]any, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, map[string]any{
			"name":        d.Name,
			"status":      d.Status,
			"role":        d.Role,
			"device_type": d.DeviceType,
			"platform":    d.Platform,
			"site":        d.Site,
		})
	}
	return rows
}
