package tools

import (
	"context"
	"fmt"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
)

// InterfacesTool returns raw interface rows for one device.
type InterfacesTool struct {
	client *nautobot.Client
	logger *logx.Logger
}

// NewInterfacesTool creates the interface lookup tool.
func NewInterfacesTool(client *nautobot.Client) (*InterfacesTool, error) {
	if client == nil {
		return nil, fmt.Errorf("interfaces tool requires a nautobot client")
	}
	return &InterfacesTool{client: client, logger: logx.NewLogger("tool-interfaces")}, nil
}

// Name returns the tool identifier.
func (t *InterfacesTool) Name() string {
	return ToolGetInterfacesByDevice
}

// Definition returns the get_interfaces_by_device capability descriptor.
func (t *InterfacesTool) Definition() capability.Capability {
	return capability.Capability{
		Name:        ToolGetInterfacesByDevice,
		Description: "Query Nautobot for the interfaces of a specific device and return raw interface data.",
		InputSchema: capability.InputSchema{
			Type: "object",
			Properties: map[string]capability.Property{
				"device_name": {
					Type:        "string",
					Description: "The device name, e.g., 'BRCN-SW-01'",
				},
			},
			Required: []string{"device_name"},
		},
	}
}

// Exec runs the interface lookup.
func (t *InterfacesTool) Exec(ctx context.Context, args map[string]any) (map[string]any, error) {
	device, ok := stringArg(args, "device_name")
	if !ok {
		return errorResult("device_name is required"), nil
	}

	interfaces, err := t.client.GetInterfacesByDevice(ctx, device)
	if err != nil {
		return failureResult(err, "Failed to get interfaces for device '%s': %v", device, err)
	}
	if len(interfaces) == 0 {
		return successResult(fmt.Sprintf("No interfaces found for device '%s'", device), 0, []any{}), nil
	}

	t.logger.Info("📊 Retrieved %d interfaces for %s", len(interfaces), device)
	return successResult(
		fmt.Sprintf("Found %d interfaces for device '%s'", len(interfaces), device),
		len(interfaces),
		interfaceRows(interfaces),
	), nil
}

func interfaceRows(interfaces []nautobot.Interface) []any {
	rows := make([]any, 0, len(interfaces))
	for _, iface := range interfaces {
		rows = append(rows, map[string]any{
			"name":        iface.Name,
			"type":        iface.Type,
			"status":      iface.Status,
			"enabled":     iface.Enabled,
			"description": iface.Description,
			"device":      iface.Device,
		})
	}
	return rows
}
