package nautobot

import (
	"context"
	"fmt"
)

const interfacesByDeviceQuery = `
query InterfacesByDevice($name: String!) {
  interfaces(filter: { device: { name: $name } }) {
    edges {
      node {
        name
        type
        enabled
        description
        status {
          value
        }
        device {
          name
        }
      }
    }
  }
}`

// Interface is one device interface row.
type Interface struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Device      string `json:"device"`
	Enabled     bool   `json:"enabled"`
}

type interfaceNode struct {
	Status      *statusRef `json:"status"`
	Device      *namedRef  `json:"device"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Enabled     bool       `json:"enabled"`
}

// GetInterfacesByDevice returns all interfaces on the named device.
func (c *Client) GetInterfacesByDevice(ctx context.Context, deviceName string) ([]Interface, error) {
	var data struct {
		Interfaces relayList[interfaceNode] `json:"interfaces"`
	}
	if err := c.Query(ctx, interfacesByDeviceQuery, map[string]any{"name": deviceName}, &data); err != nil {
		return nil, fmt.Errorf("failed to get interfaces for device %q: %w", deviceName, err)
	}

	nodes := data.Interfaces.nodes()
	interfaces := make([]Interface, 0, len(nodes))
	for _, n := range nodes {
		interfaces = append(interfaces, Interface{
			Name:        n.Name,
			Type:        n.Type,
			Status:      refValue(n.Status),
			Description: n.Description,
			Device:      refName(n.Device),
			Enabled:     n.Enabled,
		})
	}

	c.logger.Debug("Retrieved %d interfaces for device %s", len(interfaces), deviceName)
	return interfaces, nil
}
