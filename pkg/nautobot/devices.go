package nautobot

import (
	"context"
	"fmt"
)

const devicesByLocationQuery = `
query DevicesByLocation($name: String!) {
  devices(filter: { site: { name: $name } }) {
    edges {
      node {
        name
        status {
          value
        }
        role {
          name
        }
        device_type {
          model
        }
        platform {
          name
        }
        site {
          name
        }
      }
    }
  }
}`

const devicesByLocationAndRoleQuery = `
query DevicesByLocationAndRole($name: String!, $role: String!) {
  devices(filter: { site: { name: $name }, role: { name: $role } }) {
    edges {
      node {
        name
        status {
          value
        }
        role {
          name
        }
        device_type {
          model
        }
        platform {
          name
        }
        site {
          name
        }
      }
    }
  }
}`

// Device is one inventory device row.
type Device struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Role       string `json:"role"`
	DeviceType string `json:"device_type"`
	Platform   string `json:"platform"`
	Site       string `json:"site"`
}

type modelRef struct {
	Model string `json:"model"`
}

type deviceNode struct {
	Status     *statusRef `json:"status"`
	Role       *namedRef  `json:"role"`
	DeviceType *modelRef  `json:"device_type"`
	Platform   *namedRef  `json:"platform"`
	Site       *namedRef  `json:"site"`
	Name       string     `json:"name"`
}

func convertDevice(n deviceNode) Device {
	d := Device{
		Name:   n.Name,
		Status: refValue(n.Status),
		Role:   refName(n.Role),
		Site:   refName(n.Site),
	}
	if n.DeviceType != nil {
		d.DeviceType = n.DeviceType.Model
	}
	d.Platform = refName(n.Platform)
	return d
}

// GetDevicesByLocation returns all devices recorded under a location name.
func (c *Client) GetDevicesByLocation(ctx context.Context, locationName string) ([]Device, error) {
	var data struct {
		Devices relayList[deviceNode] `json:"devices"`
	}
	if err := c.Query(ctx, devicesByLocationQuery, map[string]any{"name": locationName}, &data); err != nil {
		return nil, fmt.Errorf("failed to get devices for location %q: %w", locationName, err)
	}

	nodes := data.Devices.nodes()
	devices := make([]Device, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, convertDevice(n))
	}

	c.logger.Debug("Retrieved %d devices for location %s", len(devices), locationName)
	return devices, nil
}

// GetDevicesByLocationAndRole narrows the location lookup to one device role.
func (c *Client) GetDevicesByLocationAndRole(ctx context.Context, locationName, roleName string) ([]Device, error) {
	var data struct {
		Devices relayList[deviceNode] `json:"devices"`
	}
	vars := map[string]any{"name": locationName, "role": roleName}
	if err := c.Query(ctx, devicesByLocationAndRoleQuery, vars, &data); err != nil {
		return nil, fmt.Errorf("failed to get %q devices for location %q: %w", roleName, locationName, err)
	}

	nodes := data.Devices.nodes()
	devices := make([]Device, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, convertDevice(n))
	}

	c.logger.Debug("Retrieved %d %s devices for location %s", len(devices), roleName, locationName)
	return devices, nil
}
