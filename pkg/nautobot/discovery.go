package nautobot

import (
	"context"
	"fmt"
)

const locationsQuery = `
query Locations {
  locations {
    edges {
      node {
        name
        description
        location_type {
          name
        }
        parent {
          name
        }
      }
    }
  }
}`

const providersQuery = `
query Providers {
  providers {
    edges {
      node {
        name
        asn
        description
      }
    }
  }
}`

// Location is one row of the location hierarchy. Parent is empty for
// top-level regions.
type Location struct {
	Name         string `json:"name"`
	LocationType string `json:"location_type"`
	Parent       string `json:"parent"`
	Description  string `json:"description"`
}

type locationNode struct {
	LocationType *namedRef `json:"location_type"`
	Parent       *namedRef `json:"parent"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
}

// Provider is one circuit provider row.
type Provider struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ASN         int    `json:"asn"`
}

// GetLocations returns every location with its hierarchy parent.
func (c *Client) GetLocations(ctx context.Context) ([]Location, error) {
	var data struct {
		Locations relayList[locationNode] `json:"locations"`
	}
	if err := c.Query(ctx, locationsQuery, nil, &data); err != nil {
		return nil, fmt.Errorf("failed to get locations: %w", err)
	}

	nodes := data.Locations.nodes()
	locations := make([]Location, 0, len(nodes))
	for _, n := range nodes {
		locations = append(locations, Location{
			Name:         n.Name,
			LocationType: refName(n.LocationType),
			Parent:       refName(n.Parent),
			Description:  n.Description,
		})
	}

	c.logger.Debug("Retrieved %d locations", len(locations))
	return locations, nil
}

// GetProviders returns every circuit provider.
func (c *Client) GetProviders(ctx context.Context) ([]Provider, error) {
	var data struct {
		Providers relayList[Provider] `json:"providers"`
	}
	if err := c.Query(ctx, providersQuery, nil, &data); err != nil {
		return nil, fmt.Errorf("failed to get providers: %w", err)
	}

	providers := data.Providers.nodes()
	c.logger.Debug("Retrieved %d providers", len(providers))
	return providers, nil
}
