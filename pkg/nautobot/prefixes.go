package nautobot

import (
	"context"
	"fmt"
)

// prefixesQuery is the site-scoped prefix lookup the chat assistant leans on
// most heavily.
const prefixesQuery = `
query PrefixesByLocation($name: String!) {
  prefixes(filter: { site: { name: $name } }) {
    edges {
      node {
        prefix
        status {
          value
        }
        role {
          name
        }
        description
        site {
          name
        }
      }
    }
  }
}`

// Prefix is one IPAM prefix row scoped to a site.
type Prefix struct {
	Prefix      string `json:"prefix"`
	Status      string `json:"status"`
	Role        string `json:"role"`
	Description string `json:"description"`
	Site        string `json:"site"`
}

type prefixNode struct {
	Status      *statusRef `json:"status"`
	Role        *namedRef  `json:"role"`
	Site        *namedRef  `json:"site"`
	Prefix      string     `json:"prefix"`
	Description string     `json:"description"`
}

// GetPrefixesByLocation returns all prefixes recorded under a location name.
func (c *Client) GetPrefixesByLocation(ctx context.Context, locationName string) ([]Prefix, error) {
	var data struct {
		Prefixes relayList[prefixNode] `json:"prefixes"`
	}
	if err := c.Query(ctx, prefixesQuery, map[string]any{"name": locationName}, &data); err != nil {
		return nil, fmt.Errorf("failed to get prefixes for location %q: %w", locationName, err)
	}

	nodes := data.Prefixes.nodes()
	prefixes := make([]Prefix, 0, len(nodes))
	for _, n := range nodes {
		prefixes = append(prefixes, Prefix{
			Prefix:      n.Prefix,
			Status:      refValue(n.Status),
			Role:        refName(n.Role),
			Description: n.Description,
			Site:        refName(n.Site),
		})
	}

	c.logger.Debug("Retrieved %d prefixes for location %s", len(prefixes), locationName)
	return prefixes, nil
}
