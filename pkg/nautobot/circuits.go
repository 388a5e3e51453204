package nautobot

import (
	"context"
	"fmt"
)

const circuitsByLocationQuery = `
query CircuitsByLocation($name: String!) {
  circuits(filter: { site: { name: $name } }) {
    edges {
      node {
        cid
        status {
          value
        }
        provider {
          name
        }
        circuit_type {
          name
        }
        commit_rate
        description
      }
    }
  }
}`

const circuitsByProviderQuery = `
query CircuitsByProvider($name: String!) {
  circuits(filter: { provider: { name: $name } }) {
    edges {
      node {
        cid
        status {
          value
        }
        provider {
          name
        }
        circuit_type {
          name
        }
        commit_rate
        description
      }
    }
  }
}`

// Circuit is one WAN circuit row. CommitRate is in kbps and zero when the
// provider contract does not specify one.
type Circuit struct {
	CID         string `json:"cid"`
	Status      string `json:"status"`
	Provider    string `json:"provider"`
	Type        string `json:"type"`
	Description string `json:"description"`
	CommitRate  int    `json:"commit_rate"`
}

type circuitNode struct {
	Status      *statusRef `json:"status"`
	Provider    *namedRef  `json:"provider"`
	CircuitType *namedRef  `json:"circuit_type"`
	CID         string     `json:"cid"`
	Description string     `json:"description"`
	CommitRate  int        `json:"commit_rate"`
}

func convertCircuit(n circuitNode) Circuit {
	return Circuit{
		CID:         n.CID,
		Status:      refValue(n.Status),
		Provider:    refName(n.Provider),
		Type:        refName(n.CircuitType),
		Description: n.Description,
		CommitRate:  n.CommitRate,
	}
}

// GetCircuitsByLocation returns circuits terminating at the named location.
func (c *Client) GetCircuitsByLocation(ctx context.Context, locationName string) ([]Circuit, error) {
	var data struct {
		Circuits relayList[circuitNode] `json:"circuits"`
	}
	if err := c.Query(ctx, circuitsByLocationQuery, map[string]any{"name": locationName}, &data); err != nil {
		return nil, fmt.Errorf("failed to get circuits for location %q: %w", locationName, err)
	}

	nodes := data.Circuits.nodes()
	circuits := make([]Circuit, 0, len(nodes))
	for _, n := range nodes {
		circuits = append(circuits, convertCircuit(n))
	}

	c.logger.Debug("Retrieved %d circuits for location %s", len(circuits), locationName)
	return circuits, nil
}

// GetCircuitsByProvider returns all circuits purchased from one provider.
func (c *Client) GetCircuitsByProvider(ctx context.Context, providerName string) ([]Circuit, error) {
	var data struct {
		Circuits relayList[circuitNode] `json:"circuits"`
	}
	if err := c.Query(ctx, circuitsByProviderQuery, map[string]any{"name": providerName}, &data); err != nil {
		return nil, fmt.Errorf("failed to get circuits for provider %q: %w", providerName, err)
	}

	nodes := data.Circuits.nodes()
	circuits := make([]Circuit, 0, len(nodes))
	for _, n := range nodes {
		circuits = append(circuits, convertCircuit(n))
	}

	c.logger.Debug("Retrieved %d circuits for provider %s", len(circuits), providerName)
	return circuits, nil
}
