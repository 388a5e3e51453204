// Package nautobot provides a GraphQL client for the Nautobot network
// inventory API. Every query goes through a single token-authenticated POST
// endpoint; each inventory area (prefixes, devices, interfaces, circuits,
// discovery) gets typed wrappers in its own file.
package nautobot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
)

const (
	// DefaultBaseURL matches the compose service address used in development.
	DefaultBaseURL = "http://nautobot:8080"

	// GraphQLPath is the query endpoint under the base URL.
	GraphQLPath = "/graphql/"

	// DefaultTimeout bounds a single GraphQL round trip.
	DefaultTimeout = 10 * time.Second
)

// Client executes GraphQL queries against a Nautobot instance.
type Client struct {
	baseURL string
	token   string
	logger  *logx.Logger
	client  *http.Client
}

// New creates a Nautobot client. An empty token disables the Authorization
// header, which matches an unauthenticated dev instance.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		logger:  logx.NewLogger("nautobot"),
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// graphQLRequest is the POST body Nautobot expects.
type graphQLRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
	Query     string         `json:"query"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// graphQLResponse is the standard GraphQL envelope. Errors and data can
// coexist; any reported error fails the whole query.
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query executes a GraphQL query and decodes the data envelope into out.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	url := c.baseURL + GraphQLPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	c.logger.Debug("POST %s", url)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graphql query failed with status %d: %s", resp.StatusCode, string(body))
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, gqlErr := range envelope.Errors {
			msgs = append(msgs, gqlErr.Message)
		}
		return fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}

// relayList is Nautobot's relay-style list envelope.
type relayList[T any] struct {
	Edges []relayEdge[T] `json:"edges"`
}

type relayEdge[T any] struct {
	Node T `json:"node"`
}

func (l relayList[T]) nodes() []T {
	out := make([]T, 0, len(l.Edges))
	for _, e := range l.Edges {
		out = append(out, e.Node)
	}
	return out
}

// namedRef and statusRef model nullable nested objects; Nautobot returns
// null for unset relations, so the accessors tolerate nil.
type namedRef struct {
	Name string `json:"name"`
}

type statusRef struct {
	Value string `json:"value"`
}

func refName(r *namedRef) string {
	if r == nil {
		return ""
	}
	return r.Name
}

func refValue(r *statusRef) string {
	if r == nil {
		return ""
	}
	return r.Value
}
