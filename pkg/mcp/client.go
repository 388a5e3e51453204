package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
)

// DefaultClientTimeout bounds a single round trip when the caller's context
// carries no deadline of its own.
const DefaultClientTimeout = 30 * time.Second

// Client mounts a remote capability server as a registry.Provider.
type Client struct {
	baseURL string
	apiKey  string
	name    string
	logger  *logx.Logger
	client  *http.Client
}

// NewClient builds a provider backed by the server at baseURL. The name
// identifies this backend in registry refs; apiKey falls back to
// DefaultAPIKey.
func NewClient(name, baseURL, apiKey string) *Client {
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		name:    name,
		logger:  logx.NewLogger("mcp-client"),
		client:  &http.Client{Timeout: DefaultClientTimeout},
	}
}

// Name identifies the remote backend in registry refs.
func (c *Client) Name() string {
	return c.name
}

// Discover fetches the remote capability catalog.
func (c *Client) Discover(ctx context.Context) ([]capability.Capability, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderCorrelationID, uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tools from %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool discovery failed with status %d: %s", resp.StatusCode, readDetail(resp.Body))
	}

	var payload struct {
		Tools []capability.Capability `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode tool catalog: %w", err)
	}
	c.logger.Debug("Discovered %d tools from %s", len(payload.Tools), c.baseURL)
	return payload.Tools, nil
}

// Invoke executes the named tool remotely. The argument object is the
// request body; the caller's deadline travels on ctx.
func (c *Client) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments for '%s': %w", name, err)
	}

	url := c.baseURL + toolsPathPrefix + name + invokeSuffix
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create invoke request for '%s': %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, c.apiKey)
	req.Header.Set(HeaderCorrelationID, uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke '%s' on %s: %w", name, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("invoke '%s' failed with status %d: %s", name, resp.StatusCode, readDetail(resp.Body))
	}

	var payload struct {
		Result map[string]any `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode result for '%s': %w", name, err)
	}
	return payload.Result, nil
}

// Health fetches the server's health document. Used at startup to verify
// the remote end is reachable before wiring it into the registry.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed for %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, readDetail(resp.Body))
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode health document: %w", err)
	}
	return doc, nil
}

// readDetail extracts the detail field from an error body, falling back to
// the raw text.
func readDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return "(no body)"
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(raw))
}
