// Package capability defines the data model shared by the registry, executor,
// and orchestrator: invocable capability descriptors, call requests, call
// results, and the fingerprinting used for session caching.
package capability

// Capability describes one invocable external action: a name unique within a
// registry snapshot, a human-readable description for the planner, the input
// schema arguments must satisfy, and an opaque reference to the backend
// provider that owns it. Immutable once registered; catalogs are rebuilt
// wholesale on refresh, never patched in place.
type Capability struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
	BackendRef  string      `json:"-"`
}

// InputSchema defines the JSON-schema-shaped argument contract of a capability.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single argument within an InputSchema.
//
//nolint:govet // fieldalignment: field order mirrors the wire format for readability
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	MinItems    *int                 `json:"minItems,omitempty"`
	MaxItems    *int                 `json:"maxItems,omitempty"`
}

// CallRequest is one capability invocation requested by the planner.
// RoundIndex is stamped by the orchestrator and is strictly increasing
// from 0 within a turn.
type CallRequest struct {
	CapabilityName string         `json:"capability_name"`
	Arguments      map[string]any `json:"arguments"`
	RoundIndex     int            `json:"round_index"`
}
