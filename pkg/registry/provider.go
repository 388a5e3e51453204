// Package registry holds the catalog of invocable capabilities sourced from
// one or more backend providers. Snapshots are immutable: a refresh builds a
// complete new catalog and swaps it atomically, so concurrent readers never
// observe a half-updated state.
package registry

import (
	"context"
	"errors"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
)

// Provider is a backend capability source. Any transport can satisfy this;
// the orchestration core is agnostic to its wire format.
type Provider interface {
	// Name identifies the provider in logs and backend refs.
	Name() string

	// Discover returns the provider's current capability descriptors.
	Discover(ctx context.Context) ([]capability.Capability, error)

	// Invoke executes the named capability. The deadline travels on ctx.
	Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

var (
	// ErrRegistryUnavailable indicates a refresh failed because no provider
	// responded. The previous snapshot, if any, stays live.
	ErrRegistryUnavailable = errors.New("capability registry unavailable: no provider responded")

	// ErrCapabilityNotFound indicates a lookup or dispatch for a name absent
	// from the current snapshot.
	ErrCapabilityNotFound = errors.New("capability not found")
)
