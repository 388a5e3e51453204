package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
)

// Snapshot is one immutable view of the capability catalog. All reads during
// a turn go through the same snapshot; refreshes only occur between turns.
type Snapshot struct {
	caps        map[string]capability.Capability
	providers   map[string]Provider
	refreshedAt time.Time
}

// Lookup returns the capability registered under name.
func (s *Snapshot) Lookup(name string) (capability.Capability, bool) {
	c, ok := s.caps[name]
	return c, ok
}

// List returns all capabilities sorted by name.
func (s *Snapshot) List() []capability.Capability {
	out := make([]capability.Capability, 0, len(s.caps))
	for _, c := range s.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered capabilities.
func (s *Snapshot) Len() int {
	return len(s.caps)
}

// Ready reports whether this snapshot came from a successful refresh.
// The zero snapshot (no refresh ever completed) is not ready.
func (s *Snapshot) Ready() bool {
	return !s.refreshedAt.IsZero()
}

// RefreshedAt returns when this snapshot was built.
func (s *Snapshot) RefreshedAt() time.Time {
	return s.refreshedAt
}

// Invoke dispatches the named capability to its owning provider.
func (s *Snapshot) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	provider, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
	}
	return provider.Invoke(ctx, name, args)
}

// Registry owns the catalog. Refresh builds a new snapshot from all providers
// and publishes it with a single atomic swap.
type Registry struct {
	providers []Provider
	logger    *logx.Logger
	snapshot  atomic.Pointer[Snapshot]
}

// New creates a registry over the given providers. The initial snapshot is
// empty and not ready until the first successful Refresh.
func New(providers []Provider, logger *logx.Logger) *Registry {
	if logger == nil {
		logger = logx.NewLogger("registry")
	}
	r := &Registry{
		providers: providers,
		logger:    logger,
	}
	r.snapshot.Store(&Snapshot{
		caps:      make(map[string]capability.Capability),
		providers: make(map[string]Provider),
	})
	return r
}

// Snapshot returns the current catalog view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Refresh queries every provider and swaps in a complete new snapshot.
// A provider that fails to respond is logged and skipped; Refresh only fails
// with ErrRegistryUnavailable when no provider responds at all, in which case
// the previous snapshot stays live.
func (r *Registry) Refresh(ctx context.Context) error {
	caps := make(map[string]capability.Capability)
	owners := make(map[string]Provider)
	var discoverErrs []error
	responded := 0

	for _, provider := range r.providers {
		discovered, err := provider.Discover(ctx)
		if err != nil {
			r.logger.Warn("⚠️  Provider %s discovery failed: %v", provider.Name(), err)
			discoverErrs = append(discoverErrs, fmt.Errorf("%s: %w", provider.Name(), err))
			continue
		}
		responded++

		for i := range discovered {
			c := discovered[i]
			if _, exists := caps[c.Name]; exists {
				r.logger.Warn("⚠️  Duplicate capability %q from provider %s ignored (first registration wins)", c.Name, provider.Name())
				continue
			}
			if c.BackendRef == "" {
				c.BackendRef = provider.Name()
			}
			caps[c.Name] = c
			owners[c.Name] = provider
		}
	}

	if responded == 0 {
		if len(r.providers) == 0 {
			return ErrRegistryUnavailable
		}
		return fmt.Errorf("%w: %w", ErrRegistryUnavailable, errors.Join(discoverErrs...))
	}

	r.snapshot.Store(&Snapshot{
		caps:        caps,
		providers:   owners,
		refreshedAt: time.Now().UTC(),
	})

	r.logger.Info("✅ Capability catalog refreshed: %d capabilities from %d/%d providers",
		len(caps), responded, len(r.providers))
	return nil
}
