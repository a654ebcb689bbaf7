// Package sync reconciles local calendar state with external providers.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/dayflow/dayflow/internal/core"
)

// ProviderEvent is the provider-neutral shape of a remote event. Every
// provider normalizes into this before the reconciler touches it.
type ProviderEvent struct {
	ExternalID string
	Title      string
	Location   string
	Start      time.Time
	End        time.Time
	AllDay     bool
	Status     core.EventStatus
}

// Provider is one external calendar backend. Implementations are safe for
// concurrent use; per-connection state travels in the connection argument.
type Provider interface {
	// ListEvents fetches remote events overlapping [start, end).
	ListEvents(ctx context.Context, conn *core.CalendarConnection, start, end time.Time) ([]ProviderEvent, error)
	// CreateEvent pushes a local event to the provider and returns the
	// assigned external id.
	CreateEvent(ctx context.Context, conn *core.CalendarConnection, event ProviderEvent) (string, error)
}

// Registry maps event sources to their providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[core.EventSource]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[core.EventSource]Provider)}
}

// Register installs a provider for a source, replacing any previous one.
func (r *Registry) Register(source core.EventSource, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[source] = p
}

// For returns the provider for a source.
func (r *Registry) For(source core.EventSource) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[source]
	if !ok {
		return nil, core.ErrProviderUnknown
	}
	return p, nil
}
