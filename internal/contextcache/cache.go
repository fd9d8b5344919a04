// Package contextcache caches the per-session enriched context bundle.
//
// Entries are keyed by session ID. There is no TTL eviction: invalidation is
// always explicit (forceRefresh) or caller-driven. Concurrent refreshes for
// the same session are collapsed to one rebuild; callers for different
// sessions never interfere.
package contextcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// BuildOptions selects which sub-analyses a rebuild should include.
type BuildOptions struct {
	IncludeProjectStructure bool
	IncludeMarketInsights   bool
	IncludeTechTrend        bool
}

// DefaultBuildOptions includes every sub-analysis.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		IncludeProjectStructure: true,
		IncludeMarketInsights:   true,
		IncludeTechTrend:        true,
	}
}

// Builder recomputes an enriched context from the analysis sub-services.
type Builder interface {
	Build(ctx context.Context, sessionID string, opts BuildOptions) (*models.EnrichedContext, error)
}

// Backend stores cache entries.
type Backend interface {
	Get(ctx context.Context, sessionID string) (*models.EnrichedContext, bool, error)
	Put(ctx context.Context, sessionID string, ec *models.EnrichedContext) error
	Delete(ctx context.Context, sessionID string) error
}

// Cache is the enriched-context cache front. GetOrUpdate for the same
// session is last-write-wins; a singleflight group keeps concurrent rebuilds
// of one session from fanning out into duplicate provider calls.
type Cache struct {
	backend Backend
	builder Builder
	group   singleflight.Group
}

// New creates a cache over the given backend and builder.
func New(backend Backend, builder Builder) *Cache {
	return &Cache{backend: backend, builder: builder}
}

// GetOrUpdate returns the cached context for the session, rebuilding it when
// absent or when forceRefresh is set. The rebuilt entry overwrites whatever
// was stored before.
func (c *Cache) GetOrUpdate(ctx context.Context, sessionID string, opts BuildOptions, forceRefresh bool) (*models.EnrichedContext, error) {
	if !forceRefresh {
		if ec, ok, err := c.backend.Get(ctx, sessionID); err == nil && ok {
			return ec, nil
		}
	}

	v, err, _ := c.group.Do(sessionID, func() (any, error) {
		start := time.Now()
		ec, err := c.builder.Build(ctx, sessionID, opts)
		if err != nil {
			return nil, err
		}
		ec.SessionID = sessionID
		ec.Metadata.LastUpdated = time.Now()
		ec.Metadata.ProcessingMS = time.Since(start).Milliseconds()
		if err := c.backend.Put(ctx, sessionID, ec); err != nil {
			return nil, err
		}
		return ec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.EnrichedContext), nil
}

// Invalidate drops the cache entry for a session (new documents uploaded,
// session reconfigured).
func (c *Cache) Invalidate(ctx context.Context, sessionID string) error {
	return c.backend.Delete(ctx, sessionID)
}

// MemoryBackend is the in-process Backend used when Redis is not configured.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*models.EnrichedContext
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*models.EnrichedContext)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, sessionID string) (*models.EnrichedContext, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ec, ok := m.entries[sessionID]
	return ec, ok, nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, sessionID string, ec *models.EnrichedContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sessionID] = ec
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}
