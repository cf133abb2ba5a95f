// Package resource defines the resource cache capability the NPC subsystem
// consumes for meshes, textures, and packaged model artifacts, plus an
// in-memory implementation for headless hosts and tests.
package resource

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a referenced resource id is not in the cache.
var ErrNotFound = errors.New("resource not found")

// Kind distinguishes the resource namespaces.
type Kind string

const (
	KindMesh    Kind = "mesh"
	KindTexture Kind = "texture"
	KindModel   Kind = "model"
)

// Resource is an opaque cached artifact.
type Resource struct {
	Kind Kind
	ID   string
	Data []byte
}

// Cache is the capability the host provides.
//
// Implementations MUST be safe for concurrent use.
type Cache interface {
	// Has reports whether id of kind is available.
	Has(kind Kind, id string) bool
	// Get returns the resource, or an error wrapping ErrNotFound.
	Get(kind Kind, id string) (Resource, error)
	// Preload asks the cache to make id resident. Returns an error wrapping
	// ErrNotFound when the id is unknown.
	Preload(kind Kind, id string) error
}

// MemoryCache is a map-backed Cache.
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[Kind]map[string]Resource
	resident map[Kind]map[string]bool
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items:    make(map[Kind]map[string]Resource),
		resident: make(map[Kind]map[string]bool),
	}
}

// Put stores r, replacing any resource with the same kind and id.
//
// Precondition: r.ID must be non-empty.
func (c *MemoryCache) Put(r Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[r.Kind] == nil {
		c.items[r.Kind] = make(map[string]Resource)
	}
	c.items[r.Kind][r.ID] = r
}

// PutIDs registers empty resources for each id of kind.
func (c *MemoryCache) PutIDs(kind Kind, ids ...string) {
	for _, id := range ids {
		c.Put(Resource{Kind: kind, ID: id})
	}
}

// Has implements Cache.
func (c *MemoryCache) Has(kind Kind, id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[kind][id]
	return ok
}

// Get implements Cache.
func (c *MemoryCache) Get(kind Kind, id string) (Resource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.items[kind][id]
	if !ok {
		return Resource{}, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return r, nil
}

// Preload implements Cache.
func (c *MemoryCache) Preload(kind Kind, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[kind][id]; !ok {
		return fmt.Errorf("preloading %s %q: %w", kind, id, ErrNotFound)
	}
	if c.resident[kind] == nil {
		c.resident[kind] = make(map[string]bool)
	}
	c.resident[kind][id] = true
	return nil
}

// Resident returns the sorted ids of kind that have been preloaded.
func (c *MemoryCache) Resident(kind Kind) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.resident[kind]))
	for id := range c.resident[kind] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Permissive is a Cache that reports every id as present. Headless tools use
// it when no asset pipeline is attached.
type Permissive struct{}

// Has implements Cache.
func (Permissive) Has(Kind, string) bool { return true }

// Get implements Cache.
func (Permissive) Get(kind Kind, id string) (Resource, error) {
	return Resource{Kind: kind, ID: id}, nil
}

// Preload implements Cache.
func (Permissive) Preload(Kind, string) error { return nil }
