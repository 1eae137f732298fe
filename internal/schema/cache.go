package schema

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// BuildFunc constructs a model for one schema version.
type BuildFunc func() (*Model, error)

// Cache holds built models by version and guarantees that concurrent callers
// asking for the same version share a single build. Failed builds are not
// cached; the next caller retries.
type Cache struct {
	group  singleflight.Group
	mu     sync.RWMutex
	models map[string]*Model
	builds int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{models: make(map[string]*Model)}
}

// Get returns the model for version, building it at most once.
func (c *Cache) Get(version string, build BuildFunc) (*Model, error) {
	c.mu.RLock()
	m, ok := c.models[version]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := c.group.Do(version, func() (any, error) {
		// A caller that lost the race to an earlier flight finds the result here.
		c.mu.RLock()
		m, ok := c.models[version]
		c.mu.RUnlock()
		if ok {
			return m, nil
		}

		m, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.models[version] = m
		c.builds++
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// Builds returns how many successful builds the cache has run.
func (c *Cache) Builds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builds
}
