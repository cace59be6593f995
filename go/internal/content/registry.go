package content

import (
	"fmt"
	"sort"
	"sync"
)

// SourceFactory builds a Pipeline from a source's configuration block.
type SourceFactory func(cfg map[string]string) (Pipeline, error)

// Registry maps source keys to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]SourceFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]SourceFactory)}
}

// Register adds a factory under key.
func (r *Registry) Register(key string, f SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == "" {
		return fmt.Errorf("source key cannot be empty")
	}
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("source already registered for key %q", key)
	}
	r.factories[key] = f
	return nil
}

// Open builds the pipeline registered under key.
func (r *Registry) Open(key string, cfg map[string]string) (Pipeline, error) {
	r.mu.RLock()
	f, exists := r.factories[key]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w %q", ErrUnknownSource, key)
	}
	p, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init source %q: %w", key, err)
	}
	return p, nil
}

// Keys lists registered sources.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
