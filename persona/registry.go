package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"npcchat/dialogue"
)

// Registry holds all NPC persona definitions.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]*Persona
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		personas: make(map[string]*Persona),
	}
}

// LoadFromFile loads personas from a JSON file.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read personas file: %w", err)
	}
	return r.LoadFromJSON(data)
}

// LoadFromJSON loads personas from raw JSON bytes. Entries without a slug are
// ignored; slugs are normalized the same way the dialogue index does.
func (r *Registry) LoadFromJSON(data []byte) error {
	var list []*Persona
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse personas JSON: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range list {
		if p == nil {
			continue
		}
		p.Slug = dialogue.NormalizeKey(p.Slug)
		if p.Slug == "" {
			continue
		}
		p.DefaultPool = dialogue.NormalizeKey(p.DefaultPool)
		r.personas[p.Slug] = p
	}
	return nil
}

// Get returns a persona by slug, or nil.
func (r *Registry) Get(slug string) *Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[dialogue.NormalizeKey(slug)]
}

// All returns every persona sorted by slug.
func (r *Registry) All() []*Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Count returns the total number of registered personas.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.personas)
}

// IndexOptions returns the default-pool overrides declared by personas.
func (r *Registry) IndexOptions() []dialogue.IndexOption {
	var opts []dialogue.IndexOption
	for _, p := range r.All() {
		if p.DefaultPool != "" {
			opts = append(opts, dialogue.WithDefaultPool(p.Slug, p.DefaultPool))
		}
	}
	return opts
}
