// Package trigger holds the process-wide registry of pipeline triggers and
// the settings plumbing that keeps each trigger's configuration surface
// isolated from the rest of the runtime config.
package trigger

import (
	"fmt"
	"sort"
	"sync"
)

// FieldSpec describes one tunable field of a trigger, for discovery
// endpoints.
type FieldSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// SettingsModel maps field names to their specs.
type SettingsModel map[string]FieldSpec

// Spec is a registry entry for one trigger of one pipeline.
type Spec struct {
	Pipeline    string        `json:"pipeline"`
	Trigger     string        `json:"trigger"`
	Description string        `json:"description"`
	Settings    SettingsModel `json:"settings"`
}

// Key returns the registry key, "pipeline.trigger".
func (s Spec) Key() string {
	return s.Pipeline + "." + s.Trigger
}

// Registry is a concurrency-safe trigger spec registry.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a spec. Registering the same key twice is an error.
func (r *Registry) Register(s Spec) error {
	if s.Pipeline == "" || s.Trigger == "" {
		return fmt.Errorf("trigger: spec needs pipeline and trigger names")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := s.Key()
	if _, exists := r.specs[key]; exists {
		return fmt.Errorf("trigger: %s already registered", key)
	}
	r.specs[key] = s
	return nil
}

// Get returns a spec by pipeline and trigger name.
func (r *Registry) Get(pipeline, trigger string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[pipeline+"."+trigger]
	return s, ok
}

// List returns all specs ordered by key.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Describe returns the settings model for one trigger, or an error when the
// trigger is unknown.
func (r *Registry) Describe(pipeline, trigger string) (SettingsModel, error) {
	s, ok := r.Get(pipeline, trigger)
	if !ok {
		return nil, fmt.Errorf("trigger: unknown trigger %s.%s", pipeline, trigger)
	}
	return s.Settings, nil
}
