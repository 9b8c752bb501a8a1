package actions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAlreadyRegistered is returned when a kind is registered twice.
var ErrAlreadyRegistered = errors.New("action kind already registered")

// Registry maps action kinds to their handlers and metadata. It is built
// during process startup and passed explicitly to the orchestration engine;
// there is no global instance. Reads after startup vastly outnumber writes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a kind to the registry. Registering the same kind twice is a
// programmer error and fails with ErrAlreadyRegistered.
func (r *Registry) Register(entry Entry) error {
	if entry.Kind == "" {
		return errors.New("action kind must not be empty")
	}
	if entry.Handler == nil {
		return fmt.Errorf("action kind %q has no handler", entry.Kind)
	}
	if entry.Timeout == 0 {
		entry.Timeout = DefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.Kind]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, entry.Kind)
	}
	r.entries[entry.Kind] = entry
	return nil
}

// MustRegister registers a kind and panics on error. Intended for wiring
// built-in kinds at startup, where a duplicate is a bug.
func (r *Registry) MustRegister(entry Entry) {
	if err := r.Register(entry); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for a kind, or false when the kind is unknown.
func (r *Registry) Lookup(kind string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[kind]
	return entry, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.entries))
	for kind := range r.entries {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
