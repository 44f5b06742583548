package scheduler

import (
	"slices"
	"sync"
	"time"
)

// Processor binds a task type to the handler that executes it.
type Processor struct {
	Type        string
	Handler     Handler
	Concurrency int           // Max tasks of this type running at once; 0 = unlimited
	Timeout     time.Duration // Used when a task sets no timeout; 0 = engine default
}

// Registry maps task types to processors. Written by the engine API, read by
// workers at execution time.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		processors: make(map[string]Processor),
	}
}

// Register adds or replaces the processor for p.Type.
func (r *Registry) Register(p Processor) error {
	if p.Type == "" {
		return Invalid("register_processor", ErrInvalidProcessor, "empty task type")
	}
	if p.Handler == nil {
		return Invalid("register_processor", ErrInvalidProcessor, "nil handler for %q", p.Type)
	}
	if p.Concurrency < 0 {
		return Invalid("register_processor", ErrInvalidProcessor, "negative concurrency for %q", p.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Type] = p
	return nil
}

// Unregister removes the processor for typ. Reports whether one was registered.
func (r *Registry) Unregister(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.processors[typ]; !ok {
		return false
	}
	delete(r.processors, typ)
	return true
}

// Lookup returns the processor for typ.
func (r *Registry) Lookup(typ string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.processors[typ]
	return p, ok
}

// Has reports whether typ has a processor.
func (r *Registry) Has(typ string) bool {
	_, ok := r.Lookup(typ)
	return ok
}

// Types returns the registered task types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.processors))
	for typ := range r.processors {
		types = append(types, typ)
	}
	slices.Sort(types)
	return types
}
