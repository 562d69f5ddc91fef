package broker

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoExecutor is returned when no executor is registered for a mode.
var ErrNoExecutor = errors.New("no executor registered")

// Registry maps execution modes to executors. REAL mode has no built-in
// executor; an external adapter must be registered before it can be used.
type Registry struct {
	mu sync.RWMutex
	m  map[Mode]Executor
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[Mode]Executor)}
}

func (r *Registry) Register(mode Mode, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[mode] = e
}

// Select returns the executor for mode.
func (r *Registry) Select(mode Mode) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[mode]
	if !ok {
		return nil, fmt.Errorf("%w for mode %s", ErrNoExecutor, mode)
	}
	return e, nil
}
