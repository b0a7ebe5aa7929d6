package renkei

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handle identifies a registered observer so it can be removed later
type Handle string

// registry holds observers of one value type. Notification is synchronous
// and in registration order; a panicking observer is recovered and logged
// so the remaining observers still run.
type registry[T any] struct {
	mutex     sync.RWMutex
	order     []Handle
	observers map[Handle]func(T)
	logger    zerolog.Logger
}

func newRegistry[T any](logger zerolog.Logger) *registry[T] {
	return &registry[T]{
		observers: make(map[Handle]func(T)),
		logger:    logger,
	}
}

// add registers an observer and returns its handle
func (r *registry[T]) add(fn func(T)) Handle {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	handle := Handle(uuid.New().String())
	r.observers[handle] = fn
	r.order = append(r.order, handle)
	return handle
}

// remove deregisters the observer for a handle, if still present
func (r *registry[T]) remove(handle Handle) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.observers[handle]; !ok {
		return
	}
	delete(r.observers, handle)
	for i, h := range r.order {
		if h == handle {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// notify calls every observer in registration order with the value.
// Observers run outside the lock so they may add or remove registrations.
func (r *registry[T]) notify(value T) {
	r.mutex.RLock()
	fns := make([]func(T), 0, len(r.order))
	for _, handle := range r.order {
		fns = append(fns, r.observers[handle])
	}
	r.mutex.RUnlock()

	for _, fn := range fns {
		r.call(fn, value)
	}
}

func (r *registry[T]) call(fn func(T), value T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Observer panicked")
		}
	}()
	fn(value)
}

func (r *registry[T]) len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.observers)
}
