package ability

import (
	"sync"

	"go.uber.org/zap"
)

// ActivationEvent is the fire point callers use to request that an ability
// be activated. Listeners run synchronously, in subscription order.
type ActivationEvent struct {
	mu         sync.RWMutex
	listeners  map[int]func(Ability)
	order      []int
	nextHandle int
	logger     *zap.Logger
}

// NewActivationEvent creates an event with no listeners.
func NewActivationEvent(logger *zap.Logger) *ActivationEvent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivationEvent{
		listeners: make(map[int]func(Ability)),
		logger:    logger,
	}
}

// Subscribe registers a listener and returns its handle, or -1 for nil.
func (e *ActivationEvent) Subscribe(fn func(Ability)) int {
	if fn == nil {
		return -1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.nextHandle
	e.nextHandle++
	e.listeners[h] = fn
	e.order = append(e.order, h)
	return h
}

// Unsubscribe removes the listener identified by handle.
func (e *ActivationEvent) Unsubscribe(handle int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.listeners[handle]; !ok {
		return
	}
	delete(e.listeners, handle)
	for i, h := range e.order {
		if h == handle {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Raise asks every listener to activate a. A nil ability is logged and
// dropped.
func (e *ActivationEvent) Raise(a Ability) {
	if a == nil {
		e.logger.Error("ability is nil, cannot raise activation event")
		return
	}

	e.mu.RLock()
	listeners := make([]func(Ability), 0, len(e.order))
	for _, h := range e.order {
		listeners = append(listeners, e.listeners[h])
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(a)
	}
}

// Len returns the number of listeners.
func (e *ActivationEvent) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.order)
}

// RemoveAllListeners drops every listener.
func (e *ActivationEvent) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[int]func(Ability))
	e.order = nil
}
