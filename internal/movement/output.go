package movement

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Output is the shared movement value read by the simulation each tick.
type Output struct {
	mu         sync.RWMutex
	value      mgl64.Vec2
	writes     uint64
	listeners  map[int]func(mgl64.Vec2)
	order      []int
	nextHandle int
}

// NewOutput creates a zeroed output value.
func NewOutput() *Output {
	return &Output{listeners: make(map[int]func(mgl64.Vec2))}
}

// Set stores v and notifies listeners synchronously, in registration order.
func (o *Output) Set(v mgl64.Vec2) {
	o.mu.Lock()
	o.value = v
	o.writes++
	listeners := make([]func(mgl64.Vec2), 0, len(o.order))
	for _, h := range o.order {
		listeners = append(listeners, o.listeners[h])
	}
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// Value returns the most recently written movement.
func (o *Output) Value() mgl64.Vec2 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Writes returns how many times Set has been called.
func (o *Output) Writes() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.writes
}

// Subscribe registers a change listener and returns its handle, or -1 for nil.
func (o *Output) Subscribe(fn func(mgl64.Vec2)) int {
	if fn == nil {
		return -1
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.nextHandle
	o.nextHandle++
	o.listeners[h] = fn
	o.order = append(o.order, h)
	return h
}

// Unsubscribe removes the listener identified by handle.
func (o *Output) Unsubscribe(handle int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.listeners[handle]; !ok {
		return
	}
	delete(o.listeners, handle)
	for i, h := range o.order {
		if h == handle {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}
