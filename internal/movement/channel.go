package movement

import (
	"sync"

	"go.uber.org/zap"
)

// Transformer mutates a movement signal in place.
type Transformer func(*Signal)

// Handle identifies a transformer registration on a Channel.
// The zero Handle is never issued.
type Handle uint64

type subscriber struct {
	handle Handle
	name   string
	fn     Transformer
}

// Channel is the broadcast point abilities register transformers on.
// Publish runs transformers in subscription order against one signal.
type Channel struct {
	mu     sync.RWMutex
	subs   []subscriber
	next   Handle
	logger *zap.Logger
}

// NewChannel creates an empty movement channel.
func NewChannel(logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{logger: logger}
}

// Subscribe appends a transformer and returns its handle.
// A nil transformer is rejected and the zero handle returned.
func (c *Channel) Subscribe(name string, fn Transformer) Handle {
	if fn == nil {
		c.logger.Error("attempted to subscribe nil transformer", zap.String("name", name))
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	c.subs = append(c.subs, subscriber{handle: c.next, name: name, fn: fn})

	c.logger.Debug("transformer subscribed",
		zap.String("name", name),
		zap.Uint64("handle", uint64(c.next)),
		zap.Int("subscribers", len(c.subs)))

	return c.next
}

// Unsubscribe removes the transformer registered under h.
// It reports whether anything was removed; unknown handles are a no-op.
func (c *Channel) Unsubscribe(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subs {
		if sub.handle != h {
			continue
		}
		c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
		c.logger.Debug("transformer unsubscribed",
			zap.String("name", sub.name),
			zap.Uint64("handle", uint64(h)),
			zap.Int("subscribers", len(c.subs)))
		return true
	}
	return false
}

// Publish invokes every subscribed transformer in order.
// A nil signal is logged and ignored.
func (c *Channel) Publish(sig *Signal) {
	if sig == nil {
		c.logger.Error("movement signal is nil, cannot publish")
		return
	}

	// Snapshot so transformers may (un)subscribe without deadlocking.
	c.mu.RLock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(sig)
	}
}

// Len returns the number of registered transformers.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Subscribers returns transformer names in subscription order.
func (c *Channel) Subscribers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.subs))
	for _, sub := range c.subs {
		names = append(names, sub.name)
	}
	return names
}

// Clear drops every registration.
func (c *Channel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = nil
}
