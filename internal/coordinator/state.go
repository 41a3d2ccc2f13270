package coordinator

import (
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/legerdo/ability-input-go/internal/ability"
)

// ActiveState describes one active ability.
type ActiveState struct {
	Name      string
	StartedAt time.Time
	ExpiresAt time.Time
	Refreshes int
}

// IsActive reports whether a is in the active set.
func (c *Coordinator) IsActive(a ability.Ability) bool {
	if a == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.active[a]
	return ok
}

// Active returns the state of a, if active.
func (c *Coordinator) Active(a ability.Ability) (ActiveState, bool) {
	if a == nil {
		return ActiveState{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	act, ok := c.active[a]
	if !ok {
		return ActiveState{}, false
	}
	return ActiveState{
		Name:      a.Name(),
		StartedAt: act.startedAt,
		ExpiresAt: act.expiresAt,
		Refreshes: act.refreshes,
	}, true
}

// ActiveAbilities returns active ability names in activation order, which
// is also the order their transformers run in.
func (c *Coordinator) ActiveAbilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type entry struct {
		name string
		seq  uint64
	}
	entries := make([]entry, 0, len(c.active))
	for a, act := range c.active {
		entries = append(entries, entry{name: a.Name(), seq: act.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// AvailableAbilities returns the names of abilities eligible for
// activation, in registration order.
func (c *Coordinator) AvailableAbilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.available))
	for i, a := range c.available {
		names[i] = a.Name()
	}
	return names
}

// RequiresContinuousMovement reports whether the executor tick currently
// re-publishes movement.
func (c *Coordinator) RequiresContinuousMovement() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.continuous
}

// LastInput returns the last raw movement received.
func (c *Coordinator) LastInput() mgl64.Vec2 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastInput
}

// Publishes returns how many times movement went through the pipeline.
func (c *Coordinator) Publishes() uint64 {
	return c.publishes.Load()
}
