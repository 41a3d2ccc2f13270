// Package body is a minimal consumer of processed movement: a point that
// moves by the current direction times a speed on every fixed step.
package body

import (
	"context"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/legerdo/ability-input-go/internal/movement"
)

// Body integrates position += direction * speed * dt.
type Body struct {
	speed  float64
	logger *zap.Logger

	mu        sync.RWMutex
	position  mgl64.Vec2
	direction mgl64.Vec2
	steps     uint64

	source *movement.Output
	handle int
}

// New creates a body at the origin.
func New(speed float64, logger *zap.Logger) *Body {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Body{speed: speed, logger: logger, handle: -1}
}

// Attach follows out: every value written to it becomes the body's
// direction. Attaching again replaces the previous source.
func (b *Body) Attach(out *movement.Output) {
	if out == nil {
		b.logger.Error("movement output is nil, cannot attach")
		return
	}
	b.Detach()

	b.mu.Lock()
	b.source = out
	b.direction = out.Value()
	b.mu.Unlock()

	handle := out.Subscribe(b.SetDirection)

	b.mu.Lock()
	b.handle = handle
	b.mu.Unlock()
}

// Detach stops following the attached output.
func (b *Body) Detach() {
	b.mu.Lock()
	source, handle := b.source, b.handle
	b.source, b.handle = nil, -1
	b.mu.Unlock()

	if source != nil {
		source.Unsubscribe(handle)
	}
}

// SetDirection sets the movement applied on the next step.
func (b *Body) SetDirection(v mgl64.Vec2) {
	b.mu.Lock()
	b.direction = v
	b.mu.Unlock()
}

// Step advances the body by dt.
func (b *Body) Step(dt time.Duration) {
	if dt <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = b.position.Add(b.direction.Mul(b.speed * dt.Seconds()))
	b.steps++
}

// Position returns the current position.
func (b *Body) Position() mgl64.Vec2 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.position
}

// Direction returns the movement the next step will apply.
func (b *Body) Direction() mgl64.Vec2 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.direction
}

// Steps returns the number of steps taken.
func (b *Body) Steps() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.steps
}

// Run steps the body every step until ctx is done.
func (b *Body) Run(ctx context.Context, step time.Duration) error {
	if step <= 0 {
		step = 20 * time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	b.logger.Debug("body loop started", zap.Duration("step", step))
	for {
		select {
		case <-ctx.Done():
			pos := b.Position()
			b.logger.Debug("body loop stopped",
				zap.Float64("x", pos[0]),
				zap.Float64("y", pos[1]),
				zap.Uint64("steps", b.Steps()))
			return ctx.Err()
		case <-ticker.C:
			b.Step(step)
		}
	}
}
