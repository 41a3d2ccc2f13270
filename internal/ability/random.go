package ability

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/legerdo/ability-input-go/internal/movement"
	"github.com/legerdo/ability-input-go/internal/schedule"
)

// DefaultChangeInterval is used when a random-direction ability is
// configured without an interval.
const DefaultChangeInterval = time.Second

var directions = [4]mgl64.Vec2{movement.Up, movement.Down, movement.Left, movement.Right}

// RandomDirection ignores player input and forces movement in one of the
// four cardinal directions, re-rolled every interval while active.
type RandomDirection struct {
	Base

	interval time.Duration
	rng      *rand.Rand

	current   mgl64.Vec2
	changedAt time.Time
	now       func() time.Time

	task   *schedule.Handle
	cancel context.CancelFunc
}

// RandomOption customizes a RandomDirection.
type RandomOption func(*RandomDirection)

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) RandomOption {
	return func(a *RandomDirection) {
		if rng != nil {
			a.rng = rng
		}
	}
}

// WithClock sets the time source recorded on each direction change.
func WithClock(now func() time.Time) RandomOption {
	return func(a *RandomDirection) {
		if now != nil {
			a.now = now
		}
	}
}

// NewRandomDirection creates a random-direction ability.
func NewRandomDirection(cfg Config, interval time.Duration, logger *zap.Logger, opts ...RandomOption) *RandomDirection {
	if interval <= 0 {
		interval = DefaultChangeInterval
	}
	a := &RandomDirection{
		Base:     NewBase(cfg, logger),
		interval: interval,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Interval returns the direction change interval.
func (a *RandomDirection) Interval() time.Duration {
	return a.interval
}

// Current returns the direction the ability is currently forcing.
func (a *RandomDirection) Current() mgl64.Vec2 {
	return a.current
}

// ChangedAt returns when the direction last changed.
func (a *RandomDirection) ChangedAt() time.Time {
	return a.changedAt
}

// Activate subscribes the transformer, rolls a direction and starts the
// periodic re-roll. The re-roll lives until Deactivate, not until the
// activation's own scope, so a duration refresh keeps it running.
func (a *RandomDirection) Activate(ctx context.Context, ch *movement.Channel, tasks Tasks) {
	if !a.subscribe(ch, a.Transform) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a.roll()

	if tasks == nil {
		a.logger.Warn("no task scheduler, direction will not change")
		return
	}
	taskCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.task = tasks.Every(taskCtx, a.interval, a.roll)
}

// Deactivate unsubscribes and stops the re-roll task.
func (a *RandomDirection) Deactivate(ch *movement.Channel) {
	if !a.unsubscribe(ch) {
		return
	}
	a.task.Cancel()
	a.task = nil
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// Transform replaces the movement with the current random direction.
func (a *RandomDirection) Transform(sig *movement.Signal) {
	if sig == nil {
		a.logger.Error("movement signal is nil, cannot apply random direction")
		return
	}
	sig.Movement = a.current
}

func (a *RandomDirection) roll() {
	a.current = directions[a.rng.IntN(len(directions))]
	a.changedAt = a.now()
	a.logger.Debug("random direction changed",
		zap.Float64("x", a.current[0]),
		zap.Float64("y", a.current[1]))
}
