// Package ability defines time-bounded behaviors that intercept movement
// published on a movement.Channel.
package ability

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/legerdo/ability-input-go/internal/movement"
	"github.com/legerdo/ability-input-go/internal/schedule"
)

// Config is the static, configuration-time description of an ability.
type Config struct {
	Name string

	// Duration is how long the ability stays active once activated.
	// Zero expires on the next scheduler pass.
	Duration time.Duration

	// RequiresContinuousMovement makes the coordinator re-publish the last
	// input on every tick while the ability is active.
	RequiresContinuousMovement bool

	// RefreshAbility restarts the duration when an active ability is
	// activated again, instead of ignoring the request.
	RefreshAbility bool
}

// Tasks schedules background work on the owning executor.
type Tasks interface {
	Every(ctx context.Context, interval time.Duration, fn func()) *schedule.Handle
}

// Ability is a behavior the coordinator can activate and deactivate.
// Activate and Deactivate are guarded, so repeated calls are no-ops.
type Ability interface {
	ID() string
	Name() string
	Config() Config
	Activate(ctx context.Context, ch *movement.Channel, tasks Tasks)
	Deactivate(ch *movement.Channel)
	Transform(sig *movement.Signal)
}

// Base carries the configuration and subscription state shared by all
// abilities. Concrete abilities embed it.
type Base struct {
	id     string
	cfg    Config
	logger *zap.Logger

	handle     movement.Handle
	subscribed bool
}

// NewBase builds the shared part of an ability.
func NewBase(cfg Config, logger *zap.Logger) Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("ability|"+cfg.Name)).String()

	return Base{
		id:     id,
		cfg:    cfg,
		logger: logger.With(zap.String("ability", cfg.Name)),
	}
}

// ID returns the stable identifier derived from the ability name.
func (b *Base) ID() string {
	return b.id
}

// Name returns the configured name.
func (b *Base) Name() string {
	return b.cfg.Name
}

// Config returns the static configuration.
func (b *Base) Config() Config {
	return b.cfg
}

// Subscribed reports whether the ability's transformer is registered.
func (b *Base) Subscribed() bool {
	return b.subscribed
}

// subscribe registers fn once. It reports false when already subscribed or
// when ch is nil.
func (b *Base) subscribe(ch *movement.Channel, fn movement.Transformer) bool {
	if ch == nil {
		b.logger.Error("movement channel is nil, cannot activate")
		return false
	}
	if b.subscribed {
		return false
	}
	b.handle = ch.Subscribe(b.cfg.Name, fn)
	b.subscribed = b.handle != 0
	if b.subscribed {
		b.logger.Info("ability activated and subscribed to movement")
	}
	return b.subscribed
}

// unsubscribe removes the registration. It reports false when not
// subscribed or when ch is nil.
func (b *Base) unsubscribe(ch *movement.Channel) bool {
	if ch == nil {
		b.logger.Error("movement channel is nil, cannot deactivate")
		return false
	}
	if !b.subscribed {
		return false
	}
	ch.Unsubscribe(b.handle)
	b.handle = 0
	b.subscribed = false
	b.logger.Info("ability deactivated and unsubscribed from movement")
	return true
}
