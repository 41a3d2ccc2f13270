package ability

import (
	"context"

	"go.uber.org/zap"

	"github.com/legerdo/ability-input-go/internal/movement"
)

// ReverseDirection negates incoming movement while active.
type ReverseDirection struct {
	Base
}

// NewReverseDirection creates a reverse-direction ability.
func NewReverseDirection(cfg Config, logger *zap.Logger) *ReverseDirection {
	return &ReverseDirection{Base: NewBase(cfg, logger)}
}

// Activate subscribes the negation transformer.
func (a *ReverseDirection) Activate(_ context.Context, ch *movement.Channel, _ Tasks) {
	a.subscribe(ch, a.Transform)
}

// Deactivate unsubscribes the transformer.
func (a *ReverseDirection) Deactivate(ch *movement.Channel) {
	a.unsubscribe(ch)
}

// Transform negates the signal's movement.
func (a *ReverseDirection) Transform(sig *movement.Signal) {
	if sig == nil {
		a.logger.Error("movement signal is nil, cannot reverse")
		return
	}
	sig.Movement = sig.Movement.Mul(-1)
}
