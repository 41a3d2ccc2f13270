// Package movement holds the movement values that flow from input, through
// ability transformers, to the consumer of the final vector.
package movement

import "github.com/go-gl/mathgl/mgl64"

// Unit directions used by abilities that force movement.
var (
	Up    = mgl64.Vec2{0, 1}
	Down  = mgl64.Vec2{0, -1}
	Left  = mgl64.Vec2{-1, 0}
	Right = mgl64.Vec2{1, 0}
)

// Signal is the in-flight movement value for a single publish.
// Every transformer receives the same Signal, so mutations compose.
type Signal struct {
	Movement mgl64.Vec2
}

// NewSignal creates a signal seeded with the raw movement.
func NewSignal(movement mgl64.Vec2) *Signal {
	return &Signal{Movement: movement}
}

// IsZero reports whether v is the zero vector.
func IsZero(v mgl64.Vec2) bool {
	return v[0] == 0 && v[1] == 0
}
