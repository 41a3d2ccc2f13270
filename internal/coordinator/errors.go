package coordinator

import "errors"

// Errors attached to the warning logs of rejected operations. Rejected
// operations never change coordinator state.
var (
	ErrNilAbility        = errors.New("ability is nil")
	ErrUnknownAbility    = errors.New("ability is not registered with this coordinator")
	ErrAlreadyActive     = errors.New("ability is already active")
	ErrNotActive         = errors.New("ability is not active")
	ErrAlreadyRegistered = errors.New("ability is already registered")
	ErrNotRegistered     = errors.New("ability is not registered")
	ErrClosed            = errors.New("coordinator is closed")
)
