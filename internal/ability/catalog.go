package ability

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind selects the behavior a Definition builds.
type Kind string

const (
	KindReverseDirection Kind = "reverse_direction"
	KindRandomDirection  Kind = "random_direction"
)

// Definition is the configuration-file form of an ability.
type Definition struct {
	Name                       string        `mapstructure:"name"`
	Kind                       Kind          `mapstructure:"kind"`
	Duration                   time.Duration `mapstructure:"duration"`
	RequiresContinuousMovement bool          `mapstructure:"requires_continuous_movement"`
	Refresh                    bool          `mapstructure:"refresh"`
	ChangeInterval             time.Duration `mapstructure:"change_interval"`
}

// Validate checks a definition in isolation.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("ability name is required")
	}
	if d.Duration < 0 {
		return fmt.Errorf("ability %q: duration must not be negative", d.Name)
	}
	switch d.Kind {
	case KindReverseDirection:
	case KindRandomDirection:
		if d.ChangeInterval < 0 {
			return fmt.Errorf("ability %q: change_interval must not be negative", d.Name)
		}
	default:
		return fmt.Errorf("ability %q: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

func (d Definition) config() Config {
	return Config{
		Name:                       strings.TrimSpace(d.Name),
		Duration:                   d.Duration,
		RequiresContinuousMovement: d.RequiresContinuousMovement,
		RefreshAbility:             d.Refresh,
	}
}

// Build constructs the ability described by d.
func Build(d Definition, logger *zap.Logger, opts ...RandomOption) (Ability, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch d.Kind {
	case KindRandomDirection:
		return NewRandomDirection(d.config(), d.ChangeInterval, logger, opts...), nil
	default:
		return NewReverseDirection(d.config(), logger), nil
	}
}

// Catalog is the immutable set of abilities built at startup, in
// configuration order.
type Catalog struct {
	ordered []Ability
	byName  map[string]Ability
}

// NewCatalog builds every definition. Names must be unique
// (case-insensitive).
func NewCatalog(defs []Definition, logger *zap.Logger, opts ...RandomOption) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{byName: make(map[string]Ability, len(defs))}

	for i, d := range defs {
		a, err := Build(d, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("ability %d: %w", i, err)
		}
		key := strings.ToLower(a.Name())
		if _, exists := c.byName[key]; exists {
			return nil, fmt.Errorf("ability %d: duplicate name %q", i, a.Name())
		}
		c.byName[key] = a
		c.ordered = append(c.ordered, a)

		logger.Debug("ability configured",
			zap.String("ability", a.Name()),
			zap.String("kind", string(d.Kind)),
			zap.Duration("duration", d.Duration),
			zap.Bool("continuous", d.RequiresContinuousMovement),
			zap.Bool("refresh", d.Refresh))
	}
	return c, nil
}

// Lookup finds an ability by name.
func (c *Catalog) Lookup(name string) (Ability, bool) {
	if c == nil {
		return nil, false
	}
	a, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// All returns the abilities in configuration order.
func (c *Catalog) All() []Ability {
	if c == nil {
		return nil
	}
	return append([]Ability(nil), c.ordered...)
}
