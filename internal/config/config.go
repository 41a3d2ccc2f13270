// Package config loads the server configuration from a YAML file with
// ABILITY_-prefixed environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/legerdo/ability-input-go/internal/ability"
)

// EnvPrefix prefixes every environment override, e.g. ABILITY_LOGGING_LEVEL.
const EnvPrefix = "ABILITY"

// Config is the full server configuration.
type Config struct {
	Logging   LoggingConfig        `mapstructure:"logging"`
	Engine    EngineConfig         `mapstructure:"engine"`
	Body      BodyConfig           `mapstructure:"body"`
	WebSocket WebSocketConfig      `mapstructure:"websocket"`
	Abilities []ability.Definition `mapstructure:"abilities"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig controls the executor loop.
type EngineConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// BodyConfig controls the demo movement consumer.
type BodyConfig struct {
	Speed float64       `mapstructure:"speed"`
	Step  time.Duration `mapstructure:"step"`
}

// WebSocketConfig controls the remote input endpoint.
type WebSocketConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Path       string `mapstructure:"path"`
	SendBuffer int    `mapstructure:"send_buffer"`
}

// DefaultAbilities is used when the configuration lists none.
func DefaultAbilities() []ability.Definition {
	return []ability.Definition{
		{
			Name:     "confusion",
			Kind:     ability.KindReverseDirection,
			Duration: 3 * time.Second,
			Refresh:  true,
		},
		{
			Name:                       "drunk",
			Kind:                       ability.KindRandomDirection,
			Duration:                   5 * time.Second,
			RequiresContinuousMovement: true,
			ChangeInterval:             ability.DefaultChangeInterval,
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("engine.tick_interval", 16*time.Millisecond)

	v.SetDefault("body.speed", 5.0)
	v.SetDefault("body.step", 20*time.Millisecond)

	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.address", ":8080")
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.send_buffer", 32)
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Abilities) == 0 {
		cfg.Abilities = DefaultAbilities()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges. Ability definitions are checked in
// isolation; duplicate names are rejected when the catalog is built.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not console or json", c.Logging.Format)
	}

	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive, got %s", c.Engine.TickInterval)
	}
	if c.Body.Step <= 0 {
		return fmt.Errorf("body.step must be positive, got %s", c.Body.Step)
	}
	if c.Body.Speed < 0 {
		return fmt.Errorf("body.speed must not be negative, got %g", c.Body.Speed)
	}

	if c.WebSocket.Enabled {
		if c.WebSocket.Address == "" {
			return fmt.Errorf("websocket.address is required when websocket is enabled")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return fmt.Errorf("websocket.path %q must start with /", c.WebSocket.Path)
		}
		if c.WebSocket.SendBuffer <= 0 {
			return fmt.Errorf("websocket.send_buffer must be positive, got %d", c.WebSocket.SendBuffer)
		}
	}

	for i, d := range c.Abilities {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("abilities[%d]: %w", i, err)
		}
	}
	return nil
}
