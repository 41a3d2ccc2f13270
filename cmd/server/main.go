package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/legerdo/ability-input-go/internal/ability"
	"github.com/legerdo/ability-input-go/internal/body"
	"github.com/legerdo/ability-input-go/internal/config"
	"github.com/legerdo/ability-input-go/internal/coordinator"
	"github.com/legerdo/ability-input-go/internal/schedule"
	"github.com/legerdo/ability-input-go/internal/transport/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file (empty for defaults)")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting ability input server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Build abilities
	catalog, err := ability.NewCatalog(cfg.Abilities, logger)
	if err != nil {
		logger.Fatal("failed to build ability catalog", zap.Error(err))
	}
	logger.Info("ability catalog built", zap.Int("abilities", len(catalog.All())))

	// Initialize executor and coordinator
	exec := schedule.NewExecutor(schedule.SystemClock{}, logger.Named("executor"))
	events := ability.NewActivationEvent(logger)
	coord := coordinator.New(coordinator.Options{
		Executor:  exec,
		Logger:    logger.Named("coordinator"),
		Abilities: catalog.All(),
	})
	coord.Bind(events)

	// Demo consumer of processed movement
	player := body.New(cfg.Body.Speed, logger.Named("body"))
	player.Attach(coord.Output())

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(name+" stopped with error", zap.Error(err))
			}
		}()
	}

	run("executor", func() error { return exec.Run(ctx, cfg.Engine.TickInterval) })
	run("body", func() error { return player.Run(ctx, cfg.Body.Step) })

	// Start WebSocket server
	if cfg.WebSocket.Enabled {
		srv, err := ws.NewServer(ws.Options{
			Config:      cfg.WebSocket,
			Controller:  coord,
			Resolver:    catalog,
			Activations: events,
			Output:      coord.Output(),
			Logger:      logger.Named("ws"),
		})
		if err != nil {
			logger.Fatal("failed to create WebSocket server", zap.Error(err))
		}
		run("WebSocket server", func() error { return srv.ListenAndServe(ctx) })
	}

	logger.Info("ability input server initialized",
		zap.Duration("tick_interval", cfg.Engine.TickInterval),
		zap.Bool("websocket", cfg.WebSocket.Enabled),
		zap.String("websocket_address", cfg.WebSocket.Address),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	coord.Close()
	cancel()
	wg.Wait()

	// Run the close posted above if the executor stopped first.
	exec.RunPending()

	pos := player.Position()
	logger.Info("ability input server stopped",
		zap.Float64("x", pos[0]),
		zap.Float64("y", pos[1]),
	)
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
