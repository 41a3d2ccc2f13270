// Package ws exposes the movement pipeline to remote clients over
// websockets. Clients send raw movement and ability requests; every change
// of the processed movement is broadcast back to all of them.
package ws

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/legerdo/ability-input-go/internal/ability"
	"github.com/legerdo/ability-input-go/internal/config"
	"github.com/legerdo/ability-input-go/internal/movement"
)

const shutdownTimeout = 5 * time.Second

// Controller receives the requests that go straight to the coordinator.
type Controller interface {
	HandleMovement(v mgl64.Vec2)
	Deactivate(a ability.Ability)
}

// Resolver maps ability names from the wire to abilities.
type Resolver interface {
	Lookup(name string) (ability.Ability, bool)
	All() []ability.Ability
}

// Options configures a Server. Controller, Resolver and Activations are
// required.
type Options struct {
	Config      config.WebSocketConfig
	Controller  Controller
	Resolver    Resolver
	Activations *ability.ActivationEvent
	Output      *movement.Output
	Logger      *zap.Logger
}

// Server is the websocket input adapter.
type Server struct {
	cfg         config.WebSocketConfig
	ctrl        Controller
	resolver    Resolver
	activations *ability.ActivationEvent
	output      *movement.Output
	logger      *zap.Logger

	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer validates opts and creates a server. Call Run (or
// ListenAndServe) before accepting connections.
func NewServer(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("ws: controller is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("ws: resolver is required")
	}
	if opts.Activations == nil {
		return nil, errors.New("ws: activation event is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}

	return &Server{
		cfg:         cfg,
		ctrl:        opts.Controller,
		resolver:    opts.Resolver,
		activations: opts.Activations,
		output:      opts.Output,
		logger:      logger,
		hub:         newHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler serving the websocket endpoint at the
// configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	return mux
}

// Run forwards output changes to the hub and serves it until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.output != nil {
		handle := s.output.Subscribe(s.broadcastMovement)
		defer s.output.Unsubscribe(handle)
	}
	s.hub.Run(ctx)
}

// ListenAndServe runs the hub and an HTTP server on the configured address
// until ctx is done, then shuts the HTTP server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting WebSocket server",
			zap.String("address", lis.Addr().String()),
			zap.String("path", s.cfg.Path))
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("websocket server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown websocket server: %w", err)
	}
	s.logger.Info("WebSocket server stopped")
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, s.cfg.SendBuffer, s.logger)
	client.reply(s.welcome(client))

	if !s.hub.join(client) {
		client.close()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s.hub, s.handleMessage)
}

func (s *Server) welcome(c *Client) Message {
	all := s.resolver.All()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return Message{Type: TypeWelcome, ClientID: c.id, Abilities: names}
}

func (s *Server) handleMessage(c *Client, msg Message) {
	switch msg.Type {
	case TypeMove:
		if !finite(msg.X) || !finite(msg.Y) {
			c.reply(errorMessage("movement must be finite"))
			return
		}
		s.ctrl.HandleMovement(mgl64.Vec2{msg.X, msg.Y})

	case TypeActivate:
		a, ok := s.lookup(c, msg.Ability)
		if !ok {
			return
		}
		c.logger.Debug("activation requested", zap.String("ability", a.Name()))
		s.activations.Raise(a)

	case TypeDeactivate:
		a, ok := s.lookup(c, msg.Ability)
		if !ok {
			return
		}
		c.logger.Debug("deactivation requested", zap.String("ability", a.Name()))
		s.ctrl.Deactivate(a)

	default:
		c.logger.Warn("unknown message type", zap.String("type", msg.Type))
		c.reply(errorMessage(fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

func (s *Server) lookup(c *Client, name string) (ability.Ability, bool) {
	a, ok := s.resolver.Lookup(name)
	if !ok {
		c.logger.Warn("unknown ability requested", zap.String("ability", name))
		c.reply(errorMessage(fmt.Sprintf("unknown ability %q", name)))
	}
	return a, ok
}

func (s *Server) broadcastMovement(v mgl64.Vec2) {
	data, err := encode(movementMessage(v[0], v[1]))
	if err != nil {
		s.logger.Error("failed to encode movement", zap.Error(err))
		return
	}
	s.hub.Broadcast(data)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
