// Package server exposes the arena operations over HTTP and streams committed changes over a websocket.
package server

import (
	"context"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/arena/pkg/arena"
	"github.com/argus-labs/arena/pkg/arena/event"
)

const shutdownTimeout = 5 * time.Second

type config struct {
	Port string `env:"ARENA_PORT" envDefault:"4050"`
}

// Options configures a Server. Zero fields keep the value loaded from the environment.
type Options struct {
	Port   string
	Logger *zerolog.Logger

	// Listener, when set, is served instead of listening on Port.
	Listener net.Listener
}

type Server struct {
	app   *fiber.App
	arena *arena.Arena
	hub   *event.Hub
	log   zerolog.Logger

	port     string
	listener net.Listener
}

// New returns an HTTP server for a. The events endpoint is only registered when hub is non-nil.
func New(a *arena.Arena, hub *event.Hub, opts Options) (*Server, error) {
	if a == nil {
		return nil, eris.New("server requires a non-nil arena")
	}

	cfg, err := env.ParseAs[config]()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse server config")
	}
	port := cfg.Port
	if opts.Port != "" {
		port = opts.Port
	}
	if port == "" && opts.Listener == nil {
		return nil, eris.New("port must be specified")
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	s := &Server{
		arena:    a,
		hub:      hub,
		log:      log,
		port:     port,
		listener: opts.Listener,
	}
	s.app = fiber.New(fiber.Config{
		Network:               "tcp", // Enable server listening on both ipv4 & ipv6 (default: ipv4 only)
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	s.app.Use(cors.New())
	s.app.Use(s.requestLogger)
	s.setupRoutes()
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve serves the application until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		var err error
		if s.listener != nil {
			s.log.Info().Str("address", s.listener.Addr().String()).Msg("Starting HTTP server")
			err = s.app.Listener(s.listener)
		} else {
			s.log.Info().Msgf("Starting HTTP server at port %s", s.port)
			err = s.app.Listen(":" + s.port)
		}
		if err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return eris.Wrap(err, "server encountered an error")
	case <-ctx.Done():
		if err := s.shutdown(); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}
	return nil
}

func (s *Server) shutdown() error {
	s.log.Info().Msg("Shutting down server")

	// Close websocket connections before stopping fiber.
	if s.hub != nil {
		s.hub.Shutdown()
	}
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return eris.Wrap(err, "error shutting down server")
	}

	s.log.Info().Msg("Successfully shut down server")
	return nil
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", getHealth())

	if s.hub != nil {
		s.app.Use("/events", webSocketUpgrader)
		s.app.Get("/events", websocket.New(s.hub.Handler()))
	}

	g := s.app.Group("/arena", requireIdentity)

	// Route: /arena/queue/...
	g.Post("/queue/join", postJoin(s.arena))
	g.Post("/queue/leave", postLeave(s.arena))
	g.Get("/queue", getQueue(s.arena))
	g.Get("/player", getPlayer(s.arena))

	// Route: /arena/match/...
	g.Get("/match/:matchID", getMatch(s.arena))
	g.Get("/match/:matchID/board", getBoard(s.arena))
	g.Post("/match/:matchID/board", postBoard(s.arena))
	g.Delete("/match/:matchID/board", deleteBoard(s.arena))
	g.Post("/match/:matchID/ready", postReady(s.arena))
	g.Post("/match/:matchID/result", postResult(s.arena))
	g.Get("/match/:matchID/result", getResult(s.arena))
	g.Post("/match/:matchID/forfeit", postForfeit(s.arena))

	// Route: /arena/unit/...
	g.Post("/unit/:unitID/items", postItem(s.arena))
}

func webSocketUpgrader(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
