package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/puzzleworks/piecefinder/pkg/registry"
	"github.com/puzzleworks/piecefinder/pkg/segment"
	"github.com/puzzleworks/piecefinder/pkg/store"
)

// Server is the API server for managing puzzles and matching pieces.
type Server struct {
	config    Config
	storer    store.Driver
	matchers  *registry.Registry
	segmenter *segment.Segmenter
	logger    *zap.Logger
	app       *fiber.App
}

// NewServer creates a new API server.
// The storer and matcher registry are injected to allow sharing with the
// warm-up worker pool.
func NewServer(config Config, storer store.Driver, matchers *registry.Registry, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})

	app.Use(cors.New())

	s := &Server{
		config:    config,
		storer:    storer,
		matchers:  matchers,
		segmenter: segment.New(config.SegmentParams),
		logger:    logger,
		app:       app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/api/puzzle/upload", s.handleUpload)
	app.Get("/api/puzzles", s.handleListPuzzles)
	app.Get("/api/puzzle/:id", s.handleGetPuzzleImage)
	app.Get("/api/puzzle/:id/info", s.handleGetPuzzleInfo)
	app.Delete("/api/puzzle/:id", s.handleDeletePuzzle)
	app.Post("/api/puzzle/:id/match/raw", s.handleMatchRaw)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/match/:id", websocket.New(s.handleMatchStream))

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
