// Package httpapi exposes the service over HTTP: credential endpoints,
// multipart upload, streamed download, and a health probe.
package httpapi

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"github.com/smartctf/filevault/internal/logging"
	"github.com/smartctf/filevault/internal/server/config"
	"github.com/smartctf/filevault/internal/server/services"
)

type Server struct {
	app       *fiber.App
	db        *sql.DB
	cfg       *config.Config
	users     *services.UserService
	uploads   *services.UploadService
	downloads *services.DownloadService
	logger    logging.Logger
}

func NewServer(cfg *config.Config, db *sql.DB, users *services.UserService,
	uploads *services.UploadService, downloads *services.DownloadService, logger logging.Logger) *Server {

	app := fiber.New(fiber.Config{
		BodyLimit:             int(cfg.MaxUploadBytes),
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:       app,
		db:        db,
		cfg:       cfg,
		users:     users,
		uploads:   uploads,
		downloads: downloads,
		logger:    logger.With("module", "httpapi"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	auth := s.app.Group("/auth")
	auth.Post("/register", s.handleRegister)
	auth.Post("/login", s.handleLogin)

	files := s.app.Group("/files", s.requireAuth)
	files.Post("/upload", s.handleUpload)
	files.Get("/:id/download", s.handleDownload)
}

// Listen serves on the configured address until Shutdown is called.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.EndpointAddrHTTP)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
