// Package devserver is a Flox-compatible backend for local development and
// integration tests. It speaks the same wire protocol as the hosted service
// and keeps its data in memory or in Redis.
package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/flox-go/internal/telemetry"
	"github.com/birbparty/flox-go/internal/wire"
)

// localsRequest is the fiber locals key of the decoded request.
const localsRequest = "flox.request"

// Server is the development backend
type Server struct {
	app    *fiber.App
	config *Config
	store  Store
	logger *logrus.Entry
}

// New builds the server and registers its routes. The server does not own
// the store; closing it is up to the caller.
func New(config *Config, store Store) *Server {
	s := &Server{
		config: config,
		store:  Instrument(store),
		logger: telemetry.L().WithField("component", "devserver"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "floxd",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(telemetry.FiberLoggingMiddleware())
	s.app.Use(telemetry.FiberMetricsMiddleware())

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/metrics", telemetry.FiberPrometheusHandler())
	s.app.Get("/health", s.health)

	api := s.app.Group("/api/games/:game")

	api.Get("/", s.authorize, s.status)
	api.Post("/authenticate", s.authorize, s.authenticate)

	api.Get("/entities/:type/:id", s.authorize, s.getEntity)
	api.Put("/entities/:type/:id", s.authorize, s.putEntity)
	api.Delete("/entities/:type/:id", s.authorize, s.deleteEntity)
	api.Post("/entities/:type", s.authorize, s.findEntities)

	api.Get("/leaderboards/:board", s.authorize, s.loadScores)
	api.Post("/leaderboards/:board", s.authorize, s.postScore)

	api.Get("/logs", s.authorize, s.findLogs)
	api.Post("/logs", s.authorize, s.postLog)
	api.Get("/logs/:id", s.authorize, s.getLog)

	s.app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Endpoint not found")
	})
}

// App exposes the fiber application, e.g. for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown is called
func (s *Server) Listen() error {
	s.logger.WithFields(logrus.Fields{
		"address":  s.config.Address(),
		"games":    len(s.config.Games),
		"compress": s.config.CompressResponses,
	}).Info("Flox development backend listening")
	return s.app.Listen(s.config.Address())
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestContext is the decoded part of a Flox request
type requestContext struct {
	game   string
	meta   *wire.Metadata
	player Document
	body   interface{}
}

func (r *requestContext) playerID() string {
	return stringOf(r.player["id"])
}

// isHero reports whether the caller logged in with a hero key. Heroes
// bypass access checks.
func (r *requestContext) isHero() bool {
	return stringOf(r.player["authType"]) == "key"
}

func (r *requestContext) canAccess(doc Document, mode string) bool {
	owner := stringOf(doc["ownerId"])
	if owner == "" || owner == r.playerID() || r.isHero() {
		return true
	}
	return strings.Contains(stringOf(doc["publicAccess"]), mode)
}

func (r *requestContext) bodyMap() (map[string]interface{}, error) {
	m, ok := r.body.(map[string]interface{})
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Request body must be a JSON object")
	}
	return m, nil
}

func requestFrom(c *fiber.Ctx) *requestContext {
	rc, _ := c.Locals(localsRequest).(*requestContext)
	return rc
}

// authorize validates the metadata header against the game registry and
// decodes the (possibly compressed) request body.
func (s *Server) authorize(c *fiber.Ctx) error {
	game := c.Params("game")
	key, ok := s.config.Games[game]
	if !ok {
		return fiber.NewError(fiber.StatusForbidden, fmt.Sprintf("Unknown game '%s'", game))
	}

	meta, err := wire.DecodeMetadata(c.Get(wire.HeaderName))
	if err != nil {
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	if meta.GameKey != key {
		return fiber.NewError(fiber.StatusForbidden, "Invalid game key")
	}

	rc := &requestContext{game: game, meta: meta}
	if len(meta.Player) > 0 {
		_ = json.Unmarshal(meta.Player, &rc.player)
	}

	if body := c.Body(); c.Method() != fiber.MethodGet && len(bytes.TrimSpace(body)) > 0 {
		if meta.BodyCompression == wire.CompressionZlib {
			if inflated, err := wire.Decompress(body); err == nil {
				body = inflated
			}
		}
		if err := wire.Unmarshal(body, &rc.body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	c.Locals(localsRequest, rc)
	return c.Next()
}

// reply writes value as JSON, deflated when response compression is on.
func (s *Server) reply(c *fiber.Ctx, status int, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	if s.config.CompressResponses {
		data, err = wire.Compress(data)
		if err != nil {
			return err
		}
		c.Set(wire.ContentEncodingHeader, wire.CompressionZlib)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(data)
}

// handleError renders every error as {"message": ...}
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		message = fe.Message
	case errors.Is(err, ErrNotFound):
		code = fiber.StatusNotFound
		message = "Not found"
	default:
		telemetry.WithContext(c.UserContext()).WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("Request failed")
	}

	if replyErr := s.reply(c, code, fiber.Map{"message": message}); replyErr != nil {
		return c.Status(code).SendString(message)
	}
	return nil
}

// health reports the store's health; it needs no game credentials.
func (s *Server) health(c *fiber.Ctx) error {
	if err := s.store.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"store":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "healthy", "version": s.config.Version})
}
