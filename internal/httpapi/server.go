// Package httpapi exposes the session manager as a local JSON API.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/session"
)

// Service is the part of the session manager the API drives.
type Service interface {
	State() session.State
	GenerateEmail(ctx context.Context) (*model.Account, error)
	DeleteActiveAccount(ctx context.Context) error
	ClearSession(ctx context.Context)
	UpdateSiteUsedFor(ctx context.Context, site string) error
	FetchMessages(ctx context.Context) ([]model.Message, error)
	RefreshMessages(ctx context.Context) error
	ViewMessage(ctx context.Context, id string) (*model.Message, error)
	Attachments(ctx context.Context, id string) ([]model.Attachment, error)
	Settings() model.Settings
	UpdateSettings(ctx context.Context, settings model.Settings) error
	APILimits(ctx context.Context) model.APILimits
	SavedEmails(ctx context.Context) ([]model.SavedEmail, error)
	SaveActiveAccount(ctx context.Context) (model.SavedEmail, error)
	DeleteSavedEmail(ctx context.Context, id string) error
}

var _ Service = (*session.Manager)(nil)

// errConfirmationRequired is returned by destructive routes called
// without confirm=true.
var errConfirmationRequired = errors.New("destructive action: repeat with confirm=true")

// Server wires the routes onto a fiber app.
type Server struct {
	app *fiber.App
	svc Service
	log zerolog.Logger
}

// NewServer creates the API around svc.
func NewServer(svc Service, log zerolog.Logger) *Server {
	s := &Server{svc: svc, log: log}

	s.app = fiber.New(fiber.Config{
		AppName:               "dragonmail",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)
	s.routes()

	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api/v1")
	api.Get("/state", s.getState)

	api.Post("/account", s.generate)
	api.Delete("/account", s.deleteAccount)
	api.Put("/account/site", s.updateSite)
	api.Post("/session/clear", s.clearSession)

	api.Get("/messages", s.listMessages)
	api.Post("/messages/refresh", s.refreshMessages)
	api.Get("/messages/:id", s.getMessage)

	api.Get("/settings", s.getSettings)
	api.Put("/settings", s.updateSettings)
	api.Get("/limits", s.getLimits)

	api.Get("/saved", s.listSaved)
	api.Post("/saved", s.saveActive)
	api.Delete("/saved/:id", s.deleteSaved)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("api listening")
	return s.app.Listen(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = statusFor(err)
		}
	}

	ev := s.log.Debug()
	if status >= fiber.StatusInternalServerError {
		ev = s.log.Warn().Err(err)
	}
	ev.Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("took", time.Since(start)).
		Msg("request")
	return err
}

// handleError renders every handler error as ErrorResponse.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{Error: fe.Message})
	}
	return c.Status(statusFor(err)).JSON(ErrorResponse{
		Error: messageFor(err),
		Kind:  kindFor(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errConfirmationRequired):
		return fiber.StatusPreconditionRequired
	case errors.Is(err, session.ErrInvalidSettings):
		return fiber.StatusBadRequest
	case errors.Is(err, session.ErrNoAccount),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrStale):
		return fiber.StatusConflict
	case mailtm.IsValidation(err):
		return fiber.StatusUnprocessableEntity
	case mailtm.IsAccountGone(err):
		return fiber.StatusGone
	case mailtm.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, mailtm.ErrRateLimited):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusBadGateway
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, errConfirmationRequired),
		errors.Is(err, session.ErrInvalidSettings),
		errors.Is(err, session.ErrNoAccount),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrStale):
		return err.Error()
	case mailtm.IsNotFound(err):
		return "message not found"
	default:
		return mailtm.UserMessage(err)
	}
}

func kindFor(err error) string {
	switch {
	case mailtm.IsValidation(err), errors.Is(err, session.ErrInvalidSettings):
		return "validation"
	case mailtm.IsAccountGone(err):
		return "account_gone"
	case mailtm.IsNotFound(err):
		return "not_found"
	case errors.Is(err, mailtm.ErrRateLimited):
		return "rate_limited"
	case mailtm.IsRetryable(err):
		return "transient"
	default:
		return ""
	}
}
