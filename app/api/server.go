package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pollchat/app/config"
	"pollchat/app/service/render"
	"pollchat/app/service/session"

	_ "embed"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

//go:embed static/index.html
var indexHTML []byte

const shutdownTimeout = 5 * time.Second

var _ do.Shutdownable = (*Service)(nil)

type keyRequest struct {
	Key string `json:"key" validate:"required"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type messagesResponse struct {
	Entries []render.Entry `json:"entries"`
	Status  session.Status `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Service struct {
	cfg        *config.Config
	sessionSvc *session.Service
	validate   *validator.Validate
	app        *fiber.App
}

func New(di *do.Injector) (*Service, error) {
	return NewService(do.MustInvoke[*config.Config](di), do.MustInvoke[*session.Service](di)), nil
}

func NewService(cfg *config.Config, sessionSvc *session.Service) *Service {
	s := &Service{
		cfg:        cfg,
		sessionSvc: sessionSvc,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()

	return s
}

func (s *Service) routes() {
	s.app.Get("/", s.getIndex)
	s.app.Get("/healthz", s.getHealth)

	api := s.app.Group("/api")
	api.Get("/status", s.getStatus)
	api.Get("/messages", s.getMessages)
	api.Post("/messages", s.postMessage)
	api.Post("/key", s.postKey)
	api.Post("/start", s.postStart)
	api.Post("/stop", s.postStop)
	api.Post("/toggle", s.postToggle)
}

func (s *Service) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("Widget server listening", "listen", s.cfg.HTTP.Listen)
		errCh <- s.app.Listen(s.cfg.HTTP.Listen)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return s.app.ShutdownWithContext(ctx)
}

func (s *Service) getIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}

func (s *Service) getHealth(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (s *Service) getStatus(c *fiber.Ctx) error {
	return c.JSON(s.sessionSvc.Status())
}

func (s *Service) getMessages(c *fiber.Ctx) error {
	return c.JSON(s.messages())
}

func (s *Service) postMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}

	if err := s.sessionSvc.Submit(req.Text); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(s.messages())
}

func (s *Service) postKey(c *fiber.Ctx) error {
	var req keyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}

	if err := s.validate.Struct(req); err != nil {
		return session.ErrInvalidCredential
	}

	if err := s.sessionSvc.SetCredential(req.Key); err != nil {
		return err
	}

	return c.JSON(s.sessionSvc.Status())
}

func (s *Service) postStart(c *fiber.Ctx) error {
	if err := s.sessionSvc.Start(); err != nil {
		return err
	}

	return c.JSON(s.sessionSvc.Status())
}

func (s *Service) postStop(c *fiber.Ctx) error {
	s.sessionSvc.Stop()

	return c.JSON(s.sessionSvc.Status())
}

func (s *Service) postToggle(c *fiber.Ctx) error {
	if _, err := s.sessionSvc.Toggle(); err != nil {
		return err
	}

	return c.JSON(s.sessionSvc.Status())
}

func (s *Service) messages() messagesResponse {
	return messagesResponse{
		Entries: render.Render(s.sessionSvc.Snapshot(), s.sessionSvc.Detector()),
		Status:  s.sessionSvc.Status(),
	}
}

func (s *Service) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	case errors.Is(err, session.ErrInvalidCredential), errors.Is(err, session.ErrEmptyMessage):
		code = fiber.StatusBadRequest
	case errors.Is(err, session.ErrNoCredential):
		code = fiber.StatusConflict
	}

	if code == fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err)
	}

	return c.Status(code).JSON(errorResponse{Error: err.Error()})
}
