package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/authgate/internal/auth"
	"github.com/Checker-Finance/authgate/internal/pipeline"
	"github.com/Checker-Finance/authgate/internal/transport"
)

type Handler struct {
	Logger *zap.Logger
	Auth   *auth.Service
	Client *pipeline.Client
}

// LoginRequest is the payload for POST /api/v1/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse reports whether credentials are currently held.
type SessionResponse struct {
	Active bool `json:"active"`
}

func NewHandler(logger *zap.Logger, authSvc *auth.Service, client *pipeline.Client) *Handler {
	return &Handler{Logger: logger, Auth: authSvc, Client: client}
}

// Login authenticates against the upstream and stores the token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing username or password"})
	}

	if err := h.Auth.Login(c.Context(), req.Username, req.Password); err != nil {
		h.Logger.Warn("api.login_failed", zap.String("user", req.Username), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login failed"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Logout clears stored credentials.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.Auth.Logout(c.Context()); err != nil {
		h.Logger.Error("api.logout_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Session reports whether an access token is currently stored.
func (h *Handler) Session(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(SessionResponse{Active: h.Auth.Active(c.Context())})
}

// Forward proxies the request to the upstream through the authenticated
// pipeline. The upstream body is treated as opaque bytes in both directions.
func (h *Handler) Forward(c *fiber.Ctx) error {
	path := "/" + c.Params("*")
	if qs := string(c.Request().URI().QueryString()); qs != "" {
		path += "?" + qs
	}

	req := pipeline.NewRequest(c.Method(), path)
	if ct := c.Get(fiber.HeaderContentType); ct != "" {
		req = req.WithHeader(fiber.HeaderContentType, ct)
	}
	if accept := c.Get(fiber.HeaderAccept); accept != "" {
		req = req.WithHeader(fiber.HeaderAccept, accept)
	}
	if body := c.Body(); len(body) > 0 {
		req = req.WithBody(body)
	}

	resp, err := h.Client.Do(c.Context(), req)
	if err != nil {
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) {
			// Upstream failure statuses pass through unchanged.
			return c.Status(httpErr.Status).Send(httpErr.Body)
		}
		h.Logger.Error("api.forward_failed",
			zap.String("method", c.Method()),
			zap.String("path", path),
			zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	}
	return c.Status(resp.Status).Send(resp.Body)
}

// Health reports service liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}
