package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Post("/login", h.Login)
	v1.Post("/logout", h.Logout)
	v1.Get("/session", h.Session)
	v1.All("/upstream/*", h.Forward)
}
