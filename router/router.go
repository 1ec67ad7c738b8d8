package router

import (
	"github.com/bmlam89/ebay-deletion-handler/app"
	"github.com/bmlam89/ebay-deletion-handler/internal/handler"
	"github.com/bmlam89/ebay-deletion-handler/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the fiber app. Listening and shutdown stay with the caller.
func New(cfg app.WebhookConfig, deletion *handler.Deletion) *fiber.App {
	fiberApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	fiberApp.Use(cors.New())
	fiberApp.Use(recover.New())

	fiberApp.Get("/health", handler.Health)
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	ebay := fiberApp.Group("/ebay", logger.New())
	ebay.Get("/account-deletion", deletion.Challenge)
	ebay.Post("/account-deletion", middleware.TokenAuth(cfg.VerificationToken), deletion.Notify)

	return fiberApp
}
