package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"quotepdf/internal/config"
	"quotepdf/internal/domain"
	"quotepdf/internal/http/handlers"
	"quotepdf/internal/http/middleware"
	"quotepdf/internal/infra/cache"
	"quotepdf/internal/infra/logging"
	"quotepdf/internal/tokens"
)

// Deps are the collaborators the HTTP layer is built from. Cache, Tokens and
// LimiterStore are optional.
type Deps struct {
	Config       config.Config
	Engine       domain.Engine
	Cache        *cache.PDFCache
	Tokens       *tokens.Cache
	LimiterStore fiber.Storage
}

// New builds the Fiber application with all middleware and routes.
func New(d Deps) *fiber.App {
	cfg := d.Config
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimitBytes,
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})

	middleware.Register(app, cfg)

	if d.Tokens != nil {
		app.Use(middleware.APIKeyAuth(d.Tokens))
	}

	if d.LimiterStore != nil {
		rl := middleware.RateLimitConfig{
			RateInterval:           cfg.RateLimiter.Interval,
			EnableUserLimiter:      cfg.RateLimiter.EnableUserLimiter,
			UserLimit:              cfg.RateLimiter.UserLimit,
			EnableTokenRateLimiter: cfg.RateLimiter.EnableTokenRateLimiter,
		}
		if d.Tokens != nil {
			app.Use(middleware.TokenRateLimit(rl, d.Tokens, d.LimiterStore, middleware.NewLimiterCache()))
		}
		app.Use(middleware.UserRateLimit(rl, d.LimiterStore))
	}

	pdf := handlers.NewPDFService(d.Engine, d.Cache, cfg.PrintOptions())

	app.Get("/health", handlers.HandleHealth)
	app.Post("/api/generate-pdf", pdf.HandleGeneratePDF)
	app.Get("/api/estimate-number", handlers.HandleEstimateNumber)

	app.Use(func(c *fiber.Ctx) error {
		return domain.ErrRouteNotFound
	})

	return app
}

// ErrorHandler turns handler errors into the JSON error bodies clients see.
// Unexpected errors are logged and reported generically.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		renderErr *domain.RenderError
		fiberErr  *fiber.Error
	)
	switch {
	case errors.Is(err, domain.ErrHTMLRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &renderErr):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to generate PDF",
			"message": renderErr.Error(),
		})
	case errors.Is(err, domain.ErrRouteNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.As(err, &fiberErr):
		if fiberErr.Code == fiber.StatusNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
		}
		// Oversized bodies are a body parsing failure, reported like malformed JSON.
		if fiberErr.Code < fiber.StatusInternalServerError && fiberErr.Code != fiber.StatusRequestEntityTooLarge {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
	}

	logging.Error("Unhandled error",
		"error", err,
		"method", c.Method(),
		"path", c.Path(),
		"request_id", middleware.RequestID(c),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong!"})
}
