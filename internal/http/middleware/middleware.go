package middleware

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"quotepdf/internal/config"
	"quotepdf/internal/infra/logging"
)

// Register attaches the global middleware every request passes through:
// panic recovery, request IDs, security headers, compression, CORS and a
// request log line.
func Register(app *fiber.App, cfg config.Config) {
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logging.Error("Handler panicked",
				"path", c.Path(),
				"panic", e,
				"stack", string(debug.Stack()),
				"request_id", RequestID(c),
			)
		},
	}))

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(helmet.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(cors.New())

	app.Use(func(c *fiber.Ctx) error {
		logging.Info("Incoming request",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", RequestID(c),
			"env", cfg.Server.Environment,
		)
		return c.Next()
	})
}

// RequestID returns the caller supplied or generated request ID.
func RequestID(c *fiber.Ctx) string {
	if id := c.Get(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
