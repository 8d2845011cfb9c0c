package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// isoMillis matches the millisecond UTC timestamps browsers produce.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// HandleHealth reports liveness with the current server time.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(isoMillis),
	})
}
