package handlers

import (
	"math/rand/v2"

	"github.com/gofiber/fiber/v2"
)

const (
	estimateMin = 1000
	estimateMax = 9999
)

// HandleEstimateNumber returns a random four digit estimate number.
func HandleEstimateNumber(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"estimateNumber": rand.IntN(estimateMax-estimateMin+1) + estimateMin,
	})
}
