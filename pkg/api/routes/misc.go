package routes

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/livemap/pkg/spatial"
)

const timeFormat = time.RFC3339

var errMissingQuery = errors.New("missing query parameter")

func parseFloatQuery(c *fiber.Ctx, name string) (float64, error) {
	value := c.Query(name)
	if value == "" {
		return 0, errMissingQuery
	}

	return strconv.ParseFloat(value, 64)
}

func getBoundsQuery(c *fiber.Ctx) (spatial.Bounds, bool, error) {
	bounds := c.Query("bounds")
	if bounds == "" {
		return spatial.Bounds{}, false, nil
	}

	parsed, err := spatial.ParseBounds(bounds)
	if err != nil {
		return spatial.Bounds{}, true, err
	}

	return parsed, true, nil
}

func sheriffGroups(c *fiber.Ctx) []string {
	if c.QueryBool("detailed", false) {
		return []string{"basic", "detailed"}
	}

	return []string{"basic"}
}

func reduce(c *fiber.Ctx, value interface{}) (interface{}, error) {
	return sheriff.Marshal(&sheriff.Options{
		Groups: sheriffGroups(c),
	}, value)
}

func sendError(c *fiber.Ctx, status int, message string) error {
	c.SendStatus(status)
	return c.JSON(fiber.Map{
		"error": message,
	})
}
