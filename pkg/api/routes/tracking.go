package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const refreshWaitTimeout = 30 * time.Second

type routesBody struct {
	Routes []string `json:"routes"`
}

type vehiclesBody struct {
	Vehicles []string `json:"vehicles"`
}

func TrackingRouter(router fiber.Router, tracker Tracker) {
	router.Get("/", func(c *fiber.Ctx) error {
		return getTracking(c, tracker)
	})

	router.Put("/routes", func(c *fiber.Ctx) error {
		var body routesBody
		if err := c.BodyParser(&body); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Body must be a JSON object with a routes list")
		}

		changed := tracker.SetRouteFilter(body.Routes)

		return c.JSON(fiber.Map{
			"changed": changed,
			"routes":  emptyIfNil(tracker.Routes()),
		})
	})

	router.Put("/vehicles", func(c *fiber.Ctx) error {
		var body vehiclesBody
		if err := c.BodyParser(&body); err != nil {
			return sendError(c, fiber.StatusBadRequest, "Body must be a JSON object with a vehicles list")
		}

		added, removed := tracker.Replace(body.Vehicles)

		return c.JSON(fiber.Map{
			"added":   emptyIfNil(added),
			"removed": emptyIfNil(removed),
		})
	})

	router.Post("/vehicles/:identifier", func(c *fiber.Ctx) error {
		if !tracker.Add(utils.CopyString(c.Params("identifier"))) {
			return c.JSON(fiber.Map{"added": false})
		}

		c.Status(fiber.StatusCreated)
		return c.JSON(fiber.Map{"added": true})
	})

	router.Delete("/vehicles/:identifier", func(c *fiber.Ctx) error {
		if !tracker.Remove(utils.CopyString(c.Params("identifier"))) {
			return sendError(c, fiber.StatusNotFound, "Vehicle is not tracked")
		}

		return c.JSON(fiber.Map{"removed": true})
	})

	router.Post("/refresh", func(c *fiber.Ctx) error {
		completion := tracker.Refresh(c.QueryBool("clear", false))

		if !c.QueryBool("wait", false) {
			c.Status(fiber.StatusAccepted)
			return c.JSON(fiber.Map{"refreshing": true})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), refreshWaitTimeout)
		defer cancel()

		if err := completion.Wait(ctx); err != nil {
			return sendError(c, fiber.StatusBadGateway, err.Error())
		}

		return getTracking(c, tracker)
	})
}

func getTracking(c *fiber.Ctx, tracker Tracker) error {
	return c.JSON(fiber.Map{
		"mode":     tracker.Mode(),
		"routes":   emptyIfNil(tracker.Routes()),
		"vehicles": emptyIfNil(tracker.Tracked()),
	})
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
