package routes

import (
	"github.com/gocarina/gocsv"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func RoutesRouter(router fiber.Router, lister RouteLister) {
	router.Get("/", func(c *fiber.Ctx) error {
		routes, err := lister.Routes(c.UserContext())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list routes")
			return sendError(c, fiber.StatusBadGateway, "Could not load the route list")
		}

		if c.Query("format") == "csv" {
			body, err := gocsv.MarshalBytes(&routes)
			if err != nil {
				return sendError(c, fiber.StatusInternalServerError, "Could not encode CSV")
			}

			c.Set(fiber.HeaderContentType, "text/csv")
			return c.Send(body)
		}

		routesReduced, err := reduce(c, routes)
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce Routes")
		}

		return c.JSON(routesReduced)
	})
}
