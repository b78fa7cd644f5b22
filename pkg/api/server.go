package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/livemap/pkg/api/routes"
)

type Dependencies struct {
	Tracker routes.Tracker
	Routes  routes.RouteLister
	Index   routes.BoundsIndex
}

// NewApp builds the web API, every route lives under /core
func NewApp(dependencies Dependencies) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Tracked ids outlive the request
		Immutable: true,
	})
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	routes.VehiclesRouter(group.Group("/vehicles"), dependencies.Tracker, dependencies.Index)
	routes.TrackingRouter(group.Group("/tracking"), dependencies.Tracker)

	if dependencies.Routes != nil {
		routes.RoutesRouter(group.Group("/routes"), dependencies.Routes)
	}

	return webApp
}
