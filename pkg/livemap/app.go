package livemap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/api"
	"github.com/travigo/livemap/pkg/api/routes"
	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/config"
	"github.com/travigo/livemap/pkg/elastic_client"
	"github.com/travigo/livemap/pkg/gtfsrt"
	"github.com/travigo/livemap/pkg/mqtt_client"
	"github.com/travigo/livemap/pkg/nextbus"
	"github.com/travigo/livemap/pkg/redis_client"
	"github.com/travigo/livemap/pkg/render"
	"github.com/travigo/livemap/pkg/spatial"
	"github.com/travigo/livemap/pkg/stream"
	"github.com/travigo/livemap/pkg/tracker"
)

const shutdownTimeout = 10 * time.Second

// App wires a feed, the tracker and every output together
type App struct {
	Config *config.Config

	Clock   *clock.EventLoop
	Manager *tracker.Manager
	Hub     *stream.Hub
	Index   *spatial.Index

	feed            tracker.Feed
	routeLister     routes.RouteLister
	statusPublisher *redis_client.StatusPublisher
}

// NewFeed builds the configured vehicle source. The route lister is nil for sources without
// a route list.
func NewFeed(cfg *config.Config) (tracker.Feed, routes.RouteLister, error) {
	switch cfg.Source {
	case config.SourceNextBus:
		client := nextbus.NewClient(cfg.NextBus)
		if redis_client.Client != nil {
			client.SetRouteCache(nextbus.NewRouteCache(redis_client.Client, cfg.Redis.RouteCacheExpiration))
		}

		return client, client, nil
	case config.SourceGTFSRealtime:
		return gtfsrt.NewClient(cfg.GTFSRealtime), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown vehicle source %q", cfg.Source)
	}
}

func sourceName(cfg *config.Config) string {
	if cfg.Source == config.SourceNextBus {
		return fmt.Sprintf("%s/%s", nextbus.DataSource, cfg.NextBus.Agency)
	}

	return gtfsrt.DataSource
}

// New connects the optional backends named in the environment and builds the app
func New(cfg *config.Config) (*App, error) {
	if redis_client.Configured() {
		if err := redis_client.Connect(); err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
	}
	if err := elastic_client.Connect(false); err != nil {
		return nil, fmt.Errorf("connecting to Elasticsearch: %w", err)
	}
	if mqtt_client.Configured() {
		if err := mqtt_client.Connect(); err != nil {
			return nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
	}

	feed, routeLister, err := NewFeed(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:      cfg,
		Clock:       clock.NewEventLoop(cfg.FrameRate),
		Hub:         stream.NewHub(),
		Index:       spatial.NewIndex(),
		feed:        feed,
		routeLister: routeLister,
	}

	renderSinks := render.MultiRenderSink{render.LogSink{}, app.Hub}
	statusSinks := render.MultiStatusSink{render.LogSink{}, app.Hub, app.Index}

	if mqtt_client.Client != nil {
		renderSinks = append(renderSinks, mqtt_client.NewPosePublisher(mqtt_client.Client, app.Clock, mqtt_client.PosePublisherConfig{
			TopicPrefix: cfg.MQTT.TopicPrefix,
			MinInterval: cfg.MQTT.MinInterval,
			QoS:         cfg.MQTT.QoS,
		}))
	}
	if redis_client.Client != nil {
		app.statusPublisher = redis_client.NewStatusPublisher(redis_client.Client, cfg.Redis.KeyPrefix)
		statusSinks = append(statusSinks, app.statusPublisher)
	}

	coordinator, err := tracker.NewCoordinator(tracker.Options{
		Clock:    app.Clock,
		Feed:     feed,
		Render:   renderSinks,
		Status:   statusSinks,
		Observer: elastic_client.RefreshCycleIndexer{Source: sourceName(cfg)},
		Config:   cfg.Tracker,
	})
	if err != nil {
		return nil, err
	}

	app.Manager = tracker.NewManager(app.Clock, coordinator)

	return app, nil
}

// Run serves until ctx is cancelled or a listener fails
func (a *App) Run(ctx context.Context) error {
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go a.Clock.Run(loopCtx)

	var outputs sync.WaitGroup
	outputCtx, cancelOutputs := context.WithCancel(context.Background())
	defer cancelOutputs()

	outputs.Add(1)
	go func() {
		defer outputs.Done()
		a.Hub.Run(outputCtx)
	}()
	if a.statusPublisher != nil {
		outputs.Add(1)
		go func() {
			defer outputs.Done()
			a.statusPublisher.Run(outputCtx)
		}()
	}

	a.Manager.Start()
	a.selectInitial()

	errs := make(chan error, 2)

	var webApp *fiber.App
	if a.Config.API.Listen != "" {
		webApp = api.NewApp(api.Dependencies{
			Tracker: a.Manager,
			Routes:  a.routeLister,
			Index:   a.Index,
		})

		go func() {
			log.Info().Str("listen", a.Config.API.Listen).Msg("Starting web API")
			if err := webApp.Listen(a.Config.API.Listen); err != nil {
				errs <- fmt.Errorf("web API: %w", err)
			}
		}()
	}

	var streamServer *http.Server
	if a.Config.Stream.Listen != "" {
		streamServer = &http.Server{
			Addr:              a.Config.Stream.Listen,
			Handler:           stream.NewRouter(a.Hub),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Str("listen", a.Config.Stream.Listen).Msg("Starting pose stream")
			if err := streamServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("pose stream: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if webApp != nil {
		if err := webApp.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop web API")
		}
	}
	if streamServer != nil {
		if err := streamServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop pose stream")
		}
	}

	a.Manager.Stop()
	cancelLoop()
	cancelOutputs()
	outputs.Wait()

	if a.statusPublisher != nil {
		if err := a.statusPublisher.Clear(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to clear vehicles from Redis")
		}
	}
	elastic_client.WaitUntilQueueEmpty()
	mqtt_client.Disconnect()

	return runErr
}

func (a *App) selectInitial() {
	switch {
	case len(a.Config.Routes) > 0:
		a.Manager.SetRouteFilter(a.Config.Routes)
		if len(a.Config.Vehicles) > 0 {
			a.Manager.Replace(a.Config.Vehicles)
		}
	case len(a.Config.Vehicles) > 0:
		a.Manager.Replace(a.Config.Vehicles)
	default:
		log.Warn().Msg("No routes or vehicles selected, waiting for the API")
	}
}
