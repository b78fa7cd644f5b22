package livemap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/config"
	"github.com/travigo/livemap/pkg/ctdf"
	"github.com/travigo/livemap/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

const fetchTimeout = 30 * time.Second

var configFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "YAML configuration file",
	EnvVars: []string{"TRAVIGO_LIVEMAP_CONFIG"},
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "livemap",
		Usage: "Live vehicle map backend",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "follow the configured routes and vehicles and serve them",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					app, err := New(cfg)
					if err != nil {
						return err
					}

					ctx, cancel := context.WithCancel(c.Context)
					defer cancel()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					go func() {
						<-signals // wait for signal
						cancel()

						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					return app.Run(ctx)
				},
			},
			{
				Name:  "fetch",
				Usage: "fetch vehicles once and print them",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringSliceFlag{
						Name:  "routes",
						Usage: "route tags to fetch",
					},
					&cli.StringSliceFlag{
						Name:  "vehicles",
						Usage: "vehicle ids to fetch",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "continuation token for an incremental fetch",
					},
					&cli.BoolFlag{
						Name:  "incremental",
						Usage: "fetch every vehicle changed since --token",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					feed, _, err := NewFeed(cfg)
					if err != nil {
						return err
					}

					ctx, cancel := context.WithTimeout(c.Context, fetchTimeout)
					defer cancel()

					var batch *ctdf.VehicleBatch
					switch {
					case c.Bool("incremental"):
						batch, err = feed.FetchIncremental(ctx, c.String("token"))
					case len(c.StringSlice("vehicles")) > 0:
						batch, err = feed.FetchByIDs(ctx, c.StringSlice("vehicles"))
					case len(c.StringSlice("routes")) > 0:
						batch, err = feed.FetchByRoutes(ctx, c.StringSlice("routes"))
					default:
						batch, err = feed.FetchByRoutes(ctx, cfg.Routes)
					}
					if batch != nil {
						ctdf.SortVehicles(batch.Vehicles)
						pretty.Println(batch)
					}

					return err
				},
			},
			{
				Name:  "routes",
				Usage: "list the agency's routes",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					if redis_client.Configured() {
						if err := redis_client.Connect(); err != nil {
							log.Warn().Err(err).Msg("Route list cache unavailable")
						}
					}

					_, routeLister, err := NewFeed(cfg)
					if err != nil {
						return err
					}
					if routeLister == nil {
						return errors.New("the configured source has no route list")
					}

					ctx, cancel := context.WithTimeout(c.Context, fetchTimeout)
					defer cancel()

					routes, err := routeLister.Routes(ctx)
					if err != nil {
						return err
					}

					for _, route := range routes {
						fmt.Printf("%-8s %s\n", route.Tag, route.Title)
					}

					return nil
				},
			},
		},
	}
}
