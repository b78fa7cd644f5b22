package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/travigo/livemap/pkg/gtfsrt"
	"github.com/travigo/livemap/pkg/nextbus"
	"github.com/travigo/livemap/pkg/tracker"
	"github.com/travigo/livemap/pkg/util"
	"gopkg.in/yaml.v3"
)

const (
	SourceNextBus      = "nextbus"
	SourceGTFSRealtime = "gtfs-rt"

	DefaultFrameRate = 60
)

var ErrMissingGTFSRealtimeURL = errors.New("gtfs-rt source needs gtfsRealtime.url")

// Routes followed for the default agency when nothing else is selected
var defaultRoutes = map[string][]string{
	nextbus.DefaultAgency: {"29", "501", "504", "510"},
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

type StreamConfig struct {
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	TopicPrefix string        `yaml:"topicPrefix"`
	MinInterval time.Duration `yaml:"minInterval" validate:"gte=0"`
	QoS         byte          `yaml:"qos" validate:"lte=2"`
}

type RedisConfig struct {
	KeyPrefix            string        `yaml:"keyPrefix"`
	RouteCacheExpiration time.Duration `yaml:"routeCacheExpiration" validate:"gte=0"`
}

type Config struct {
	Source       string         `yaml:"source" validate:"oneof=nextbus gtfs-rt"`
	NextBus      nextbus.Config `yaml:"nextbus"`
	GTFSRealtime gtfsrt.Config  `yaml:"gtfsRealtime"`

	// Initial selection, vehicles on their own are tracked by id
	Routes   []string `yaml:"routes"`
	Vehicles []string `yaml:"vehicles"`

	FrameRate int            `yaml:"frameRate" validate:"gte=1,lte=240"`
	Tracker   tracker.Config `yaml:"tracker"`

	API    APIConfig    `yaml:"api"`
	Stream StreamConfig `yaml:"stream"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Redis  RedisConfig  `yaml:"redis"`
}

func Default() Config {
	return Config{
		Source:    SourceNextBus,
		NextBus:   nextbus.DefaultConfig(),
		FrameRate: DefaultFrameRate,
		Tracker:   tracker.DefaultConfig(),
		API: APIConfig{
			Listen: ":8080",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "livemap",
			MinInterval: time.Second,
		},
		Redis: RedisConfig{
			KeyPrefix:            "livemap",
			RouteCacheExpiration: 24 * time.Hour,
		},
	}
}

// Load builds the config from defaults, then the YAML file at path if one is given, then
// TRAVIGO_LIVEMAP_* environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvironment(util.GetEnvironmentVariables()); err != nil {
		return nil, err
	}

	cfg.applyDefaultSelection()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnvironment(env map[string]string) error {
	if val := env["TRAVIGO_LIVEMAP_SOURCE"]; val != "" {
		c.Source = val
	}
	if val := env["TRAVIGO_LIVEMAP_AGENCY"]; val != "" {
		c.NextBus.Agency = val
	}
	if val := env["TRAVIGO_LIVEMAP_BASE_URL"]; val != "" {
		c.NextBus.BaseURL = val
	}
	if val := env["TRAVIGO_LIVEMAP_GTFSRT_URL"]; val != "" {
		c.GTFSRealtime.URL = val
	}

	c.Routes = util.EnvList(env, "TRAVIGO_LIVEMAP_ROUTES", c.Routes)
	c.Vehicles = util.EnvList(env, "TRAVIGO_LIVEMAP_VEHICLES", c.Vehicles)

	c.FrameRate = util.EnvInt(env, "TRAVIGO_LIVEMAP_FRAME_RATE", c.FrameRate)

	c.Tracker.PollInterval = util.EnvDuration(env, "TRAVIGO_LIVEMAP_POLL_INTERVAL", c.Tracker.PollInterval)
	c.Tracker.MinDuration = util.EnvDuration(env, "TRAVIGO_LIVEMAP_MIN_DURATION", c.Tracker.MinDuration)
	c.Tracker.MaxDuration = util.EnvDuration(env, "TRAVIGO_LIVEMAP_MAX_DURATION", c.Tracker.MaxDuration)
	c.Tracker.StaleAfter = util.EnvDuration(env, "TRAVIGO_LIVEMAP_STALE_AFTER", c.Tracker.StaleAfter)
	c.Tracker.Incremental = util.EnvBool(env, "TRAVIGO_LIVEMAP_INCREMENTAL", c.Tracker.Incremental)
	if val, ok := env["TRAVIGO_LIVEMAP_FILTER"]; ok {
		c.Tracker.FilterExpression = val
	}

	c.Tracker.Animation.LagDepth = util.EnvInt(env, "TRAVIGO_LIVEMAP_LAG_DEPTH", c.Tracker.Animation.LagDepth)
	c.Tracker.Animation.MaxPending = util.EnvInt(env, "TRAVIGO_LIVEMAP_MAX_PENDING", c.Tracker.Animation.MaxPending)

	if val, ok := env["TRAVIGO_LIVEMAP_API_LISTEN"]; ok {
		c.API.Listen = val
	}
	if val, ok := env["TRAVIGO_LIVEMAP_STREAM_LISTEN"]; ok {
		c.Stream.Listen = val
	}

	if val := env["TRAVIGO_LIVEMAP_MQTT_TOPIC_PREFIX"]; val != "" {
		c.MQTT.TopicPrefix = val
	}
	c.MQTT.MinInterval = util.EnvDuration(env, "TRAVIGO_LIVEMAP_MQTT_MIN_INTERVAL", c.MQTT.MinInterval)
	if val := env["TRAVIGO_LIVEMAP_MQTT_QOS"]; val != "" {
		qos, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return fmt.Errorf("TRAVIGO_LIVEMAP_MQTT_QOS: %w", err)
		}
		c.MQTT.QoS = byte(qos)
	}

	if val := env["TRAVIGO_LIVEMAP_REDIS_KEY_PREFIX"]; val != "" {
		c.Redis.KeyPrefix = val
	}

	return nil
}

// applyDefaultSelection follows the agency's default routes when nothing is selected
func (c *Config) applyDefaultSelection() {
	if c.Source != SourceNextBus || len(c.Routes) > 0 || len(c.Vehicles) > 0 {
		return
	}

	c.Routes = append([]string(nil), defaultRoutes[c.NextBus.Agency]...)
}

func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Source == SourceGTFSRealtime && c.GTFSRealtime.URL == "" {
		return ErrMissingGTFSRealtimeURL
	}

	return nil
}
