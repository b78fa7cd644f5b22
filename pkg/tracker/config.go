package tracker

import (
	"time"

	"github.com/travigo/livemap/pkg/animator"
)

type Config struct {
	PollInterval time.Duration `yaml:"pollInterval" validate:"gt=0"`

	// Animation duration bounds. Zero means the poll interval and three poll intervals.
	MinDuration time.Duration `yaml:"minDuration" validate:"gte=0"`
	MaxDuration time.Duration `yaml:"maxDuration" validate:"gte=0"`

	// Incremental polls the whole agency with a continuation token instead of per route or vehicle
	Incremental bool          `yaml:"incremental"`
	StaleAfter  time.Duration `yaml:"staleAfter" validate:"gte=0"`

	// Expression evaluated against every vehicle, eg. `predictable && speed < 120`
	FilterExpression string `yaml:"filter"`

	Animation animator.Config `yaml:"animation"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		StaleAfter:   3 * time.Minute,
		Animation:    animator.DefaultConfig(),
	}
}

func (c Config) durationBounds() (time.Duration, time.Duration) {
	minDuration := c.MinDuration
	if minDuration <= 0 {
		minDuration = c.PollInterval
	}

	maxDuration := c.MaxDuration
	if maxDuration <= 0 {
		maxDuration = 3 * c.PollInterval
	}
	if maxDuration < minDuration {
		maxDuration = minDuration
	}

	return minDuration, maxDuration
}
