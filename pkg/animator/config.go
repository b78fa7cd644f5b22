package animator

import "time"

type Config struct {
	// Frames held back before playback starts, smoothing out bursty feeds
	LagDepth int `yaml:"lagDepth" validate:"gte=0"`

	// Frames allowed to queue beyond the lag before the oldest are dropped
	MaxPending int `yaml:"maxPending" validate:"gte=1"`

	// Shortest animation ever played, applied when a frame starts
	MinFrameDuration time.Duration `yaml:"minFrameDuration" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		LagDepth:         1,
		MaxPending:       3,
		MinFrameDuration: 300 * time.Millisecond,
	}
}

func (c Config) queueLimit() int {
	limit := c.LagDepth + c.MaxPending
	if limit < 1 {
		limit = 1
	}

	return limit
}
