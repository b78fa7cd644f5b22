package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "livemap.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceNextBus, cfg.Source)
	assert.Equal(t, "ttc", cfg.NextBus.Agency)
	assert.Equal(t, []string{"29", "501", "504", "510"}, cfg.Routes)
	assert.Equal(t, 5*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 60, cfg.FrameRate)
	assert.Equal(t, ":8080", cfg.API.Listen)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
source: nextbus
nextbus:
  agency: sf-muni
  concurrency: 4
vehicles: ["1401", "1402"]
tracker:
  pollInterval: 10s
  filter: predictable
  animation:
    lagDepth: 0
    maxPending: 5
stream:
  listen: ":8081"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sf-muni", cfg.NextBus.Agency)
	assert.Equal(t, 4, cfg.NextBus.Concurrency)
	assert.Equal(t, "https://retro.umoiq.com/service/publicXMLFeed", cfg.NextBus.BaseURL)
	assert.Empty(t, cfg.Routes)
	assert.Equal(t, []string{"1401", "1402"}, cfg.Vehicles)
	assert.Equal(t, 10*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 3*time.Minute, cfg.Tracker.StaleAfter)
	assert.Equal(t, "predictable", cfg.Tracker.FilterExpression)
	assert.Equal(t, 0, cfg.Tracker.Animation.LagDepth)
	assert.Equal(t, 5, cfg.Tracker.Animation.MaxPending)
	assert.Equal(t, ":8081", cfg.Stream.Listen)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("TRAVIGO_LIVEMAP_ROUTES", "504, 501,504")
	t.Setenv("TRAVIGO_LIVEMAP_POLL_INTERVAL", "2s")
	t.Setenv("TRAVIGO_LIVEMAP_LAG_DEPTH", "2")
	t.Setenv("TRAVIGO_LIVEMAP_INCREMENTAL", "YES")
	t.Setenv("TRAVIGO_LIVEMAP_MQTT_QOS", "1")

	cfg, err := Load(writeConfig(t, "tracker:\n  pollInterval: 10s\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"504", "501"}, cfg.Routes)
	assert.Equal(t, 2*time.Second, cfg.Tracker.PollInterval)
	assert.Equal(t, 2, cfg.Tracker.Animation.LagDepth)
	assert.True(t, cfg.Tracker.Incremental)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoadInvalid(t *testing.T) {
	t.Run("unknown source", func(t *testing.T) {
		_, err := Load(writeConfig(t, "source: kafka\n"))

		var validationErrors validator.ValidationErrors
		require.ErrorAs(t, err, &validationErrors)
		assert.Equal(t, "Source", validationErrors[0].Field())
	})

	t.Run("gtfs-rt without url", func(t *testing.T) {
		_, err := Load(writeConfig(t, "source: gtfs-rt\n"))
		assert.ErrorIs(t, err, ErrMissingGTFSRealtimeURL)
	})

	t.Run("zero poll interval", func(t *testing.T) {
		_, err := Load(writeConfig(t, "tracker:\n  pollInterval: 0s\n"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "routes: [\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bad qos", func(t *testing.T) {
		t.Setenv("TRAVIGO_LIVEMAP_MQTT_QOS", "high")
		_, err := Load("")
		assert.Error(t, err)
	})
}
