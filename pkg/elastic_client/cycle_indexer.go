package elastic_client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/tracker"
)

type refreshCycleEvent struct {
	Timestamp  time.Time `json:"Timestamp"`
	Source     string    `json:"Source"`
	Mode       string    `json:"Mode"`
	Cleared    bool      `json:"Cleared"`
	DurationMS int64     `json:"DurationMS"`

	Vehicles   int      `json:"Vehicles"`
	Updated    int      `json:"Updated"`
	Removed    int      `json:"Removed"`
	Missing    int      `json:"Missing"`
	FailedKeys []string `json:"FailedKeys"`

	Success bool   `json:"Success"`
	Error   string `json:"Error,omitempty"`
}

// RefreshCycleIndexer records every refresh cycle in a monthly livemap-refresh-cycles index
type RefreshCycleIndexer struct {
	Source string
}

func (r RefreshCycleIndexer) OnRefreshCycle(cycle tracker.Cycle) {
	if Client == nil {
		return
	}

	event := refreshCycleEvent{
		Timestamp:  cycle.StartedAt,
		Source:     r.Source,
		Mode:       string(cycle.Mode),
		Cleared:    cycle.Cleared,
		DurationMS: cycle.FinishedAt.Sub(cycle.StartedAt).Milliseconds(),
		Vehicles:   cycle.Vehicles,
		Updated:    cycle.Updated,
		Removed:    cycle.Removed,
		Missing:    cycle.Missing,
		FailedKeys: cycle.FailedKeys,
		Success:    cycle.Err == nil,
	}
	if cycle.Err != nil {
		event.Error = cycle.Err.Error()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode refresh cycle event")
		return
	}

	IndexRequest(cycleIndexName(cycle.StartedAt), bytes.NewReader(eventJSON))
}

func cycleIndexName(t time.Time) string {
	return fmt.Sprintf("livemap-refresh-cycles-%d-%02d", t.Year(), t.Month())
}
