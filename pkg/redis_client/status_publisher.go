package redis_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/ctdf"
)

const DefaultKeyPrefix = "livemap"

type SnapshotSummary struct {
	GeneratedAt string   `json:"generated_at"`
	Vehicles    []string `json:"vehicles"`
	Updated     []string `json:"updated"`
	Missing     []string `json:"missing"`
}

// StatusPublisher mirrors every snapshot into Redis. Vehicles are kept in the
// <prefix>:vehicles hash and a summary is published on <prefix>:snapshots.
// Writes happen on Run's goroutine, only the latest unwritten snapshot is kept.
type StatusPublisher struct {
	client *redis.Client
	prefix string

	pending chan *ctdf.VehicleSnapshot
	written map[string]bool
}

func NewStatusPublisher(client *redis.Client, prefix string) *StatusPublisher {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &StatusPublisher{
		client:  client,
		prefix:  prefix,
		pending: make(chan *ctdf.VehicleSnapshot, 1),
		written: map[string]bool{},
	}
}

func (p *StatusPublisher) VehiclesKey() string {
	return fmt.Sprintf("%s:vehicles", p.prefix)
}

func (p *StatusPublisher) SnapshotChannel() string {
	return fmt.Sprintf("%s:snapshots", p.prefix)
}

func (p *StatusPublisher) OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot) {
	for {
		select {
		case p.pending <- snapshot:
			return
		default:
		}

		// Replace the snapshot nobody has written yet
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *StatusPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-p.pending:
			if err := p.Write(ctx, snapshot); err != nil {
				log.Error().Err(err).Msg("Failed to write vehicle snapshot to Redis")
			}
		}
	}
}

// Write stores snapshot, removing vehicles that are no longer in it
func (p *StatusPublisher) Write(ctx context.Context, snapshot *ctdf.VehicleSnapshot) error {
	ordered := snapshot.Ordered()

	summary := SnapshotSummary{
		GeneratedAt: snapshot.GeneratedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Vehicles:    make([]string, 0, len(ordered)),
		Updated:     nonNil(snapshot.Updated),
		Missing:     nonNil(snapshot.Missing),
	}

	values := make([]interface{}, 0, len(ordered)*2)
	current := make(map[string]bool, len(ordered))
	for _, vehicle := range ordered {
		vehicleJSON, err := json.Marshal(vehicle)
		if err != nil {
			return err
		}

		values = append(values, vehicle.ID, string(vehicleJSON))
		summary.Vehicles = append(summary.Vehicles, vehicle.ID)
		current[vehicle.ID] = true
	}

	var gone []string
	for id := range p.written {
		if !current[id] {
			gone = append(gone, id)
		}
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	pipe := p.client.TxPipeline()
	if len(gone) > 0 {
		pipe.HDel(ctx, p.VehiclesKey(), gone...)
	}
	if len(values) > 0 {
		pipe.HSet(ctx, p.VehiclesKey(), values...)
	}
	pipe.Publish(ctx, p.SnapshotChannel(), string(summaryJSON))

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	p.written = current

	log.Debug().
		Int("vehicles", len(values)/2).
		Int("removed", len(gone)).
		Msg("Vehicle snapshot written to Redis")

	return nil
}

// Clear drops every vehicle this publisher has written
func (p *StatusPublisher) Clear(ctx context.Context) error {
	if len(p.written) == 0 {
		return nil
	}

	ids := make([]string, 0, len(p.written))
	for id := range p.written {
		ids = append(ids, id)
	}

	if err := p.client.HDel(ctx, p.VehiclesKey(), ids...).Err(); err != nil {
		return err
	}

	p.written = map[string]bool{}

	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
