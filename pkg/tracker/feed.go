package tracker

import (
	"context"

	"github.com/travigo/livemap/pkg/ctdf"
)

// Feed is a source of vehicle positions
type Feed interface {
	FetchByIDs(ctx context.Context, ids []string) (*ctdf.VehicleBatch, error)
	FetchByRoutes(ctx context.Context, routes []string) (*ctdf.VehicleBatch, error)
	FetchIncremental(ctx context.Context, token string) (*ctdf.VehicleBatch, error)
}

type fetchRequest struct {
	mode        Mode
	incremental bool
	routes      []string
	vehicles    []string
	token       string
}

func (r fetchRequest) empty() bool {
	if r.mode == ModeRoutes {
		return len(r.routes) == 0
	}

	return len(r.vehicles) == 0
}

func (r fetchRequest) fetch(ctx context.Context, feed Feed) (*ctdf.VehicleBatch, error) {
	switch {
	case r.incremental:
		return feed.FetchIncremental(ctx, r.token)
	case r.mode == ModeRoutes:
		return feed.FetchByRoutes(ctx, r.routes)
	default:
		return feed.FetchByIDs(ctx, r.vehicles)
	}
}
