package tracker

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/ctdf"
)

type filterEnv struct {
	ID              string  `expr:"id"`
	Route           string  `expr:"route"`
	Heading         float64 `expr:"heading"`
	Speed           float64 `expr:"speed"`
	Predictable     bool    `expr:"predictable"`
	SecsSinceReport int     `expr:"secs_since_report"`
	Latitude        float64 `expr:"lat"`
	Longitude       float64 `expr:"lon"`
}

type vehicleFilter struct {
	expression string
	program    *vm.Program
}

func compileFilter(expression string) (*vehicleFilter, error) {
	if expression == "" {
		return nil, nil
	}

	program, err := expr.Compile(expression, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid vehicle filter %q: %w", expression, err)
	}

	return &vehicleFilter{expression: expression, program: program}, nil
}

// Match is true for every vehicle when no filter is configured
func (f *vehicleFilter) Match(vehicle *ctdf.VehicleState) bool {
	if f == nil {
		return true
	}

	output, err := expr.Run(f.program, filterEnv{
		ID:              vehicle.ID,
		Route:           vehicle.RouteTag,
		Heading:         vehicle.Heading,
		Speed:           vehicle.Speed,
		Predictable:     vehicle.Predictable,
		SecsSinceReport: vehicle.SecsSinceReport,
		Latitude:        vehicle.Location.Latitude(),
		Longitude:       vehicle.Location.Longitude(),
	})
	if err != nil {
		log.Warn().Err(err).Str("filter", f.expression).Str("vehicle", vehicle.ID).Msg("Vehicle filter failed")
		return false
	}

	matched, _ := output.(bool)
	return matched
}
