// Package route defines planned routes and the providers that produce them.
package route

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"navcore/internal/geo"
)

// Step is one waypoint of a planned path.
type Step struct {
	Point                  geo.Point `json:"point"`
	HeadingDeg             float64   `json:"heading_deg"`
	Instruction            string    `json:"instruction"`
	DistanceToDestinationM float64   `json:"distance_to_destination_m"`
}

// Route is an ordered sequence of steps. Treat it as immutable once built.
type Route []Step

// Provider plans a route between two points.
type Provider interface {
	Route(ctx context.Context, origin, destination geo.Point) (Route, error)
}

// TotalDistance sums the great-circle distances between consecutive steps.
func (r Route) TotalDistance() float64 {
	total := 0.0
	for i := 0; i+1 < len(r); i++ {
		total += geo.Distance(r[i].Point, r[i+1].Point)
	}
	return total
}

// Clone returns a copy that shares no backing array with r.
func (r Route) Clone() Route {
	if r == nil {
		return nil
	}
	out := make(Route, len(r))
	copy(out, r)
	return out
}

// Points returns the bare step positions.
func (r Route) Points() []geo.Point {
	out := make([]geo.Point, len(r))
	for i := range r {
		out[i] = r[i].Point
	}
	return out
}

var instructions = [...]string{
	"Continue straight",
	"Keep left",
	"Keep right",
	"Turn slightly left",
	"Turn slightly right",
	"Turn left",
	"Turn right",
}

const (
	InstructionStart  = "Start navigation"
	InstructionArrive = "You have arrived at your destination"
)

// Instruction returns the canned instruction text for step i of a route whose
// last index is last.
func Instruction(i, last int) string {
	switch {
	case i == 0:
		return InstructionStart
	case i == last:
		return InstructionArrive
	default:
		return instructions[i%len(instructions)]
	}
}

// FromPoints builds a route through points toward destination, assigning
// bearing, remaining distance and instruction text to each step.
func FromPoints(points []geo.Point, destination geo.Point) Route {
	out := make(Route, 0, len(points))
	last := len(points) - 1
	for i, p := range points {
		out = append(out, Step{
			Point:                  p,
			HeadingDeg:             geo.Bearing(p, destination),
			Instruction:            Instruction(i, last),
			DistanceToDestinationM: geo.Distance(p, destination),
		})
	}
	return out
}

// GeoJSON renders the route as a LineString feature followed by one Point
// feature per step.
func (r Route) GeoJSON() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if len(r) == 0 {
		return fc
	}

	line := make(orb.LineString, 0, len(r))
	for _, s := range r {
		line = append(line, orb.Point{s.Point.Lon, s.Point.Lat})
	}
	lf := geojson.NewFeature(line)
	lf.Properties["kind"] = "route"
	lf.Properties["total_distance_m"] = r.TotalDistance()
	lf.Properties["steps"] = len(r)
	fc.Append(lf)

	for i, s := range r {
		pf := geojson.NewFeature(orb.Point{s.Point.Lon, s.Point.Lat})
		pf.Properties["kind"] = "step"
		pf.Properties["index"] = i
		pf.Properties["instruction"] = s.Instruction
		pf.Properties["heading_deg"] = s.HeadingDeg
		pf.Properties["distance_to_destination_m"] = s.DistanceToDestinationM
		fc.Append(pf)
	}
	return fc
}
