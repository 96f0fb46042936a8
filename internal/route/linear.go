package route

import (
	"context"

	"navcore/internal/geo"
)

// DefaultLinearSteps is the number of segments LinearProvider produces.
const DefaultLinearSteps = 10

// LinearProvider is a placeholder router: it walks a straight line in
// latitude/longitude from origin to destination. It does not know about roads.
type LinearProvider struct {
	// Steps is the number of segments; the route has Steps+1 points.
	Steps int
}

func (p LinearProvider) Route(ctx context.Context, origin, destination geo.Point) (Route, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	n := p.Steps
	if n <= 0 {
		n = DefaultLinearSteps
	}
	pts := make([]geo.Point, 0, n+1)
	for i := 0; i <= n; i++ {
		f := float64(i) / float64(n)
		pts = append(pts, geo.LatLon(
			lerp(origin.Lat, destination.Lat, f),
			lerp(origin.Lon, destination.Lon, f),
		))
	}
	return FromPoints(pts, geo.LatLon(destination.Lat, destination.Lon)), nil
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
