// Package fov tests whether points fall inside a heading-centered visibility
// cone around an observer.
package fov

import (
	"navcore/internal/geo"
)

const (
	// DefaultFieldOfViewDeg is the full opening angle of a cone built with
	// NewCone and no options.
	DefaultFieldOfViewDeg = 60.0
	// DefaultRadiusM is the default cone reach.
	DefaultRadiusM = 100.0

	// Boundary tolerances. A point projected exactly onto the rim does not
	// always measure back to the same float.
	radiusTolM  = 1e-6
	angleTolDeg = 1e-9
)

// Cone is an angular+radial region centered on HeadingDeg.
// It holds no state beyond its fields; build one per query.
type Cone struct {
	Center       geo.Point `json:"center"`
	HeadingDeg   float64   `json:"heading_deg"`
	HalfAngleDeg float64   `json:"half_angle_deg"`
	RadiusM      float64   `json:"radius_m"`
}

// Option overrides a cone default.
type Option func(*Cone)

// WithFieldOfView sets the full opening angle in degrees.
func WithFieldOfView(fullDeg float64) Option {
	return func(c *Cone) {
		c.HalfAngleDeg = fullDeg / 2
	}
}

// WithRadius sets the cone reach in meters.
func WithRadius(m float64) Option {
	return func(c *Cone) {
		c.RadiusM = m
	}
}

// NewCone returns a 60 degree, 100 m cone unless overridden by opts.
func NewCone(center geo.Point, headingDeg float64, opts ...Option) Cone {
	c := Cone{
		Center:       center,
		HeadingDeg:   geo.NormalizeHeading(headingDeg),
		HalfAngleDeg: DefaultFieldOfViewDeg / 2,
		RadiusM:      DefaultRadiusM,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// FieldOfViewDeg returns the full opening angle.
func (c Cone) FieldOfViewDeg() float64 {
	return c.HalfAngleDeg * 2
}

// Contains reports whether p is within RadiusM of the center and within
// HalfAngleDeg of the heading.
func (c Cone) Contains(p geo.Point) bool {
	return IsPointInCone(c, p)
}

// IsPointInCone is the free-function form of Cone.Contains.
func IsPointInCone(c Cone, p geo.Point) bool {
	d := geo.Distance(c.Center, p)
	if !(d <= c.RadiusM+radiusTolM) {
		return false
	}
	diff := geo.AngleDiff(geo.Bearing(c.Center, p), c.HeadingDeg)
	return diff <= c.HalfAngleDeg+angleTolDeg
}

// Filter returns the subset of points inside the cone, preserving order.
func (c Cone) Filter(points []geo.Point) []geo.Point {
	out := make([]geo.Point, 0, len(points))
	for _, p := range points {
		if c.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}
