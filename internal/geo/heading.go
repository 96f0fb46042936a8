package geo

import (
	"fmt"
	"math"
)

// DefaultSmoothingFactor is the per-sample weight SmoothHeading applies to a
// new target heading.
const DefaultSmoothingFactor = 0.1

// NormalizeHeading wraps deg into [0,360). NaN and Inf propagate as NaN.
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	// -1e-15 + 360 rounds to 360.
	if h >= 360 {
		h = 0
	}
	return h
}

// AngleDiff returns the absolute difference between two headings, wrapped
// into [0,180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// InterpolateHeading moves from h1 toward h2 along the shorter arc.
//
// factor is not clamped: values outside [0,1] extrapolate along the same arc
// and the result is wrapped into [0,360).
func InterpolateHeading(h1, h2, factor float64) float64 {
	diff := NormalizeHeading(h2) - NormalizeHeading(h1)
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	return NormalizeHeading(h1 + diff*factor)
}

// SmoothHeading applies one step of exponential smoothing toward target.
// A factor <= 0 uses DefaultSmoothingFactor.
func SmoothHeading(current, target, factor float64) float64 {
	if factor <= 0 {
		factor = DefaultSmoothingFactor
	}
	return InterpolateHeading(current, target, factor)
}

// FormatDistance renders meters for display: "850m", "1.2km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

// FormatTime renders seconds for display: "12m", "1h 5m".
func FormatTime(seconds float64) string {
	total := int(math.Floor(seconds))
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
