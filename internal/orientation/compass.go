package orientation

import (
	"fmt"
	"math"

	"navcore/internal/geo"
)

const (
	// Earth's field strength range in microtesla.
	minFieldUT = 25.0
	maxFieldUT = 65.0

	// StandardGravity is the expected accelerometer magnitude at rest, m/s^2.
	StandardGravity = 9.81

	lowAccuracy         = 0.1
	calibratedThreshold = 0.7
)

// Vector3 is one tri-axis sensor reading (accelerometer m/s^2, gyroscope
// rad/s or magnetometer uT, depending on the source).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector3) finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Estimate is a compass heading and how far it can be trusted.
// Determined is false until a usable accelerometer sample has been seen.
type Estimate struct {
	HeadingDeg float64 `json:"heading_deg"`
	Calibrated bool    `json:"calibrated"`
	Accuracy   float64 `json:"accuracy"`
	Determined bool    `json:"determined"`
}

// Undetermined is the estimate reported before any valid sample.
var Undetermined = Estimate{}

// Sensor names a sample stream.
type Sensor string

const (
	Accelerometer Sensor = "accelerometer"
	Gyroscope     Sensor = "gyroscope"
	Magnetometer  Sensor = "magnetometer"
)

// InvalidSampleError reports a sensor vector the heading math cannot use.
type InvalidSampleError struct {
	Sensor Sensor
	Sample Vector3
	Reason string
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("orientation: invalid %s sample (%g,%g,%g): %s", e.Sensor, e.Sample.X, e.Sample.Y, e.Sample.Z, e.Reason)
}

// Compute derives a tilt-compensated heading from one accelerometer and one
// magnetometer reading. It is a pure function of its inputs.
//
// A zero-length or non-finite accelerometer vector has no defined tilt and
// yields *InvalidSampleError instead of a NaN heading.
func Compute(acc, mag Vector3) (Estimate, error) {
	if !acc.finite() {
		return Undetermined, &InvalidSampleError{Sensor: Accelerometer, Sample: acc, Reason: "non-finite component"}
	}
	if !mag.finite() {
		return Undetermined, &InvalidSampleError{Sensor: Magnetometer, Sample: mag, Reason: "non-finite component"}
	}
	accNorm := acc.Norm()
	if accNorm == 0 {
		return Undetermined, &InvalidSampleError{Sensor: Accelerometer, Sample: acc, Reason: "zero magnitude"}
	}

	accuracy := Accuracy(acc, mag)
	return Estimate{
		HeadingDeg: TiltCompensatedHeading(acc, mag, accNorm),
		Calibrated: accuracy > calibratedThreshold,
		Accuracy:   accuracy,
		Determined: true,
	}, nil
}

// TiltCompensatedHeading rotates mag by the pitch/roll implied by acc and
// returns atan2 of the horizontal components in [0,360). accNorm must be the
// non-zero magnitude of acc.
func TiltCompensatedHeading(acc, mag Vector3, accNorm float64) float64 {
	ax := acc.X / accNorm
	ay := acc.Y / accNorm
	az := acc.Z / accNorm

	// Clamp guards asin against |ax| creeping past 1 by rounding.
	pitch := math.Asin(clamp(-ax, -1, 1))
	roll := math.Atan2(ay, az)

	cosP, sinP := math.Cos(pitch), math.Sin(pitch)
	cosR, sinR := math.Cos(roll), math.Sin(roll)

	magX := mag.X*cosP + mag.Z*sinP
	magY := mag.X*sinR*sinP + mag.Y*cosR - mag.Z*sinR*cosP

	return geo.NormalizeHeading(math.Atan2(magY, magX) * 180 / math.Pi)
}

// Accuracy scores sensor plausibility in [0,1]. A magnetic field outside the
// terrestrial range scores 0.1; otherwise the score reflects how close the
// accelerometer magnitude is to 1 g.
func Accuracy(acc, mag Vector3) float64 {
	field := mag.Norm()
	if field < minFieldUT || field > maxFieldUT {
		return lowAccuracy
	}
	g := acc.Norm()
	return clamp(1-math.Abs(g-StandardGravity)/StandardGravity, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
