package sim

import (
	"math"

	"navcore/internal/orientation"
)

// Samples are synthetic raw sensor readings for one State.
type Samples struct {
	Accelerometer orientation.Vector3
	Magnetometer  orientation.Vector3
	Gyroscope     orientation.Vector3
}

// SensorSamples synthesizes readings in the device frame that the
// tilt-compensated compass maps back to st.HeadingDeg.
//
// Gravity is (-sinP, cosP·sinR, cosP·cosR)·g. The magnetometer is the
// horizontal field at the heading plus the vertical component, rotated into
// the device frame by the transpose of the compensation matrix.
func SensorSamples(st State, dev Device) Samples {
	p := st.PitchDeg * math.Pi / 180
	r := st.RollDeg * math.Pi / 180
	h := st.HeadingDeg * math.Pi / 180
	sp, cp := math.Sincos(p)
	sr, cr := math.Sincos(r)

	g := orientation.StandardGravity
	acc := orientation.Vector3{X: -sp * g, Y: cp * sr * g, Z: cp * cr * g}

	incl := dev.InclinationDeg * math.Pi / 180
	horiz := dev.FieldUT * math.Cos(incl)
	vert := dev.FieldUT * math.Sin(incl)
	lx, ly := horiz*math.Cos(h), horiz*math.Sin(h)

	// Rows of the compensation matrix; the third completes the basis.
	r1 := orientation.Vector3{X: cp, Y: 0, Z: sp}
	r2 := orientation.Vector3{X: sr * sp, Y: cr, Z: -sr * cp}
	r3 := orientation.Vector3{X: -sp * cr, Y: sr, Z: cp * cr}
	mag := orientation.Vector3{
		X: r1.X*lx + r2.X*ly + r3.X*vert,
		Y: r1.Y*lx + r2.Y*ly + r3.Y*vert,
		Z: r1.Z*lx + r2.Z*ly + r3.Z*vert,
	}

	gyro := orientation.Vector3{Z: st.YawRateDPS * math.Pi / 180}
	return Samples{Accelerometer: acc, Magnetometer: mag, Gyroscope: gyro}
}
