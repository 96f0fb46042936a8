// Package sim plays back scripted walks and drives for bench runs without a
// GNSS receiver or motion sensors.
package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"navcore/internal/geo"
)

// Script is a deterministic keyframe description of a device moving along
// the ground. Times are Go duration strings. If Duration is zero it is
// derived from the last keyframe.
//
//	version: 1
//	duration: 60s
//	device:
//	  field_ut: 48
//	  inclination_deg: 60
//	  accuracy_m: 5
//	keyframes:
//	  - t: 0s
//	    lat_deg: 45.0
//	    lon_deg: -122.0
//	    heading_deg: 90
//	    speed_mps: 1.4
//	    pitch_deg: 10
//
// Keyframes must use non-decreasing t values.
type Script struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Device    Device        `yaml:"device"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

// Device describes the simulated sensors.
type Device struct {
	// FieldUT is the local geomagnetic field strength in microtesla.
	FieldUT float64 `yaml:"field_ut"`
	// InclinationDeg is the magnetic dip angle; positive points down.
	InclinationDeg float64 `yaml:"inclination_deg"`
	// AccuracyM is reported as the fix's horizontal accuracy.
	AccuracyM float64 `yaml:"accuracy_m"`
}

const (
	defaultFieldUT        = 48
	defaultInclinationDeg = 60
	defaultAccuracyM      = 5
)

// Keyframe is a time-stamped device state.
type Keyframe struct {
	T          time.Duration `yaml:"t"`
	LatDeg     float64       `yaml:"lat_deg"`
	LonDeg     float64       `yaml:"lon_deg"`
	AltM       *float64      `yaml:"alt_m"`
	HeadingDeg float64       `yaml:"heading_deg"`
	SpeedMPS   float64       `yaml:"speed_mps"`
	PitchDeg   float64       `yaml:"pitch_deg"`
	RollDeg    float64       `yaml:"roll_deg"`
}

// Scenario is the validated runtime form of a Script.
type Scenario struct {
	script   Script
	duration time.Duration
}

// State is the interpolated device state at one instant.
type State struct {
	Elapsed    time.Duration
	LatDeg     float64
	LonDeg     float64
	AltM       *float64
	HeadingDeg float64
	SpeedMPS   float64
	PitchDeg   float64
	RollDeg    float64
	// YawRateDPS is the heading rate of the active segment, degrees/second.
	YawRateDPS float64
}

func LoadScript(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	return ParseScriptYAML(b)
}

func ParseScriptYAML(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, fmt.Errorf("sim: parse script: %w", err)
	}
	return s, nil
}

// NewScenario validates script and fills device defaults.
func NewScenario(script Script) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	kfs := script.Keyframes
	if len(kfs) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i := range kfs {
		if kfs[i].T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kfs[i].T < kfs[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if p := kfs[i].PitchDeg; p <= -90 || p >= 90 {
			return nil, fmt.Errorf("keyframes[%d].pitch_deg must be within (-90,90)", i)
		}
	}

	if script.Device.FieldUT == 0 {
		script.Device.FieldUT = defaultFieldUT
	}
	if script.Device.InclinationDeg == 0 {
		script.Device.InclinationDeg = defaultInclinationDeg
	}
	if script.Device.AccuracyM == 0 {
		script.Device.AccuracyM = defaultAccuracyM
	}

	dur := script.Duration
	if dur <= 0 {
		dur = kfs[len(kfs)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or derivable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

func (s *Scenario) Device() Device {
	return s.script.Device
}

// StateAt interpolates the state at elapsed. With loop, elapsed wraps around
// Duration(); otherwise it is clamped to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration, loop bool) State {
	if s == nil {
		return State{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed %= s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	k0, k1, alpha := selectSegment(s.script.Keyframes, elapsed)
	st := State{
		Elapsed:    elapsed,
		LatDeg:     lerp(k0.LatDeg, k1.LatDeg, alpha),
		LonDeg:     lerp(k0.LonDeg, k1.LonDeg, alpha),
		HeadingDeg: geo.InterpolateHeading(k0.HeadingDeg, k1.HeadingDeg, alpha),
		SpeedMPS:   lerp(k0.SpeedMPS, k1.SpeedMPS, alpha),
		PitchDeg:   lerp(k0.PitchDeg, k1.PitchDeg, alpha),
		RollDeg:    lerp(k0.RollDeg, k1.RollDeg, alpha),
	}
	if k0.AltM != nil && k1.AltM != nil {
		v := lerp(*k0.AltM, *k1.AltM, alpha)
		st.AltM = &v
	}
	if dt := (k1.T - k0.T).Seconds(); dt > 0 {
		d := geo.NormalizeHeading(k1.HeadingDeg - k0.HeadingDeg)
		if d > 180 {
			d -= 360
		}
		st.YawRateDPS = d / dt
	}
	return st
}

// Fix returns the state as a location fix stamped with now.
func (s *Scenario) Fix(st State, now time.Time) geo.Point {
	p := geo.LatLon(st.LatDeg, st.LonDeg)
	p.Time = now
	heading, speed := st.HeadingDeg, st.SpeedMPS
	acc := s.script.Device.AccuracyM
	p.HeadingDeg = &heading
	p.SpeedMPS = &speed
	p.AccuracyM = &acc
	if st.AltM != nil {
		alt := *st.AltM
		p.AltM = &alt
	}
	return p
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0, k1 := kfs[idx-1], kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	return k0, k1, clamp01(alpha)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
