package gps

import (
	"time"

	"navcore/internal/geo"
)

const (
	knotsToMPS  = 0.514444
	hdopToMeter = 5.0 // rough UERE for consumer receivers
)

// fixState accumulates fields from successive sentences/reports. A fix is
// only reported once both latitude and longitude have been seen.
type fixState struct {
	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool

	altM  float64
	altOK bool

	speedMPS float64
	speedOK  bool

	trackDeg float64
	trkOK    bool

	fixQuality   int
	fixQualityOK bool
	fixMode      int
	fixModeOK    bool
	satellites   int
	satsOK       bool
	hdop         float64
	hdopOK       bool
	hAccM        float64
	hAccOK       bool

	lastFix time.Time
	valid   bool
}

func (s *fixState) point() geo.Point {
	p := geo.LatLon(s.latDeg, s.lonDeg)
	p.Time = s.lastFix
	if s.altOK {
		v := s.altM
		p.AltM = &v
	}
	if s.speedOK {
		v := s.speedMPS
		p.SpeedMPS = &v
	}
	if s.trkOK {
		v := s.trackDeg
		p.HeadingDeg = &v
	}
	switch {
	case s.hAccOK:
		v := s.hAccM
		p.AccuracyM = &v
	case s.hdopOK:
		v := s.hdop * hdopToMeter
		p.AccuracyM = &v
	}
	return p
}

func (s *fixState) fill(out *Snapshot) {
	out.Valid = s.valid
	if s.valid {
		p := s.point()
		out.Fix = &p
	}
	if s.fixQualityOK {
		v := s.fixQuality
		out.FixQuality = &v
	}
	if s.fixModeOK {
		v := s.fixMode
		out.FixMode = &v
	}
	if s.satsOK {
		v := s.satellites
		out.Satellites = &v
	}
	if s.hdopOK {
		v := s.hdop
		out.HDOP = &v
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
}
