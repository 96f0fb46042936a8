package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"navcore/internal/geo"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports in SI units.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Mode *int   `json:"mode"`
	Time string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt     *float64 `json:"alt"`
	AltMSL  *float64 `json:"altMSL"`
	SpeedMS *float64 `json:"speed"`
	Track   *float64 `json:"track"`

	// Estimated errors in meters.
	Epx *float64 `json:"epx"`
	Epy *float64 `json:"epy"`
	Eph *float64 `json:"eph"`
}

type gpsdSKY struct {
	HDOP       *float64 `json:"hdop"`
	Satellites []struct {
		Used bool `json:"used"`
	} `json:"satellites"`
}

type gpsdState struct {
	fixState
}

// applyLine folds one gpsd JSON report into the state and reports whether a
// position fix was produced.
func (s *gpsdState) applyLine(nowUTC time.Time, line string) (bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return false, fmt.Errorf("gpsd: json parse failed: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return false, fmt.Errorf("gpsd: tpv parse failed: %w", err)
		}
		return s.applyTPV(nowUTC, tpv), nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return false, fmt.Errorf("gpsd: sky parse failed: %w", err)
		}
		s.applySKY(sky)
		return false, nil
	default:
		// VERSION, DEVICES, WATCH and friends.
		return false, nil
	}
}

func (s *gpsdState) applyTPV(nowUTC time.Time, tpv gpsdTPV) bool {
	if tpv.Mode != nil {
		s.fixMode = *tpv.Mode
		s.fixModeOK = true
	}
	if tpv.Eph != nil {
		s.hAccM = *tpv.Eph
		s.hAccOK = true
	} else if tpv.Epx != nil && tpv.Epy != nil {
		s.hAccM = math.Hypot(*tpv.Epx, *tpv.Epy)
		s.hAccOK = true
	}
	if tpv.Lat != nil {
		s.latDeg = *tpv.Lat
		s.latOK = true
	}
	if tpv.Lon != nil {
		s.lonDeg = *tpv.Lon
		s.lonOK = true
	}
	if tpv.SpeedMS != nil {
		s.speedMPS = *tpv.SpeedMS
		s.speedOK = true
	}
	if tpv.Track != nil {
		s.trackDeg = geo.NormalizeHeading(*tpv.Track)
		s.trkOK = true
	}
	altM := tpv.AltMSL
	if altM == nil {
		altM = tpv.Alt
	}
	if altM != nil {
		s.altM = *altM
		s.altOK = true
	}

	// Mode 2 is 2D, 3 is 3D; anything lower is no fix.
	if !s.fixModeOK || s.fixMode < 2 || !s.latOK || !s.lonOK {
		return false
	}
	fixTime := nowUTC
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(tpv.Time)); err == nil {
		fixTime = t.UTC()
	}
	s.lastFix = fixTime
	s.valid = true
	return true
}

func (s *gpsdState) applySKY(sky gpsdSKY) {
	if sky.HDOP != nil {
		s.hdop = *sky.HDOP
		s.hdopOK = true
	}
	if len(sky.Satellites) > 0 {
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		s.satellites = used
		s.satsOK = true
	}
}
