package gps

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"navcore/internal/geo"
)

type nmeaSentence struct {
	Type string
	// Fields is the comma-split payload (excluding $ and checksum).
	Fields []string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	if len(parts[0]) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// GPRMC, GNRMC, ... all normalize to RMC.
	t := parts[0]
	t = t[len(t)-3:]
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

type nmeaState struct {
	fixState
}

// apply folds one sentence into the state and reports whether a position fix
// was produced.
func (s *nmeaState) apply(nowUTC time.Time, sent nmeaSentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent.Fields)
	case "GGA":
		return s.applyGGA(nowUTC, sent.Fields)
	default:
		return false
	}
}

// RMC: 1 time, 2 status (A/V), 3-4 lat, 5-6 lon, 7 speed kt, 8 course deg,
// 9 date.
func (s *nmeaState) applyRMC(nowUTC time.Time, f []string) bool {
	if len(f) < 10 {
		return false
	}
	if strings.TrimSpace(f[2]) != "A" {
		// Void fixes leave the previous state untouched.
		return false
	}
	s.applyLatLon(f[3], f[4], f[5], f[6])

	if kt, ok := parseFloat(f[7]); ok {
		s.speedMPS = kt * knotsToMPS
		s.speedOK = true
	}
	if trk, ok := parseFloat(f[8]); ok {
		s.trackDeg = geo.NormalizeHeading(trk)
		s.trkOK = true
	}
	return s.markFix(nowUTC)
}

// GGA: 1 time, 2-3 lat, 4-5 lon, 6 quality (0 invalid), 7 satellites,
// 8 HDOP, 9 altitude, 10 altitude units.
func (s *nmeaState) applyGGA(nowUTC time.Time, f []string) bool {
	if len(f) < 11 {
		return false
	}
	q, err := strconv.Atoi(strings.TrimSpace(f[6]))
	if err != nil || q == 0 {
		return false
	}
	s.fixQuality = q
	s.fixQualityOK = true
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.satellites = sats
		s.satsOK = true
	}
	if hdop, ok := parseFloat(f[8]); ok {
		s.hdop = hdop
		s.hdopOK = true
	}
	s.applyLatLon(f[2], f[3], f[4], f[5])
	if altM, ok := parseFloat(f[9]); ok {
		s.altM = altM
		s.altOK = true
	}
	return s.markFix(nowUTC)
}

func (s *nmeaState) applyLatLon(lat, latHemi, lon, lonHemi string) {
	if v, ok := parseNMEALatLon(lat, latHemi); ok {
		s.latDeg = v
		s.latOK = true
	}
	if v, ok := parseNMEALatLon(lon, lonHemi); ok {
		s.lonDeg = v
		s.lonOK = true
	}
}

func (s *nmeaState) markFix(nowUTC time.Time) bool {
	if !s.latOK || !s.lonOK {
		return false
	}
	s.lastFix = nowUTC
	s.valid = true
	return true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon converts ddmm.mmmm / dddmm.mmmm plus hemisphere to signed
// decimal degrees.
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// The last two integer digits are whole minutes.
	intPart := v
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
