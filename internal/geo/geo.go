// Package geo implements great-circle math on a spherical Earth.
//
// All functions are pure. Ill-defined inputs (antipodal bearing, NaN
// coordinates) propagate NaN rather than returning an error; callers validate
// fixes before they reach this package. Longitude wrap is not handled: inputs
// are assumed to lie in [-90,90]x[-180,180].
package geo

import (
	"math"
	"time"
)

// EarthRadiusM is the mean Earth radius used by every formula here.
const EarthRadiusM = 6371000.0

// Point is a position fix or waypoint. Optional fields are nil when unknown.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	AltM       *float64  `json:"alt_m,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	HeadingDeg *float64  `json:"heading_deg,omitempty"`
	SpeedMPS   *float64  `json:"speed_mps,omitempty"`
	Time       time.Time `json:"time,omitempty"`
}

// LatLon returns a bare point with no optional fields set.
func LatLon(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the haversine great-circle distance in meters.
func Distance(a, b Point) float64 {
	phi1 := rad(a.Lat)
	phi2 := rad(b.Lat)
	dPhi := rad(b.Lat - a.Lat)
	dLambda := rad(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// Bearing returns the initial great-circle bearing from a to b in [0,360).
// 0 is north, 90 is east.
func Bearing(a, b Point) float64 {
	phi1 := rad(a.Lat)
	phi2 := rad(b.Lat)
	dLambda := rad(b.Lon - a.Lon)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return NormalizeHeading(deg(math.Atan2(y, x)))
}

// Midpoint returns the point halfway along the great circle from a to b.
func Midpoint(a, b Point) Point {
	lat1, lon1 := rad(a.Lat), rad(a.Lon)
	lat2, lon2 := rad(b.Lat), rad(b.Lon)

	bx := math.Cos(lat2) * math.Cos(lon2-lon1)
	by := math.Cos(lat2) * math.Sin(lon2-lon1)

	midLat := math.Atan2(
		math.Sin(lat1)+math.Sin(lat2),
		math.Sqrt((math.Cos(lat1)+bx)*(math.Cos(lat1)+bx)+by*by),
	)
	midLon := lon1 + math.Atan2(by, math.Cos(lat1)+bx)
	return LatLon(deg(midLat), deg(midLon))
}

// DestinationPoint projects distanceM meters from origin along bearingDeg.
func DestinationPoint(origin Point, distanceM, bearingDeg float64) Point {
	ang := distanceM / EarthRadiusM
	brg := rad(bearingDeg)
	lat1 := rad(origin.Lat)
	lon1 := rad(origin.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(
		math.Sin(brg)*math.Sin(ang)*math.Cos(lat1),
		math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2),
	)
	return LatLon(deg(lat2), deg(lon2))
}
