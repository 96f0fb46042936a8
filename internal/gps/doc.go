// Package gps is the location provider: it reads a GNSS receiver either as
// raw NMEA over a serial port or as gpsd JSON reports, and publishes each
// position fix as a geo.Point.
//
// Only RMC and GGA (NMEA) and TPV and SKY (gpsd) are interpreted; that is
// enough for position, course, speed, altitude and fix quality.
package gps
