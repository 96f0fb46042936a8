package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"navcore/internal/geo"
	"navcore/internal/web"
)

// udpFrame is the datagram pushed to LAN displays. It stays well under one
// Ethernet MTU for typical navigation state.
type udpFrame struct {
	Type       string             `json:"type"`
	TimeUTC    string             `json:"time_utc"`
	Position   *geo.Point         `json:"position,omitempty"`
	HeadingDeg *float64           `json:"heading_deg,omitempty"`
	Calibrated bool               `json:"calibrated"`
	Navigation web.NavigationView `json:"navigation"`
}

func newUDPFrame(snap web.StatusSnapshot) udpFrame {
	f := udpFrame{
		Type:       "navcore",
		TimeUTC:    snap.NowUTC,
		Position:   snap.Position,
		Navigation: snap.Navigation,
	}
	if est := snap.Compass.Estimate; est.Determined {
		h := snap.Compass.SmoothedHeadingDeg
		f.HeadingDeg = &h
		f.Calibrated = est.Calibrated
	}
	return f
}

type datagramSender interface {
	Send(payload []byte) error
}

// runUDPFeed sends one frame per interval until ctx ends. Send failures are
// logged once per distinct message.
func runUDPFeed(ctx context.Context, out datagramSender, interval time.Duration, snapshot func() web.StatusSnapshot) {
	t := time.NewTicker(interval)
	defer t.Stop()
	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		b, err := json.Marshal(newUDPFrame(snapshot()))
		if err != nil {
			log.Printf("udp frame encode failed: %v", err)
			continue
		}
		if err := out.Send(b); err != nil {
			if msg := err.Error(); msg != lastErr {
				log.Printf("udp send failed: %v", err)
				lastErr = msg
			}
			continue
		}
		lastErr = ""
	}
}
