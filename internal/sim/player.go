package sim

import (
	"context"
	"errors"
	"log"
	"time"

	"navcore/internal/geo"
	"navcore/internal/orientation"
)

// SensorSink receives raw sensor samples. *orientation.Estimator satisfies it.
type SensorSink interface {
	UpdateAccelerometer(orientation.Vector3) (orientation.Estimate, error)
	UpdateMagnetometer(orientation.Vector3) (orientation.Estimate, error)
	UpdateGyroscope(orientation.Vector3) orientation.Estimate
}

// Player feeds a Scenario into a sensor sink and a fix callback on a fixed
// cadence.
type Player struct {
	Scenario *Scenario
	Interval time.Duration
	Loop     bool

	Sensors SensorSink
	OnFix   func(geo.Point)

	now func() time.Time
}

// Step emits the samples and fix for elapsed. Invalid samples are returned
// but the fix is still delivered.
func (p *Player) Step(elapsed time.Duration) error {
	st := p.Scenario.StateAt(elapsed, p.Loop)
	var err error
	if p.Sensors != nil {
		s := SensorSamples(st, p.Scenario.Device())
		p.Sensors.UpdateGyroscope(s.Gyroscope)
		_, aerr := p.Sensors.UpdateAccelerometer(s.Accelerometer)
		_, merr := p.Sensors.UpdateMagnetometer(s.Magnetometer)
		err = errors.Join(aerr, merr)
	}
	if p.OnFix != nil {
		now := time.Now().UTC()
		if p.now != nil {
			now = p.now()
		}
		p.OnFix(p.Scenario.Fix(st, now))
	}
	return err
}

// Run steps the scenario until ctx is cancelled, or until the end of the
// script when Loop is false.
func (p *Player) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	log.Printf("sim started duration=%s interval=%s loop=%v", p.Scenario.Duration(), interval, p.Loop)

	start := time.Now()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		elapsed := time.Since(start)
		if err := p.Step(elapsed); err != nil {
			log.Printf("sim step failed elapsed=%s: %v", elapsed, err)
		}
		if !p.Loop && elapsed >= p.Scenario.Duration() {
			log.Printf("sim finished elapsed=%s", elapsed)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
