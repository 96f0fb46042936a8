package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"navcore/internal/broadcast"
	"navcore/internal/config"
	"navcore/internal/geo"
	"navcore/internal/gps"
	"navcore/internal/imu"
	"navcore/internal/nav"
	"navcore/internal/orientation"
	"navcore/internal/route"
	"navcore/internal/sim"
	"navcore/internal/udp"
	"navcore/internal/web"
)

// planRetryInterval spaces out routing attempts while the provider fails.
const planRetryInterval = 10 * time.Second

func newProvider(c config.NavConfig) (route.Provider, error) {
	switch c.Provider {
	case "", config.ProviderLinear:
		return route.LinearProvider{Steps: c.LinearSteps}, nil
	case config.ProviderOSRM:
		return route.OSRMProvider{
			BaseURL: c.OSRM.URL,
			Profile: c.OSRM.Profile,
			Client:  &http.Client{Timeout: c.OSRM.Timeout},
		}, nil
	default:
		return nil, fmt.Errorf("unknown nav provider %q", c.Provider)
	}
}

// run wires the components and blocks until ctx ends or the web server
// fails.
func run(ctx context.Context, cfg config.Config, logs *web.LogBuffer) error {
	provider, err := newProvider(cfg.Nav)
	if err != nil {
		return err
	}
	tracker := nav.New(nav.Config{Provider: provider, AverageSpeedMPS: cfg.Nav.AverageSpeedMPS})
	defer tracker.Close()
	compass := orientation.New(orientation.Config{SmoothingFactor: cfg.Orientation.SmoothingFactor})
	defer compass.Close()
	status := web.NewStatus()

	deps := web.Deps{
		Status:         status,
		Nav:            tracker,
		Compass:        compass,
		Logs:           logs,
		FOV:            web.FOVConfig{FieldOfViewDeg: cfg.FOV.FieldOfViewDeg, RadiusM: cfg.FOV.RadiusM},
		StreamInterval: cfg.Web.StreamInterval,
		PlanTimeout:    cfg.Nav.OSRM.Timeout,
		About:          web.AboutInfo{RouteProvider: cfg.Nav.Provider, FixSource: "none", CompassSource: "none"},
	}

	if cfg.IMU.Enable {
		svc := imu.New(imu.Config{
			Enable:     true,
			I2CBus:     cfg.IMU.I2CBus,
			Address:    cfg.IMU.Address,
			MagAddress: cfg.IMU.MagAddress,
			Interval:   cfg.IMU.Interval,
		}, compass)
		// A missing sensor is not fatal; /api/status carries the error.
		if err := svc.Start(ctx); err != nil {
			log.Printf("imu start failed: %v", err)
		}
		defer svc.Close()
		deps.IMU = svc
		deps.About.CompassSource = "imu"
	}

	var fixes <-chan geo.Point
	switch {
	case cfg.Sim.Enable:
		status.SetMode("sim")
		deps.About.FixSource = "sim"
		deps.About.CompassSource = "sim"
		ch, stop, err := startSim(ctx, cfg.Sim, compass)
		if err != nil {
			return err
		}
		defer stop()
		fixes = ch
	case cfg.GPS.Enable:
		status.SetMode("gps")
		deps.About.FixSource = "gps/" + cfg.GPS.Source
		svc := gps.New(gps.Config{
			Enable:   true,
			Source:   cfg.GPS.Source,
			GPSDAddr: cfg.GPS.GPSDAddr,
			Device:   cfg.GPS.Device,
			Baud:     cfg.GPS.Baud,
		})
		ch, cancel := svc.Fixes(16)
		defer cancel()
		// A receiver that is missing at boot is not fatal; the API still
		// serves and reports the error.
		if err := svc.Start(ctx); err != nil {
			log.Printf("gps start failed: %v", err)
		}
		defer svc.Close()
		deps.GPS = svc
		fixes = ch
	default:
		status.SetMode("none")
		log.Printf("no location source enabled; navigation will not advance")
	}

	if fixes != nil {
		go followFixes(ctx, fixes, status, tracker, cfg.Nav.OSRM.Timeout)
	}

	if len(cfg.UDP.Targets) > 0 {
		sender, err := udp.Dial(cfg.UDP.Targets)
		if err != nil {
			return err
		}
		defer sender.Close()
		log.Printf("udp feed targets=%v interval=%s", sender.Targets(), cfg.UDP.Interval)
		go runUDPFeed(ctx, sender, cfg.UDP.Interval, func() web.StatusSnapshot {
			return status.Snapshot(time.Now().UTC(), deps)
		})
	}

	log.Printf("web listening addr=%s provider=%s", cfg.Web.Listen, cfg.Nav.Provider)
	err = web.Serve(ctx, cfg.Web.Listen, deps)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func startSim(ctx context.Context, c config.SimConfig, compass *orientation.Estimator) (<-chan geo.Point, func(), error) {
	script, err := sim.LoadScript(c.Scenario)
	if err != nil {
		return nil, nil, fmt.Errorf("sim scenario load failed: %w", err)
	}
	scn, err := sim.NewScenario(script)
	if err != nil {
		return nil, nil, fmt.Errorf("sim scenario invalid: %w", err)
	}

	out := broadcast.New[geo.Point]()
	ch, cancel := out.Subscribe(16)
	p := &sim.Player{
		Scenario: scn,
		Interval: c.Interval,
		Loop:     c.Loop,
		Sensors:  compass,
		OnFix:    out.Publish,
	}
	go func() {
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sim stopped: %v", err)
		}
	}()
	return ch, func() {
		cancel()
		out.Close()
	}, nil
}

// followFixes records every fix, advances the tracker, and plans a route
// for a session that does not have one yet.
func followFixes(ctx context.Context, fixes <-chan geo.Point, status *web.Status, tracker *nav.Tracker, planTimeout time.Duration) {
	var lastAttempt time.Time
	var lastSession string
	for {
		var p geo.Point
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			p = fix
		}

		status.SetPosition(p)
		st, changed := tracker.UpdateCurrentLocation(p)
		if changed {
			log.Printf("nav step=%d/%d instruction=%q", st.CurrentStep+1, st.TotalSteps, st.CurrentInstruction())
		}
		if !st.Navigating || st.TotalSteps > 0 {
			continue
		}
		if st.SessionID == lastSession && time.Since(lastAttempt) < planRetryInterval {
			continue
		}
		lastSession, lastAttempt = st.SessionID, time.Now()

		pctx, cancel := context.WithTimeout(ctx, planTimeout)
		planned, err := tracker.Plan(pctx, p)
		cancel()
		if err != nil {
			log.Printf("nav plan failed session=%s: %v", st.SessionID, err)
			continue
		}
		log.Printf("nav planned session=%s steps=%d distance=%s eta=%s",
			planned.SessionID, planned.TotalSteps,
			geo.FormatDistance(planned.EstimatedDistanceM), geo.FormatTime(planned.EstimatedTimeS))
	}
}
