package web

import (
	"sync/atomic"
	"time"

	"navcore/internal/geo"
	"navcore/internal/gps"
	"navcore/internal/imu"
	"navcore/internal/nav"
	"navcore/internal/orientation"
)

// Status holds daemon-level facts that are not owned by any one component:
// uptime, run mode and the latest position fix.
type Status struct {
	startUnixNano int64
	fixes         uint64
	mode          atomic.Value // string
	position      atomic.Pointer[geo.Point]
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	return s
}

// SetMode records where fixes come from ("gps", "sim" or "none").
func (s *Status) SetMode(mode string) {
	s.mode.Store(mode)
}

// SetPosition records the latest fix.
func (s *Status) SetPosition(p geo.Point) {
	atomic.AddUint64(&s.fixes, 1)
	s.position.Store(&p)
}

// Position returns the latest fix, if any.
func (s *Status) Position() (geo.Point, bool) {
	p := s.position.Load()
	if p == nil {
		return geo.Point{}, false
	}
	return *p, true
}

// NavigationView is nav.State without the route, plus display strings.
type NavigationView struct {
	SessionID          string     `json:"session_id,omitempty"`
	Navigating         bool       `json:"navigating"`
	Destination        *geo.Point `json:"destination,omitempty"`
	CurrentStep        int        `json:"current_step"`
	TotalSteps         int        `json:"total_steps"`
	CurrentInstruction string     `json:"current_instruction,omitempty"`
	EstimatedTimeS     float64    `json:"estimated_time_s"`
	EstimatedDistanceM float64    `json:"estimated_distance_m"`
	EstimatedTime      string     `json:"estimated_time"`
	EstimatedDistance  string     `json:"estimated_distance"`
	// RemainingDistanceM is the straight-line distance from the latest fix.
	RemainingDistanceM *float64 `json:"remaining_distance_m,omitempty"`
	RemainingDistance  string   `json:"remaining_distance,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

func navigationView(st nav.State, pos *geo.Point) NavigationView {
	v := NavigationView{
		SessionID:          st.SessionID,
		Navigating:         st.Navigating,
		Destination:        st.Destination,
		CurrentStep:        st.CurrentStep,
		TotalSteps:         st.TotalSteps,
		CurrentInstruction: st.CurrentInstruction(),
		EstimatedTimeS:     st.EstimatedTimeS,
		EstimatedDistanceM: st.EstimatedDistanceM,
		EstimatedTime:      geo.FormatTime(st.EstimatedTimeS),
		EstimatedDistance:  geo.FormatDistance(st.EstimatedDistanceM),
	}
	if pos != nil && st.Destination != nil {
		d := geo.Distance(*pos, *st.Destination)
		v.RemainingDistanceM = &d
		v.RemainingDistance = geo.FormatDistance(d)
	}
	if !st.UpdatedAt.IsZero() {
		v.UpdatedAt = st.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return v
}

type StatusSnapshot struct {
	Service    string               `json:"service"`
	NowUTC     string               `json:"now_utc"`
	UptimeSec  int64                `json:"uptime_sec"`
	Mode       string               `json:"mode"`
	FixesTotal uint64               `json:"fixes_total"`
	Position   *geo.Point           `json:"position,omitempty"`
	Navigation NavigationView       `json:"navigation"`
	Compass    orientation.Snapshot `json:"compass"`
	GPS        *gps.Snapshot        `json:"gps,omitempty"`
	IMU        *imu.Snapshot        `json:"imu,omitempty"`
}

// Snapshot assembles the status document. Nil sources are omitted.
func (s *Status) Snapshot(nowUTC time.Time, d Deps) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:    "navcore",
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		Mode:       s.mode.Load().(string),
		FixesTotal: atomic.LoadUint64(&s.fixes),
	}
	if p, ok := s.Position(); ok {
		snap.Position = &p
	}
	if d.Nav != nil {
		snap.Navigation = navigationView(d.Nav.State(), snap.Position)
	}
	if d.Compass != nil {
		snap.Compass = d.Compass.Snapshot()
	}
	if d.GPS != nil {
		g := d.GPS.Snapshot()
		snap.GPS = &g
	}
	if d.IMU != nil {
		m := d.IMU.Snapshot()
		snap.IMU = &m
	}
	return snap
}
