// Package nav tracks progress along a planned route.
//
// A Tracker is a small state machine: Idle until Start, Navigating until Stop.
// Every mutating call returns the resulting State and publishes it to
// subscribers. State values are deep copies; holding one never races with
// later updates.
package nav

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"navcore/internal/broadcast"
	"navcore/internal/geo"
	"navcore/internal/route"
)

// DefaultAverageSpeedMPS is 30 km/h.
const DefaultAverageSpeedMPS = 8.33

type Config struct {
	// Provider plans routes for Plan/ComputeRoute. Nil uses a LinearProvider.
	Provider route.Provider
	// AverageSpeedMPS converts remaining distance to time. Zero uses
	// DefaultAverageSpeedMPS.
	AverageSpeedMPS float64
}

// State is a navigation snapshot.
type State struct {
	SessionID          string      `json:"session_id,omitempty"`
	Navigating         bool        `json:"navigating"`
	Destination        *geo.Point  `json:"destination,omitempty"`
	Route              route.Route `json:"route"`
	CurrentStep        int         `json:"current_step"`
	TotalSteps         int         `json:"total_steps"`
	EstimatedTimeS     float64     `json:"estimated_time_s"`
	EstimatedDistanceM float64     `json:"estimated_distance_m"`
	UpdatedAt          time.Time   `json:"updated_at,omitempty"`
}

func (s State) clone() State {
	out := s
	out.Route = s.Route.Clone()
	if out.Route == nil {
		out.Route = route.Route{}
	}
	if s.Destination != nil {
		d := *s.Destination
		out.Destination = &d
	}
	return out
}

// CurrentInstruction returns the instruction text at CurrentStep, or "" when
// idle or the route is empty.
func (s State) CurrentInstruction() string {
	if !s.Navigating || s.CurrentStep < 0 || s.CurrentStep >= len(s.Route) {
		return ""
	}
	return s.Route[s.CurrentStep].Instruction
}

type Tracker struct {
	cfg Config

	mu    sync.Mutex
	state State

	now func() time.Time
	out *broadcast.Broadcaster[State]
}

func New(cfg Config) *Tracker {
	if cfg.Provider == nil {
		cfg.Provider = route.LinearProvider{}
	}
	if cfg.AverageSpeedMPS <= 0 {
		cfg.AverageSpeedMPS = DefaultAverageSpeedMPS
	}
	t := &Tracker{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
		out: broadcast.New[State](),
	}
	t.state = emptyState()
	return t
}

func emptyState() State {
	return State{Route: route.Route{}}
}

// State returns a copy of the current navigation state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Subscribe streams every published state. The latest state, if any, is
// delivered immediately.
func (t *Tracker) Subscribe(buffer int) (<-chan State, func()) {
	return t.out.Subscribe(buffer)
}

// Subscribers returns the number of open subscriptions.
func (t *Tracker) Subscribers() int {
	return t.out.Subscribers()
}

// Close ends all subscriptions.
func (t *Tracker) Close() {
	t.out.Close()
}

// Start begins navigating to destination with an empty route. An active
// session is stopped first.
func (t *Tracker) Start(destination geo.Point) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Navigating {
		t.resetLocked()
	}
	d := destination
	t.state = State{
		SessionID:   uuid.NewString(),
		Navigating:  true,
		Destination: &d,
		Route:       route.Route{},
		UpdatedAt:   t.now(),
	}
	return t.publishLocked()
}

// ComputeRoute asks the configured provider for a route. It does not change
// tracker state.
func (t *Tracker) ComputeRoute(ctx context.Context, origin, destination geo.Point) (route.Route, error) {
	r, err := t.cfg.Provider.Route(ctx, origin, destination)
	if err != nil {
		return nil, fmt.Errorf("nav: compute route: %w", err)
	}
	return r, nil
}

// Plan computes a route from origin to the active destination and installs
// it with SetRoute.
func (t *Tracker) Plan(ctx context.Context, origin geo.Point) (State, error) {
	t.mu.Lock()
	if !t.state.Navigating || t.state.Destination == nil {
		t.mu.Unlock()
		return t.State(), fmt.Errorf("nav: not navigating")
	}
	dest := *t.state.Destination
	session := t.state.SessionID
	t.mu.Unlock()

	r, err := t.ComputeRoute(ctx, origin, dest)
	if err != nil {
		return t.State(), err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Discard the result if the session changed while the provider ran.
	if t.state.SessionID != session {
		return t.state.clone(), fmt.Errorf("nav: session changed during planning")
	}
	t.setRouteLocked(r)
	return t.publishLocked(), nil
}

// SetRoute installs r and recomputes totals. CurrentStep restarts at 0.
func (t *Tracker) SetRoute(r route.Route) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setRouteLocked(r)
	return t.publishLocked()
}

func (t *Tracker) setRouteLocked(r route.Route) {
	t.state.Route = r.Clone()
	if t.state.Route == nil {
		t.state.Route = route.Route{}
	}
	t.state.TotalSteps = len(r)
	t.state.CurrentStep = 0
	t.state.EstimatedDistanceM = r.TotalDistance()
	t.state.EstimatedTimeS = t.state.EstimatedDistanceM / t.cfg.AverageSpeedMPS
	t.state.UpdatedAt = t.now()
}

// UpdateCurrentLocation moves CurrentStep to the route step nearest p.
// It reports whether the step changed. Idle trackers and empty routes ignore
// the update.
//
// This is nearest-point matching, not progress along the path: noise near a
// route that doubles back can move CurrentStep backward.
func (t *Tracker) UpdateCurrentLocation(p geo.Point) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.Navigating || len(t.state.Route) == 0 {
		return t.state.clone(), false
	}
	nearest := NearestStep(t.state.Route, p)
	if nearest == t.state.CurrentStep {
		return t.state.clone(), false
	}
	t.state.CurrentStep = nearest
	t.state.UpdatedAt = t.now()
	return t.publishLocked(), true
}

// NearestStep returns the index of the step closest to p. Ties keep the
// lowest index. It returns -1 for an empty route.
func NearestStep(r route.Route, p geo.Point) int {
	best := -1
	bestD := 0.0
	for i := range r {
		d := geo.Distance(p, r[i].Point)
		if best == -1 || d < bestD {
			best = i
			bestD = d
		}
	}
	return best
}

// Stop returns to the empty idle state. Stopping an idle tracker publishes
// the same empty state again.
func (t *Tracker) Stop() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
	return t.publishLocked()
}

func (t *Tracker) resetLocked() {
	t.state = emptyState()
}

// CurrentInstruction returns the instruction at the current step.
func (t *Tracker) CurrentInstruction() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.CurrentInstruction()
}

// DistanceToDestination returns the great-circle distance from p to the
// destination, or 0 when there is none.
func (t *Tracker) DistanceToDestination(p geo.Point) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Destination == nil {
		return 0
	}
	return geo.Distance(p, *t.state.Destination)
}

func (t *Tracker) publishLocked() State {
	s := t.state.clone()
	t.out.Publish(s.clone())
	return s
}
