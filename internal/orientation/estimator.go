// Package orientation turns raw accelerometer and magnetometer samples into a
// tilt-compensated compass heading plus a calibration judgment.
package orientation

import (
	"sync"
	"sync/atomic"
	"time"

	"navcore/internal/broadcast"
	"navcore/internal/geo"
)

type Config struct {
	// SmoothingFactor weights each new heading in the display-smoothed
	// heading. Zero uses geo.DefaultSmoothingFactor.
	SmoothingFactor float64
}

// Snapshot is a copy of the estimator state. Sample pointers are nil until
// the corresponding stream has delivered at least one reading.
type Snapshot struct {
	Estimate           Estimate `json:"estimate"`
	SmoothedHeadingDeg float64  `json:"smoothed_heading_deg"`

	Accelerometer *Vector3 `json:"accelerometer,omitempty"`
	Gyroscope     *Vector3 `json:"gyroscope,omitempty"`
	Magnetometer  *Vector3 `json:"magnetometer,omitempty"`

	Samples        uint64    `json:"samples"`
	InvalidSamples uint64    `json:"invalid_samples"`
	LastError      string    `json:"last_error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Estimator keeps the most recent reading from each sensor stream and
// recomputes the heading whenever the accelerometer or magnetometer moves.
//
// Streams may call the Update methods from different goroutines. Each vector
// is stored as a single atomic swap, so a reader never observes a torn
// mix of two samples' axes.
type Estimator struct {
	cfg Config

	acc  atomic.Value // Vector3
	gyro atomic.Value // Vector3
	mag  atomic.Value // Vector3

	samples atomic.Uint64
	invalid atomic.Uint64

	mu        sync.Mutex
	est       Estimate
	smoothed  float64
	lastErr   string
	updatedAt time.Time

	now func() time.Time
	out *broadcast.Broadcaster[Estimate]
}

func New(cfg Config) *Estimator {
	if cfg.SmoothingFactor <= 0 || cfg.SmoothingFactor > 1 {
		cfg.SmoothingFactor = geo.DefaultSmoothingFactor
	}
	return &Estimator{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
		out: broadcast.New[Estimate](),
	}
}

// UpdateAccelerometer records a new accelerometer sample and recomputes.
//
// On an invalid sample the previous estimate is kept and returned together
// with the *InvalidSampleError.
func (e *Estimator) UpdateAccelerometer(v Vector3) (Estimate, error) {
	e.acc.Store(v)
	return e.recompute()
}

// UpdateMagnetometer records a new magnetometer sample and recomputes.
func (e *Estimator) UpdateMagnetometer(v Vector3) (Estimate, error) {
	e.mag.Store(v)
	return e.recompute()
}

// UpdateGyroscope records a gyroscope sample. Gyro data does not feed the
// heading; it is retained for Snapshot consumers.
func (e *Estimator) UpdateGyroscope(v Vector3) Estimate {
	e.gyro.Store(v)
	e.samples.Add(1)
	return e.Estimate()
}

// Estimate returns the current estimate.
func (e *Estimator) Estimate() Estimate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.est
}

func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	snap := Snapshot{
		Estimate:           e.est,
		SmoothedHeadingDeg: e.smoothed,
		LastError:          e.lastErr,
		UpdatedAt:          e.updatedAt,
	}
	e.mu.Unlock()

	snap.Accelerometer = load(&e.acc)
	snap.Gyroscope = load(&e.gyro)
	snap.Magnetometer = load(&e.mag)
	snap.Samples = e.samples.Load()
	snap.InvalidSamples = e.invalid.Load()
	return snap
}

// Subscribe streams every newly computed estimate. The latest estimate, if
// any, is delivered immediately.
func (e *Estimator) Subscribe(buffer int) (<-chan Estimate, func()) {
	return e.out.Subscribe(buffer)
}

// Close ends all subscriptions.
func (e *Estimator) Close() {
	e.out.Close()
}

func (e *Estimator) recompute() (Estimate, error) {
	e.samples.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	acc := load(&e.acc)
	if acc == nil {
		// Magnetometer alone cannot be tilt-compensated.
		return e.est, nil
	}
	// An unseen magnetometer reads as zero field, which scores as uncalibrated.
	var mag Vector3
	if m := load(&e.mag); m != nil {
		mag = *m
	}

	est, err := Compute(*acc, mag)
	if err != nil {
		e.invalid.Add(1)
		e.lastErr = err.Error()
		return e.est, err
	}

	if !e.est.Determined {
		e.smoothed = est.HeadingDeg
	} else {
		e.smoothed = geo.SmoothHeading(e.smoothed, est.HeadingDeg, e.cfg.SmoothingFactor)
	}
	e.est = est
	e.lastErr = ""
	e.updatedAt = e.now()
	e.out.Publish(est)
	return est, nil
}

func load(v *atomic.Value) *Vector3 {
	x := v.Load()
	if x == nil {
		return nil
	}
	out := x.(Vector3)
	return &out
}
