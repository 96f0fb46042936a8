package imu

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"navcore/internal/orientation"
)

type scriptedReader struct {
	mu  sync.Mutex
	r   Reading
	err error
	n   int
}

func (s *scriptedReader) Read() (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.r, s.err
}

type closeCounter struct{ n atomic.Int32 }

func (c *closeCounter) Close() error {
	c.n.Add(1)
	return nil
}

func levelNorth() Reading {
	return Reading{
		Time:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Accel: orientation.Vector3{Z: orientation.StandardGravity},
		Mag:   orientation.Vector3{X: 30, Z: -20},
		MagOK: true,
	}
}

func TestPoll_FeedsEstimator(t *testing.T) {
	est := orientation.New(orientation.Config{})
	defer est.Close()
	s := New(Config{Enable: true}, est)

	if err := s.poll(&scriptedReader{r: levelNorth()}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	e := est.Estimate()
	if !e.Determined || !e.Calibrated {
		t.Fatalf("estimate=%+v want determined and calibrated", e)
	}
	if e.HeadingDeg > 1e-9 && e.HeadingDeg < 360-1e-9 {
		t.Fatalf("heading=%v want 0", e.HeadingDeg)
	}
	snap := s.Snapshot()
	if snap.Samples != 1 || snap.MagSamples != 1 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.LastSampleUTC != "2026-01-02T03:04:05Z" {
		t.Fatalf("last_sample_utc=%q", snap.LastSampleUTC)
	}
}

func TestPoll_SkipsStaleMagnetometer(t *testing.T) {
	est := orientation.New(orientation.Config{})
	defer est.Close()
	s := New(Config{Enable: true}, est)

	r := levelNorth()
	r.MagOK = false
	if err := s.poll(&scriptedReader{r: r}); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if est.Snapshot().Magnetometer != nil {
		t.Fatalf("magnetometer sample forwarded while stale")
	}
	if got := s.Snapshot().MagSamples; got != 0 {
		t.Fatalf("mag_samples=%d want 0", got)
	}
}

func TestPoll_ReadErrorRecorded(t *testing.T) {
	est := orientation.New(orientation.Config{})
	defer est.Close()
	s := New(Config{Enable: true}, est)

	err := s.poll(&scriptedReader{err: errors.New("bus gone")})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := s.Snapshot().LastError; got != "bus gone" {
		t.Fatalf("last_error=%q", got)
	}
}

func TestPoll_InvalidAccelerometerReported(t *testing.T) {
	est := orientation.New(orientation.Config{})
	defer est.Close()
	s := New(Config{Enable: true}, est)

	r := levelNorth()
	r.Accel = orientation.Vector3{}
	err := s.poll(&scriptedReader{r: r})
	var inv *orientation.InvalidSampleError
	if !errors.As(err, &inv) {
		t.Fatalf("err=%v want InvalidSampleError", err)
	}
	if s.Snapshot().Samples != 1 {
		t.Fatalf("sample not counted")
	}
}

func withOpenDevice(t *testing.T, fn func(Config) (reader, io.Closer, error)) {
	t.Helper()
	old := openDevice
	openDevice = fn
	t.Cleanup(func() { openDevice = old })
}

func TestStart_DisabledDoesNotOpen(t *testing.T) {
	withOpenDevice(t, func(Config) (reader, io.Closer, error) {
		t.Fatalf("openDevice called")
		return nil, nil, nil
	})
	s := New(Config{}, orientation.New(orientation.Config{}))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Close()
}

func TestStart_OpenFailureRecorded(t *testing.T) {
	withOpenDevice(t, func(Config) (reader, io.Closer, error) {
		return nil, nil, errors.New("no such device")
	})
	s := New(Config{Enable: true}, orientation.New(orientation.Config{}))
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	snap := s.Snapshot()
	if snap.Detected || !strings.Contains(snap.LastError, "no such device") {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestNew_KeepsBusZero(t *testing.T) {
	bus := 0
	s := New(Config{I2CBus: &bus}, nil)
	if got := s.Snapshot().Bus; got != "/dev/i2c-0" {
		t.Fatalf("bus=%q", got)
	}
	if got := New(Config{}, nil).Snapshot().Bus; got != "/dev/i2c-1" {
		t.Fatalf("default bus=%q", got)
	}
}

func TestStart_PollsUntilClosed(t *testing.T) {
	dev := &scriptedReader{r: levelNorth()}
	closer := &closeCounter{}
	var got Config
	withOpenDevice(t, func(c Config) (reader, io.Closer, error) {
		got = c
		return dev, closer, nil
	})

	est := orientation.New(orientation.Config{})
	defer est.Close()
	s := New(Config{Enable: true, Interval: time.Millisecond}, est)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got.I2CBus == nil || *got.I2CBus != DefaultBus || got.Address != DefaultAddress || got.MagAddress != DefaultMagAddress {
		t.Fatalf("defaults not applied: %+v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Samples < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out; snapshot=%+v", s.Snapshot())
		}
		time.Sleep(time.Millisecond)
	}
	if !s.Snapshot().Detected {
		t.Fatalf("detected=false")
	}

	s.Close()
	s.Close()
	if n := closer.n.Load(); n != 1 {
		t.Fatalf("closer called %d times want 1", n)
	}
	if !est.Estimate().Determined {
		t.Fatalf("estimator never determined")
	}
}
