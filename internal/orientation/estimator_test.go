package orientation

import (
	"errors"
	"sync"
	"testing"
)

func TestEstimator_StartsUndetermined(t *testing.T) {
	e := New(Config{})
	if got := e.Estimate(); got.Determined {
		t.Fatalf("expected undetermined, got %+v", got)
	}
	snap := e.Snapshot()
	if snap.Accelerometer != nil || snap.Magnetometer != nil || snap.Gyroscope != nil {
		t.Fatalf("expected no samples, got %+v", snap)
	}
}

func TestEstimator_MagnetometerAloneDoesNotDetermine(t *testing.T) {
	e := New(Config{})
	est, err := e.UpdateMagnetometer(Vector3{20, 0, 40})
	if err != nil {
		t.Fatalf("UpdateMagnetometer: %v", err)
	}
	if est.Determined {
		t.Fatalf("expected undetermined without accelerometer")
	}
}

func TestEstimator_UsesLatestFromEachStream(t *testing.T) {
	e := New(Config{})
	if _, err := e.UpdateMagnetometer(Vector3{0, 30, 35}); err != nil {
		t.Fatalf("UpdateMagnetometer: %v", err)
	}
	// Accelerometer arrives later and pairs with the stale magnetometer value.
	est, err := e.UpdateAccelerometer(Vector3{0, 0, 9.81})
	if err != nil {
		t.Fatalf("UpdateAccelerometer: %v", err)
	}
	if !est.Determined || !est.Calibrated {
		t.Fatalf("est=%+v", est)
	}
	if d := est.HeadingDeg - 90; d > 1e-9 || d < -1e-9 {
		t.Fatalf("heading=%v want 90", est.HeadingDeg)
	}

	est, err = e.UpdateMagnetometer(Vector3{30, 0, 35})
	if err != nil {
		t.Fatalf("UpdateMagnetometer: %v", err)
	}
	if est.HeadingDeg > 1e-9 {
		t.Fatalf("heading=%v want 0", est.HeadingDeg)
	}
}

func TestEstimator_AccelerometerBeforeMagnetometerIsUncalibrated(t *testing.T) {
	e := New(Config{})
	est, err := e.UpdateAccelerometer(Vector3{0, 0, 9.81})
	if err != nil {
		t.Fatalf("UpdateAccelerometer: %v", err)
	}
	if !est.Determined || est.Calibrated || est.Accuracy != 0.1 {
		t.Fatalf("est=%+v", est)
	}
}

func TestEstimator_InvalidSampleKeepsPreviousEstimate(t *testing.T) {
	e := New(Config{})
	_, _ = e.UpdateMagnetometer(Vector3{0, 30, 35})
	good, err := e.UpdateAccelerometer(Vector3{0, 0, 9.81})
	if err != nil {
		t.Fatalf("UpdateAccelerometer: %v", err)
	}

	got, err := e.UpdateAccelerometer(Vector3{})
	var ise *InvalidSampleError
	if !errors.As(err, &ise) {
		t.Fatalf("err=%v want *InvalidSampleError", err)
	}
	if got != good {
		t.Fatalf("got=%+v want previous %+v", got, good)
	}
	snap := e.Snapshot()
	if snap.InvalidSamples != 1 {
		t.Fatalf("invalid_samples=%d want 1", snap.InvalidSamples)
	}
	if snap.LastError == "" {
		t.Fatalf("expected last error")
	}

	// Recovery clears the error.
	if _, err := e.UpdateAccelerometer(Vector3{0, 0, 9.81}); err != nil {
		t.Fatalf("UpdateAccelerometer: %v", err)
	}
	if e.Snapshot().LastError != "" {
		t.Fatalf("expected error cleared")
	}
}

func TestEstimator_GyroscopeRetainedOnly(t *testing.T) {
	e := New(Config{})
	est := e.UpdateGyroscope(Vector3{0.1, 0.2, 0.3})
	if est.Determined {
		t.Fatalf("gyro must not determine heading")
	}
	snap := e.Snapshot()
	if snap.Gyroscope == nil || *snap.Gyroscope != (Vector3{0.1, 0.2, 0.3}) {
		t.Fatalf("gyro=%v", snap.Gyroscope)
	}
}

func TestEstimator_SmoothedHeading(t *testing.T) {
	e := New(Config{SmoothingFactor: 0.5})
	_, _ = e.UpdateMagnetometer(Vector3{30, 0, 35})
	_, _ = e.UpdateAccelerometer(Vector3{0, 0, 9.81})
	if s := e.Snapshot().SmoothedHeadingDeg; s > 1e-9 {
		t.Fatalf("first smoothed=%v want 0", s)
	}
	_, _ = e.UpdateMagnetometer(Vector3{0, 30, 35})
	if s := e.Snapshot().SmoothedHeadingDeg; s < 45-1e-9 || s > 45+1e-9 {
		t.Fatalf("smoothed=%v want 45", s)
	}
}

func TestEstimator_SubscribeDeliversEstimates(t *testing.T) {
	e := New(Config{})
	ch, cancel := e.Subscribe(4)
	defer cancel()
	_, _ = e.UpdateMagnetometer(Vector3{20, 0, 40})
	_, _ = e.UpdateAccelerometer(Vector3{0, 0, 9.81})
	select {
	case est := <-ch:
		if !est.Determined {
			t.Fatalf("est=%+v", est)
		}
	default:
		t.Fatalf("expected estimate on subscription")
	}
}

func TestEstimator_ConcurrentStreams(t *testing.T) {
	e := New(Config{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = e.UpdateAccelerometer(Vector3{0, 0, 9.81})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = e.UpdateMagnetometer(Vector3{20, 0, 40})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			e.UpdateGyroscope(Vector3{1, 1, 1})
			_ = e.Snapshot()
		}
	}()
	wg.Wait()
	snap := e.Snapshot()
	if snap.Samples != 1500 {
		t.Fatalf("samples=%d want 1500", snap.Samples)
	}
	if !snap.Estimate.Calibrated {
		t.Fatalf("expected calibrated final estimate, got %+v", snap.Estimate)
	}
}
