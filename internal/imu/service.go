// Package imu polls an ICM-20948 and feeds its samples to the compass.
package imu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"navcore/internal/i2c"
	"navcore/internal/orientation"
)

const (
	defaultInterval = 20 * time.Millisecond
	DefaultBus      = 1
)

type Config struct {
	Enable bool
	// I2CBus selects /dev/i2c-N. Nil means DefaultBus.
	I2CBus     *int
	Address    uint16
	MagAddress uint16
	// Interval is the poll period.
	Interval time.Duration
}

// Sink receives samples. *orientation.Estimator satisfies it.
type Sink interface {
	UpdateAccelerometer(orientation.Vector3) (orientation.Estimate, error)
	UpdateMagnetometer(orientation.Vector3) (orientation.Estimate, error)
	UpdateGyroscope(orientation.Vector3) orientation.Estimate
}

type Snapshot struct {
	Enabled  bool   `json:"enabled"`
	Detected bool   `json:"detected"`
	Bus      string `json:"bus,omitempty"`
	Address  string `json:"address,omitempty"`

	Samples    uint64 `json:"samples"`
	MagSamples uint64 `json:"mag_samples"`

	LastSampleUTC string `json:"last_sample_utc,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

type reader interface {
	Read() (Reading, error)
}

// openDevice is replaced in tests.
var openDevice = func(cfg Config) (reader, io.Closer, error) {
	bus, err := i2c.OpenNumber(*cfg.I2CBus)
	if err != nil {
		return nil, nil, err
	}
	dev, err := NewICM20948(bus.Dev(cfg.Address), bus.Dev(cfg.MagAddress))
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return dev, bus, nil
}

type Service struct {
	cfg  Config
	sink Sink

	mu     sync.Mutex
	snap   Snapshot
	cancel context.CancelFunc
	closer io.Closer
	wg     sync.WaitGroup
}

func New(cfg Config, sink Sink) *Service {
	if cfg.I2CBus == nil {
		bus := DefaultBus
		cfg.I2CBus = &bus
	}
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.MagAddress == 0 {
		cfg.MagAddress = DefaultMagAddress
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Service{
		cfg:  cfg,
		sink: sink,
		snap: Snapshot{
			Enabled: cfg.Enable,
			Bus:     fmt.Sprintf("/dev/i2c-%d", *cfg.I2CBus),
			Address: fmt.Sprintf("0x%02X", cfg.Address),
		},
	}
}

// Start detects the sensor and begins polling. A disabled service is a
// no-op.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("imu service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if s.sink == nil {
		return fmt.Errorf("imu: sink is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	dev, closer, err := openDevice(s.cfg)
	if err != nil {
		s.snap.LastError = fmt.Sprintf("imu init failed: %v", err)
		return err
	}
	s.snap.Detected = true
	s.closer = closer

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	log.Printf("imu enabled bus=%s addr=%s interval=%s", s.snap.Bus, s.snap.Address, s.cfg.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx, dev)
	}()
	return nil
}

func (s *Service) run(ctx context.Context, dev reader) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	var lastLogged string
	for {
		if err := s.poll(dev); err != nil {
			// Log each distinct failure once; the snapshot keeps the latest.
			if msg := err.Error(); msg != lastLogged {
				log.Printf("imu poll failed: %v", err)
				lastLogged = msg
			}
		} else {
			lastLogged = ""
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// poll reads one sample and forwards it to the sink. Sink rejections are
// returned but do not stop polling.
func (s *Service) poll(dev reader) error {
	r, err := dev.Read()
	if err != nil {
		s.setError(err.Error())
		return err
	}

	s.sink.UpdateGyroscope(r.Gyro)
	_, aerr := s.sink.UpdateAccelerometer(r.Accel)
	var merr error
	if r.MagOK {
		_, merr = s.sink.UpdateMagnetometer(r.Mag)
	}

	s.mu.Lock()
	s.snap.Samples++
	if r.MagOK {
		s.snap.MagSamples++
	}
	s.snap.LastSampleUTC = r.Time.UTC().Format(time.RFC3339Nano)
	s.mu.Unlock()

	if err := errors.Join(aerr, merr); err != nil {
		s.setError(err.Error())
		return err
	}
	return nil
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel, closer := s.cancel, s.closer
	s.cancel, s.closer = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	if closer != nil {
		_ = closer.Close()
	}
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	s.snap.LastError = msg
	s.mu.Unlock()
}
