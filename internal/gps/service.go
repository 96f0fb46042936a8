package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"navcore/internal/broadcast"
	"navcore/internal/geo"
)

const (
	SourceNMEA = "nmea"
	SourceGPSD = "gpsd"

	defaultBaud = 9600
)

// Config controls the GPS reader. Device may be empty to auto-detect a USB
// serial port.
type Config struct {
	Enable bool

	// Source is SourceNMEA (direct serial, the default) or SourceGPSD.
	Source string

	// GPSDAddr is host:port for gpsd.
	GPSDAddr string

	Device string
	Baud   int
}

func (c Config) source() string {
	src := strings.ToLower(strings.TrimSpace(c.Source))
	if src == "" {
		return SourceNMEA
	}
	return src
}

// Snapshot is the service status plus the latest fix, if any.
type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	Fix        *geo.Point `json:"fix,omitempty"`
	FixSeq     uint64     `json:"fix_seq"`
	FixQuality *int       `json:"fix_quality,omitempty"`
	FixMode    *int       `json:"fix_mode,omitempty"`
	Satellites *int       `json:"satellites,omitempty"`
	HDOP       *float64   `json:"hdop,omitempty"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last  atomic.Value // Snapshot
	seq   atomic.Uint64
	fixes *broadcast.Broadcaster[geo.Point]

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config) *Service {
	s := &Service{cfg: cfg, fixes: broadcast.New[geo.Point]()}
	s.last.Store(Snapshot{
		Enabled:  cfg.Enable,
		Source:   cfg.source(),
		GPSDAddr: strings.TrimSpace(cfg.GPSDAddr),
		Device:   cfg.Device,
		Baud:     cfg.Baud,
	})
	return s
}

// Fixes streams every position fix. The latest fix, if any, is delivered
// immediately. Call the returned func to unsubscribe.
func (s *Service) Fixes(buffer int) (<-chan geo.Point, func()) {
	return s.fixes.Subscribe(buffer)
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	switch src := s.cfg.source(); src {
	case SourceGPSD:
		return s.startGPSDLocked(ctx)
	case SourceNMEA:
		return s.startNMEALocked(ctx)
	default:
		return fmt.Errorf("gps: unknown source %q", src)
	}
}

func (s *Service) startNMEALocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no USB serial port found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}
	baud := s.cfg.Baud
	if baud == 0 {
		baud = defaultBaud
	}

	f, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return err
	}
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	base := Snapshot{Enabled: true, Source: SourceNMEA, Device: device, Baud: baud}
	s.last.Store(base)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = f.Close() }()

		log.Printf("gps enabled source=nmea device=%s baud=%d", device, baud)
		err := s.readNMEA(childCtx, f, base)
		s.setError(fmt.Sprintf("gps read stopped: %v", err))
	}()
	return nil
}

// readNMEA consumes sentences from r until ctx ends or r fails. Lines that
// are not NMEA are skipped; checksum failures are recorded but not fatal.
func (s *Service) readNMEA(ctx context.Context, r io.Reader, base Snapshot) error {
	var st nmeaState
	// Sentences are under 82 chars; allow some headroom.
	return scanLines(ctx, r, 4096, func(line string) {
		if !strings.HasPrefix(line, "$") {
			return
		}
		sent, err := parseNMEASentence(line)
		if err != nil {
			s.setError(err.Error())
			return
		}
		if st.apply(time.Now().UTC(), sent) {
			s.publishFix(&st.fixState, base)
		}
	})
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	base := Snapshot{Enabled: true, Source: SourceGPSD, GPSDAddr: addr, Device: "gpsd"}
	s.last.Store(base)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=gpsd addr=%s", addr)
		const minBackoff, maxBackoff = 250 * time.Millisecond, 10 * time.Second
		backoff := minBackoff
		// One state across reconnects so a brief gpsd restart keeps the fix.
		var st gpsdState

		for {
			if childCtx.Err() != nil {
				return
			}

			conn, err := dialGPSD(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				select {
				case <-childCtx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff *= 2; backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = minBackoff

			s.mu.Lock()
			// Swap the closer so Close() can interrupt an active connection.
			s.closer = conn
			s.mu.Unlock()
			stop := context.AfterFunc(childCtx, func() { _ = conn.Close() })

			if err := gpsdWatch(conn); err != nil {
				s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
				stop()
				_ = conn.Close()
				continue
			}
			err = scanLines(childCtx, conn, 256*1024, func(line string) {
				fixed, perr := st.applyLine(time.Now().UTC(), line)
				if perr != nil {
					s.setError(perr.Error())
					return
				}
				if fixed {
					s.publishFix(&st.fixState, base)
				}
			})
			stop()
			_ = conn.Close()
			s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
		}
	}()
	return nil
}

// scanLines feeds each non-empty trimmed line of r to fn. It returns the
// read error, io.EOF on a clean end, or ctx.Err() when cancelled.
func scanLines(ctx context.Context, r io.Reader, maxLine int, fn func(line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256), maxLine)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
}

func (s *Service) publishFix(st *fixState, base Snapshot) {
	snap := base
	st.fill(&snap)
	snap.FixSeq = s.seq.Add(1)
	s.mu.Lock()
	snap.LastError = s.Snapshot().LastError
	s.last.Store(snap)
	s.mu.Unlock()
	if snap.Fix != nil {
		s.fixes.Publish(*snap.Fix)
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
	s.fixes.Close()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

// setErrorLocked records msg without touching Valid; transient parse errors
// should not drop the fix.
func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	s.last.Store(cur)
}
