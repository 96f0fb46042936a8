// Package web serves the navigation JSON API and a WebSocket snapshot stream.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"navcore/internal/geo"
	"navcore/internal/gps"
	"navcore/internal/imu"
	"navcore/internal/nav"
	"navcore/internal/orientation"
)

// Navigator is the route tracker as seen by the API. *nav.Tracker satisfies
// it.
type Navigator interface {
	State() nav.State
	Start(destination geo.Point) nav.State
	Plan(ctx context.Context, origin geo.Point) (nav.State, error)
	Stop() nav.State
	Subscribe(buffer int) (<-chan nav.State, func())
}

// Compass is the orientation estimator as seen by the API.
type Compass interface {
	Snapshot() orientation.Snapshot
	Subscribe(buffer int) (<-chan orientation.Estimate, func())
}

// GPSStatus reports receiver state. *gps.Service satisfies it.
type GPSStatus interface {
	Snapshot() gps.Snapshot
}

// IMUStatus reports the hardware compass source. *imu.Service satisfies it.
type IMUStatus interface {
	Snapshot() imu.Snapshot
}

// FOVConfig sets the visibility cone used by /api/fov.
type FOVConfig struct {
	FieldOfViewDeg float64
	RadiusM        float64
}

// Deps wires the API to the running components. Status and Nav are
// required; the rest may be nil.
type Deps struct {
	Status  *Status
	Nav     Navigator
	Compass Compass
	GPS     GPSStatus
	IMU     IMUStatus
	Logs    *LogBuffer
	FOV     FOVConfig
	About   AboutInfo

	// StreamInterval coalesces compass updates on /api/stream.
	StreamInterval time.Duration
	// PlanTimeout bounds route planning on /api/navigation/start.
	PlanTimeout time.Duration
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	if d.PlanTimeout <= 0 {
		d.PlanTimeout = 15 * time.Second
	}
	a := &api{Deps: d}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/route", a.handleRoute).Methods(http.MethodGet)
	r.HandleFunc("/api/navigation/start", a.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/navigation/stop", a.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/fov", a.handleFOV).Methods(http.MethodGet)
	r.HandleFunc("/api/stream", a.handleStream).Methods(http.MethodGet)
	r.Handle("/api/about", AboutHandler(d.About)).Methods(http.MethodGet)
	if d.Logs != nil {
		r.Handle("/api/logs", d.Logs.Handler()).Methods(http.MethodGet)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

type api struct {
	Deps
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Status.Snapshot(time.Now().UTC(), a.Deps))
}

func Serve(ctx context.Context, listenAddr string, d Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
		// No WriteTimeout: /api/stream connections are long-lived.
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
