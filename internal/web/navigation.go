package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"navcore/internal/fov"
	"navcore/internal/geo"
)

const maxBodyBytes = 64 << 10

// startRequest is the strict POST /api/navigation/start schema. Both fields
// are required.
type startRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func decodeStartRequest(body []byte) (geo.Point, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var req startRequest
	if err := dec.Decode(&req); err != nil {
		return geo.Point{}, fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return geo.Point{}, fmt.Errorf("invalid json: trailing data")
	}
	if req.Lat == nil || req.Lon == nil {
		return geo.Point{}, fmt.Errorf("lat and lon are required")
	}
	return validLatLon(*req.Lat, *req.Lon)
}

func validLatLon(lat, lon float64) (geo.Point, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return geo.Point{}, fmt.Errorf("lat must be within [-90,90]")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return geo.Point{}, fmt.Errorf("lon must be within [-180,180]")
	}
	return geo.LatLon(lat, lon), nil
}

type startResponse struct {
	Navigation NavigationView `json:"navigation"`
	// PlanError is set when a fix was available but routing failed; the
	// session stays active and planning is retried on the next fix.
	PlanError string `json:"plan_error,omitempty"`
}

func (a *api) handleStart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read failed")
		return
	}
	dest, err := decodeStartRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := a.Nav.Start(dest)
	var resp startResponse
	pos, havePos := a.Status.Position()
	if havePos {
		ctx, cancel := context.WithTimeout(r.Context(), a.PlanTimeout)
		defer cancel()
		planned, perr := a.Nav.Plan(ctx, pos)
		if perr != nil {
			resp.PlanError = perr.Error()
		} else {
			st = planned
		}
	}
	var posPtr *geo.Point
	if havePos {
		posPtr = &pos
	}
	resp.Navigation = navigationView(st, posPtr)
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleStop(w http.ResponseWriter, r *http.Request) {
	st := a.Nav.Stop()
	writeJSON(w, http.StatusOK, navigationView(st, nil))
}

func (a *api) handleRoute(w http.ResponseWriter, r *http.Request) {
	fc := a.Nav.State().Route.GeoJSON()
	b, err := json.Marshal(fc)
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

type fovResponse struct {
	Visible        bool      `json:"visible"`
	Target         geo.Point `json:"target"`
	Center         geo.Point `json:"center"`
	DistanceM      float64   `json:"distance_m"`
	Distance       string    `json:"distance"`
	BearingDeg     float64   `json:"bearing_deg"`
	HeadingDeg     float64   `json:"heading_deg"`
	HeadingSource  string    `json:"heading_source"`
	FieldOfViewDeg float64   `json:"field_of_view_deg"`
	RadiusM        float64   `json:"radius_m"`
}

// heading prefers the smoothed compass heading and falls back to the fix's
// course over ground.
func (a *api) heading(pos geo.Point) (float64, string, bool) {
	if a.Compass != nil {
		if snap := a.Compass.Snapshot(); snap.Estimate.Determined {
			return snap.SmoothedHeadingDeg, "compass", true
		}
	}
	if pos.HeadingDeg != nil {
		return *pos.HeadingDeg, "course", true
	}
	return 0, "", false
}

func (a *api) handleFOV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lon query parameters are required")
		return
	}
	target, err := validLatLon(lat, lon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts []fov.Option
	if a.FOV.FieldOfViewDeg > 0 {
		opts = append(opts, fov.WithFieldOfView(a.FOV.FieldOfViewDeg))
	}
	if a.FOV.RadiusM > 0 {
		opts = append(opts, fov.WithRadius(a.FOV.RadiusM))
	}
	if s := q.Get("radius_m"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !(v > 0) {
			writeError(w, http.StatusBadRequest, "radius_m must be > 0")
			return
		}
		opts = append(opts, fov.WithRadius(v))
	}

	pos, ok := a.Status.Position()
	if !ok {
		writeError(w, http.StatusConflict, "no position fix")
		return
	}
	heading, source, ok := a.heading(pos)
	if !ok {
		writeError(w, http.StatusConflict, "no heading")
		return
	}

	cone := fov.NewCone(pos, heading, opts...)
	d := geo.Distance(pos, target)
	writeJSON(w, http.StatusOK, fovResponse{
		Visible:        cone.Contains(target),
		Target:         target,
		Center:         pos,
		DistanceM:      d,
		Distance:       geo.FormatDistance(d),
		BearingDeg:     geo.Bearing(pos, target),
		HeadingDeg:     cone.HeadingDeg,
		HeadingSource:  source,
		FieldOfViewDeg: cone.FieldOfViewDeg(),
		RadiusM:        cone.RadiusM,
	})
}
