package route

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"navcore/internal/geo"
)

func TestLinearProvider_Shape(t *testing.T) {
	origin := geo.LatLon(45.0, -122.0)
	dest := geo.LatLon(45.1, -121.9)
	r, err := LinearProvider{}.Route(context.Background(), origin, dest)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(r) != DefaultLinearSteps+1 {
		t.Fatalf("len=%d want %d", len(r), DefaultLinearSteps+1)
	}
	if r[0].Instruction != InstructionStart {
		t.Fatalf("first instruction=%q", r[0].Instruction)
	}
	if r[len(r)-1].Instruction != InstructionArrive {
		t.Fatalf("last instruction=%q", r[len(r)-1].Instruction)
	}
	if r[1].Instruction != "Keep left" || r[7].Instruction != "Continue straight" {
		t.Fatalf("cycling instructions wrong: %q %q", r[1].Instruction, r[7].Instruction)
	}
	if r[0].Point.Lat != origin.Lat || r[0].Point.Lon != origin.Lon {
		t.Fatalf("first point=%+v", r[0].Point)
	}
	last := r[len(r)-1]
	if math.Abs(last.Point.Lat-dest.Lat) > 1e-12 || math.Abs(last.Point.Lon-dest.Lon) > 1e-12 {
		t.Fatalf("last point=%+v", last.Point)
	}
	if last.DistanceToDestinationM > 1e-6 {
		t.Fatalf("last remaining=%v want 0", last.DistanceToDestinationM)
	}
	for i, s := range r {
		if want := geo.Distance(s.Point, dest); s.DistanceToDestinationM != want {
			t.Fatalf("step %d remaining=%v want %v", i, s.DistanceToDestinationM, want)
		}
		if i+1 < len(r) {
			if want := geo.Bearing(s.Point, dest); s.HeadingDeg != want {
				t.Fatalf("step %d heading=%v want %v", i, s.HeadingDeg, want)
			}
			if r[i+1].DistanceToDestinationM >= s.DistanceToDestinationM {
				t.Fatalf("remaining distance not decreasing at %d", i)
			}
		}
	}
}

func TestLinearProvider_CustomSteps(t *testing.T) {
	r, err := LinearProvider{Steps: 3}.Route(context.Background(), geo.LatLon(0, 0), geo.LatLon(0, 3))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(r) != 4 {
		t.Fatalf("len=%d want 4", len(r))
	}
}

func TestLinearProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (LinearProvider{}).Route(ctx, geo.LatLon(0, 0), geo.LatLon(1, 1)); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestTotalDistance(t *testing.T) {
	r := FromPoints([]geo.Point{geo.LatLon(0, 0), geo.LatLon(0, 1), geo.LatLon(1, 1)}, geo.LatLon(1, 1))
	want := geo.Distance(geo.LatLon(0, 0), geo.LatLon(0, 1)) + geo.Distance(geo.LatLon(0, 1), geo.LatLon(1, 1))
	if got := r.TotalDistance(); got != want {
		t.Fatalf("got=%v want=%v", got, want)
	}
	if got := (Route{}).TotalDistance(); got != 0 {
		t.Fatalf("empty route distance=%v", got)
	}
	if got := r[:1].TotalDistance(); got != 0 {
		t.Fatalf("single step distance=%v", got)
	}
}

func TestClone_IsIndependent(t *testing.T) {
	r := FromPoints([]geo.Point{geo.LatLon(0, 0), geo.LatLon(0, 1)}, geo.LatLon(0, 1))
	c := r.Clone()
	c[0].Instruction = "changed"
	if r[0].Instruction == "changed" {
		t.Fatalf("clone shares storage")
	}
}

func TestGeoJSON(t *testing.T) {
	r, _ := LinearProvider{Steps: 2}.Route(context.Background(), geo.LatLon(10, 20), geo.LatLon(10.2, 20.2))
	fc := r.GeoJSON()
	if len(fc.Features) != 4 {
		t.Fatalf("features=%d want 4", len(fc.Features))
	}
	if fc.Features[0].Geometry.GeoJSONType() != "LineString" {
		t.Fatalf("first geometry=%s", fc.Features[0].Geometry.GeoJSONType())
	}
	b, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"FeatureCollection"`) || !strings.Contains(s, InstructionArrive) {
		t.Fatalf("unexpected geojson: %s", s)
	}
	// GeoJSON is lon,lat.
	if !strings.Contains(s, "[20,10]") {
		t.Fatalf("expected lon,lat ordering: %s", s)
	}
}

func TestGeoJSON_Empty(t *testing.T) {
	if fc := (Route{}).GeoJSON(); len(fc.Features) != 0 {
		t.Fatalf("features=%d want 0", len(fc.Features))
	}
}

func TestOSRMProvider(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"Ok","routes":[{"distance":1500,"duration":120,"geometry":{"type":"LineString","coordinates":[[-122.0,45.0],[-121.99,45.005],[-121.98,45.01]]}}]}`))
	}))
	defer srv.Close()

	p := OSRMProvider{BaseURL: srv.URL + "/"}
	r, err := p.Route(context.Background(), geo.LatLon(45.0, -122.0), geo.LatLon(45.01, -121.98))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if gotPath != "/route/v1/driving/-122.000000,45.000000;-121.980000,45.010000" {
		t.Fatalf("path=%q", gotPath)
	}
	if len(r) != 3 {
		t.Fatalf("len=%d want 3", len(r))
	}
	if r[1].Point.Lat != 45.005 || r[1].Point.Lon != -121.99 {
		t.Fatalf("step 1=%+v", r[1].Point)
	}
	if r[2].Instruction != InstructionArrive {
		t.Fatalf("last instruction=%q", r[2].Instruction)
	}
}

func TestOSRMProvider_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"HTTPStatus", http.StatusBadGateway, `{}`},
		{"NoRoute", http.StatusOK, `{"code":"NoRoute","message":"Impossible route","routes":[]}`},
		{"NoRoutes", http.StatusOK, `{"code":"Ok","routes":[]}`},
		{"BadJSON", http.StatusOK, `not json`},
		{"UntypedGeometry", http.StatusOK, `{"code":"Ok","routes":[{"geometry":{"coordinates":[[1,2]]}}]}`},
		{"PointGeometry", http.StatusOK, `{"code":"Ok","routes":[{"geometry":{"type":"Point","coordinates":[1,2]}}]}`},
		{"EmptyLine", http.StatusOK, `{"code":"Ok","routes":[{"geometry":{"type":"LineString","coordinates":[]}}]}`},
		{"NoGeometry", http.StatusOK, `{"code":"Ok","routes":[{"distance":10}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			if _, err := (OSRMProvider{BaseURL: srv.URL}).Route(context.Background(), geo.LatLon(0, 0), geo.LatLon(1, 1)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestOSRMProvider_RequiresBaseURL(t *testing.T) {
	if _, err := (OSRMProvider{}).Route(context.Background(), geo.LatLon(0, 0), geo.LatLon(1, 1)); err == nil {
		t.Fatalf("expected error")
	}
}
