package route

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"navcore/internal/geo"
)

// OSRMProvider asks an OSRM server for a road-following geometry and turns
// its vertices into route steps.
type OSRMProvider struct {
	// BaseURL is the server root, e.g. "http://router.project-osrm.org".
	BaseURL string
	// Profile defaults to "driving".
	Profile string
	Client  *http.Client
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64           `json:"distance"`
		Duration float64           `json:"duration"`
		Geometry *geojson.Geometry `json:"geometry"`
	} `json:"routes"`
}

func (p OSRMProvider) Route(ctx context.Context, origin, destination geo.Point) (Route, error) {
	base := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("osrm: base url is empty")
	}
	profile := strings.TrimSpace(p.Profile)
	if profile == "" {
		profile = "driving"
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// OSRM takes lon,lat order.
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		base, profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("osrm: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("osrm: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm: status %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("osrm: decode: %w", err)
	}
	if parsed.Code != "" && parsed.Code != "Ok" {
		return nil, fmt.Errorf("osrm: %s: %s", parsed.Code, parsed.Message)
	}
	if len(parsed.Routes) == 0 {
		return nil, fmt.Errorf("osrm: no routes")
	}

	g := parsed.Routes[0].Geometry
	if g == nil {
		return nil, fmt.Errorf("osrm: route has no geometry")
	}
	line, ok := g.Coordinates.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("osrm: geometry is %s, want LineString", g.Type)
	}
	pts := make([]geo.Point, 0, len(line))
	for _, c := range line {
		pts = append(pts, geo.LatLon(c.Lat(), c.Lon()))
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("osrm: empty geometry")
	}
	return FromPoints(pts, geo.LatLon(destination.Lat, destination.Lon)), nil
}
