package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// AboutInfo names the components the daemon was started with.
type AboutInfo struct {
	RouteProvider string `json:"route_provider,omitempty"`
	FixSource     string `json:"fix_source,omitempty"`
	CompassSource string `json:"compass_source,omitempty"`
}

type AboutResponse struct {
	Service   string    `json:"service"`
	NowUTC    string    `json:"now_utc"`
	GoVersion string    `json:"go_version"`
	Build     BuildInfo `json:"build"`
	AboutInfo
}

type BuildInfo struct {
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
}

func readBuildInfo() BuildInfo {
	var out BuildInfo
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath = bi.Main.Path
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		}
	}
	return out
}

func AboutHandler(info AboutInfo) http.Handler {
	build := readBuildInfo()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, AboutResponse{
			Service:   "navcore",
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion: runtime.Version(),
			Build:     build,
			AboutInfo: info,
		})
	})
}
