package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_EmptyFileGetsDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Web.Listen != ":8080" || cfg.Web.StreamInterval != 250*time.Millisecond {
		t.Fatalf("web=%+v", cfg.Web)
	}
	if cfg.GPS.Enable || cfg.GPS.Source != "nmea" || cfg.GPS.Baud != 9600 {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.Nav.Provider != ProviderLinear || cfg.Nav.LinearSteps != 10 || cfg.Nav.AverageSpeedMPS != 8.33 {
		t.Fatalf("nav=%+v", cfg.Nav)
	}
	if cfg.Nav.OSRM.Profile != "driving" || cfg.Nav.OSRM.Timeout != 10*time.Second {
		t.Fatalf("osrm=%+v", cfg.Nav.OSRM)
	}
	if cfg.Orientation.SmoothingFactor != 0.1 {
		t.Fatalf("smoothing=%v", cfg.Orientation.SmoothingFactor)
	}
	if cfg.FOV.FieldOfViewDeg != 60 || cfg.FOV.RadiusM != 100 {
		t.Fatalf("fov=%+v", cfg.FOV)
	}
	if cfg.Sim.Interval != 100*time.Millisecond {
		t.Fatalf("sim interval=%s", cfg.Sim.Interval)
	}
	if cfg.IMU.Enable || cfg.IMU.I2CBus == nil || *cfg.IMU.I2CBus != 1 || cfg.IMU.Address != 0x68 || cfg.IMU.MagAddress != 0x0C || cfg.IMU.Interval != 20*time.Millisecond {
		t.Fatalf("imu=%+v", cfg.IMU)
	}
}

func TestLoad_UDPSection(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "udp:\n  targets: [\"192.168.10.255:4000\", \"10.0.0.2:4000\"]\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.UDP.Targets) != 2 || cfg.UDP.Targets[0] != "192.168.10.255:4000" || cfg.UDP.Interval != time.Second {
		t.Fatalf("udp=%+v", cfg.UDP)
	}
}

func TestLoad_IMUSection(t *testing.T) {
	body := `
imu:
  enable: true
  i2c_bus: 3
  address: 0x69
  interval: 50ms
`
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.IMU.Enable || cfg.IMU.I2CBus == nil || *cfg.IMU.I2CBus != 3 || cfg.IMU.Address != 0x69 || cfg.IMU.MagAddress != 0x0C || cfg.IMU.Interval != 50*time.Millisecond {
		t.Fatalf("imu=%+v", cfg.IMU)
	}
}

func TestLoad_IMUBusZeroKept(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "imu:\n  i2c_bus: 0\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.IMU.I2CBus == nil || *cfg.IMU.I2CBus != 0 {
		t.Fatalf("i2c_bus=%v want 0", cfg.IMU.I2CBus)
	}
}

func TestLoad_FullDocument(t *testing.T) {
	body := `
web:
  listen: "127.0.0.1:9000"
  stream_interval: 1s
gps:
  enable: true
  source: GPSD
nav:
  provider: osrm
  average_speed_mps: 1.4
  osrm:
    url: "http://router.example:5000"
    profile: foot
    timeout: 3s
orientation:
  smoothing_factor: 0.5
fov:
  field_of_view_deg: 90
  radius_m: 250
`
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "gpsd" || cfg.GPS.GPSDAddr != "127.0.0.1:2947" {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.Nav.Provider != ProviderOSRM || cfg.Nav.OSRM.Profile != "foot" || cfg.Nav.OSRM.Timeout != 3*time.Second {
		t.Fatalf("nav=%+v", cfg.Nav)
	}
	if cfg.Web.StreamInterval != time.Second || cfg.FOV.RadiusM != 250 || cfg.Orientation.SmoothingFactor != 0.5 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"GPSSource", "gps:\n  source: usb\n", "gps.source must be 'nmea' or 'gpsd'"},
		{"NegativeBaud", "gps:\n  baud: -1\n", "gps.baud must be > 0"},
		{"Provider", "nav:\n  provider: magic\n", "nav.provider must be 'linear' or 'osrm'"},
		{"OSRMNeedsURL", "nav:\n  provider: osrm\n", "nav.osrm.url is required when nav.provider is 'osrm'"},
		{"NegativeSpeed", "nav:\n  average_speed_mps: -2\n", "nav.average_speed_mps must be > 0"},
		{"NegativeSteps", "nav:\n  linear_steps: -2\n", "nav.linear_steps must be > 0"},
		{"Smoothing", "orientation:\n  smoothing_factor: 1.5\n", "orientation.smoothing_factor must be within [0,1]"},
		{"FOV", "fov:\n  field_of_view_deg: 400\n", "fov.field_of_view_deg must be within (0,360]"},
		{"Radius", "fov:\n  radius_m: -1\n", "fov.radius_m must be > 0"},
		{"SimNeedsScenario", "sim:\n  enable: true\n", "sim.scenario is required when sim.enable is true"},
		{"IMUBus", "imu:\n  i2c_bus: -1\n", "imu.i2c_bus must be >= 0"},
		{"IMUAddress", "imu:\n  address: 200\n", "imu addresses must be 7-bit"},
		{"UDPBlankTarget", "udp:\n  targets: [\"\"]\n", "udp.targets entries must be host:port"},
		{"SimAndIMU", "imu:\n  enable: true\nsim:\n  enable: true\n  scenario: ./walk.yaml\n", "sim.enable and imu.enable cannot both be true"},
		{"SimAndGPS", "gps:\n  enable: true\nsim:\n  enable: true\n  scenario: ./walk.yaml\n", "sim.enable and gps.enable cannot both be true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := Load(writeTempConfig(t, "nav:\n  provider: linear\n  mode: fast\n"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.HasPrefix(err.Error(), "config contains unknown fields:") || !strings.Contains(err.Error(), "field mode not found") {
		t.Fatalf("error=%q", err.Error())
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "web: [\n")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_BundledConfig(t *testing.T) {
	cfg, err := Load("../../configs/navcore.yaml")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Sim.Enable || cfg.Sim.Scenario == "" || cfg.GPS.Enable || cfg.IMU.Enable {
		t.Fatalf("bundled config should run the simulator only: %+v", cfg)
	}
	if cfg.Nav.AverageSpeedMPS != 1.4 || len(cfg.UDP.Targets) != 0 {
		t.Fatalf("nav=%+v udp=%+v", cfg.Nav, cfg.UDP)
	}
}
