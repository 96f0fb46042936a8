// Package config loads the daemon's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Web         WebConfig         `yaml:"web"`
	GPS         GPSConfig         `yaml:"gps"`
	Nav         NavConfig         `yaml:"nav"`
	Orientation OrientationConfig `yaml:"orientation"`
	FOV         FOVConfig         `yaml:"fov"`
	IMU         IMUConfig         `yaml:"imu"`
	UDP         UDPConfig         `yaml:"udp"`
	Sim         SimConfig         `yaml:"sim"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
	// StreamInterval rate-limits WebSocket snapshots.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

type GPSConfig struct {
	Enable   bool   `yaml:"enable"`
	Source   string `yaml:"source"`
	GPSDAddr string `yaml:"gpsd_addr"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
}

type NavConfig struct {
	AverageSpeedMPS float64    `yaml:"average_speed_mps"`
	Provider        string     `yaml:"provider"`
	LinearSteps     int        `yaml:"linear_steps"`
	OSRM            OSRMConfig `yaml:"osrm"`
}

type OSRMConfig struct {
	URL     string        `yaml:"url"`
	Profile string        `yaml:"profile"`
	Timeout time.Duration `yaml:"timeout"`
}

type OrientationConfig struct {
	SmoothingFactor float64 `yaml:"smoothing_factor"`
}

type FOVConfig struct {
	FieldOfViewDeg float64 `yaml:"field_of_view_deg"`
	RadiusM        float64 `yaml:"radius_m"`
}

// IMUConfig selects an ICM-20948 on a Linux I2C bus as the compass source.
type IMUConfig struct {
	Enable bool `yaml:"enable"`
	// I2CBus selects /dev/i2c-N. Unset means bus 1.
	I2CBus     *int          `yaml:"i2c_bus"`
	Address    uint16        `yaml:"address"`
	MagAddress uint16        `yaml:"mag_address"`
	Interval   time.Duration `yaml:"interval"`
}

// UDPConfig pushes periodic JSON navigation frames to LAN listeners.
type UDPConfig struct {
	Targets  []string      `yaml:"targets"`
	Interval time.Duration `yaml:"interval"`
}

type SimConfig struct {
	Enable   bool          `yaml:"enable"`
	Scenario string        `yaml:"scenario"`
	Interval time.Duration `yaml:"interval"`
	Loop     bool          `yaml:"loop"`
}

const (
	ProviderLinear = "linear"
	ProviderOSRM   = "osrm"

	imuDefaultBus = 1
)

var lineRE = regexp.MustCompile(`^line \d+: `)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes and validates a config document. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && len(te.Errors) > 0 && strings.Contains(te.Errors[0], "not found in type") {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", lineRE.ReplaceAllString(te.Errors[0], ""))
		}
		return Config{}, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.StreamInterval <= 0 {
		cfg.Web.StreamInterval = 250 * time.Millisecond
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	switch cfg.GPS.Source {
	case "":
		cfg.GPS.Source = "nmea"
	case "nmea", "gpsd":
	default:
		return fmt.Errorf("gps.source must be 'nmea' or 'gpsd'")
	}
	if cfg.GPS.Baud < 0 {
		return fmt.Errorf("gps.baud must be > 0")
	}
	if cfg.GPS.Source == "nmea" && cfg.GPS.Baud == 0 {
		cfg.GPS.Baud = 9600
	}
	if cfg.GPS.Source == "gpsd" && cfg.GPS.GPSDAddr == "" {
		cfg.GPS.GPSDAddr = "127.0.0.1:2947"
	}

	if cfg.Nav.AverageSpeedMPS < 0 {
		return fmt.Errorf("nav.average_speed_mps must be > 0")
	}
	if cfg.Nav.AverageSpeedMPS == 0 {
		cfg.Nav.AverageSpeedMPS = 8.33
	}
	cfg.Nav.Provider = strings.ToLower(strings.TrimSpace(cfg.Nav.Provider))
	switch cfg.Nav.Provider {
	case "":
		cfg.Nav.Provider = ProviderLinear
	case ProviderLinear:
	case ProviderOSRM:
		if cfg.Nav.OSRM.URL == "" {
			return fmt.Errorf("nav.osrm.url is required when nav.provider is 'osrm'")
		}
	default:
		return fmt.Errorf("nav.provider must be 'linear' or 'osrm'")
	}
	if cfg.Nav.LinearSteps < 0 {
		return fmt.Errorf("nav.linear_steps must be > 0")
	}
	if cfg.Nav.LinearSteps == 0 {
		cfg.Nav.LinearSteps = 10
	}
	if cfg.Nav.OSRM.Profile == "" {
		cfg.Nav.OSRM.Profile = "driving"
	}
	if cfg.Nav.OSRM.Timeout <= 0 {
		cfg.Nav.OSRM.Timeout = 10 * time.Second
	}

	if f := cfg.Orientation.SmoothingFactor; f < 0 || f > 1 {
		return fmt.Errorf("orientation.smoothing_factor must be within [0,1]")
	}
	if cfg.Orientation.SmoothingFactor == 0 {
		cfg.Orientation.SmoothingFactor = 0.1
	}

	if f := cfg.FOV.FieldOfViewDeg; f < 0 || f > 360 {
		return fmt.Errorf("fov.field_of_view_deg must be within (0,360]")
	}
	if cfg.FOV.FieldOfViewDeg == 0 {
		cfg.FOV.FieldOfViewDeg = 60
	}
	if cfg.FOV.RadiusM < 0 {
		return fmt.Errorf("fov.radius_m must be > 0")
	}
	if cfg.FOV.RadiusM == 0 {
		cfg.FOV.RadiusM = 100
	}

	if cfg.IMU.I2CBus != nil && *cfg.IMU.I2CBus < 0 {
		return fmt.Errorf("imu.i2c_bus must be >= 0")
	}
	if cfg.IMU.Address > 0x7F || cfg.IMU.MagAddress > 0x7F {
		return fmt.Errorf("imu addresses must be 7-bit")
	}
	if cfg.IMU.I2CBus == nil {
		bus := imuDefaultBus
		cfg.IMU.I2CBus = &bus
	}
	if cfg.IMU.Address == 0 {
		cfg.IMU.Address = 0x68
	}
	if cfg.IMU.MagAddress == 0 {
		cfg.IMU.MagAddress = 0x0C
	}
	if cfg.IMU.Interval <= 0 {
		cfg.IMU.Interval = 20 * time.Millisecond
	}

	for _, t := range cfg.UDP.Targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("udp.targets entries must be host:port")
		}
	}
	if cfg.UDP.Interval <= 0 {
		cfg.UDP.Interval = time.Second
	}

	if cfg.Sim.Enable && cfg.Sim.Scenario == "" {
		return fmt.Errorf("sim.scenario is required when sim.enable is true")
	}
	if cfg.Sim.Enable && cfg.GPS.Enable {
		return fmt.Errorf("sim.enable and gps.enable cannot both be true")
	}
	if cfg.Sim.Enable && cfg.IMU.Enable {
		return fmt.Errorf("sim.enable and imu.enable cannot both be true")
	}
	if cfg.Sim.Interval <= 0 {
		cfg.Sim.Interval = 100 * time.Millisecond
	}
	return nil
}
