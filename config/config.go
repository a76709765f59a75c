// Package config loads the rotator's motor configuration file.
//
// The file is consumed once at startup; nothing in the daemon mutates it.
// A missing file yields the defaults for a NEMA34 + TB6600 + 40:1 worm
// gear build.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Motor struct {
	StepsPerRevolution int     `yaml:"steps_per_revolution"`
	StepAngle          float64 `yaml:"step_angle"`
	GearRatio          float64 `yaml:"gear_ratio"`
	MaxRPM             int     `yaml:"max_rpm"`
}

type Driver struct {
	MicrostepMultiplier int  `yaml:"microstep_multiplier"`
	EnableActiveLow     bool `yaml:"enable_active_low"`
}

type Motion struct {
	// Speeds are in full steps per second.
	DefaultSpeed    float64 `yaml:"default_speed"`
	MinSpeed        float64 `yaml:"min_speed"`
	MaxSpeed        float64 `yaml:"max_speed"`
	HomeSpeed       float64 `yaml:"home_speed"`
	CorrectionSpeed float64 `yaml:"correction_speed"`
}

type Limits struct {
	AzimuthMin   float64 `yaml:"azimuth_min"`
	AzimuthMax   float64 `yaml:"azimuth_max"`
	ElevationMin float64 `yaml:"elevation_min"`
	ElevationMax float64 `yaml:"elevation_max"`
}

type AxisPins struct {
	Dir    string `yaml:"dir"`
	Step   string `yaml:"step"`
	Enable string `yaml:"enable"`
}

type GPIO struct {
	Azimuth   AxisPins `yaml:"azimuth"`
	Elevation AxisPins `yaml:"elevation"`
}

type Feedback struct {
	Enabled   bool    `yaml:"enabled"`
	Tolerance float64 `yaml:"tolerance"`
}

type Site struct {
	// Observer location for calibration tracking.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Height    float64 `yaml:"height"`
}

type Config struct {
	Motor    Motor    `yaml:"motor"`
	Driver   Driver   `yaml:"driver"`
	Motion   Motion   `yaml:"motion"`
	Limits   Limits   `yaml:"limits"`
	GPIO     GPIO     `yaml:"gpio"`
	Feedback Feedback `yaml:"feedback"`
	Site     Site     `yaml:"site"`
}

// StepsPerDegree derives the calibration factor from the motor,
// driver and gearing settings.
func (c *Config) StepsPerDegree() float64 {
	return float64(c.Motor.StepsPerRevolution) * float64(c.Driver.MicrostepMultiplier) * c.Motor.GearRatio / 360.0
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Motor: Motor{
			StepsPerRevolution: 200,
			StepAngle:          1.8,
			GearRatio:          40,
			MaxRPM:             300,
		},
		Driver: Driver{
			MicrostepMultiplier: 1,
			EnableActiveLow:     true,
		},
		Motion: Motion{
			DefaultSpeed:    100,
			MinSpeed:        1,
			MaxSpeed:        1000,
			HomeSpeed:       50,
			CorrectionSpeed: 50,
		},
		Limits: Limits{
			AzimuthMin:   0,
			AzimuthMax:   360,
			ElevationMin: 0,
			ElevationMax: 90,
		},
		GPIO: GPIO{
			Azimuth:   AxisPins{Dir: "GPIO23", Step: "GPIO24", Enable: "GPIO25"},
			Elevation: AxisPins{Dir: "GPIO26", Step: "GPIO27", Enable: "GPIO22"},
		},
		Feedback: Feedback{
			Enabled:   true,
			Tolerance: 0.5,
		},
	}
}

// Load reads a YAML config file. A missing file is not an error; the
// defaults are returned instead.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return c, nil
}
