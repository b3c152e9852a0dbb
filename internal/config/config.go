package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/orientd/internal/iio"
)

// Config is the daemon configuration. Fields are pointers so a partial JSON
// file only overrides what it names; the Get* accessors supply defaults for
// everything else. The defaults describe the Yoga-class hardware this daemon
// was originally tuned on.
type Config struct {
	// Display output to rotate (xrandr output name).
	Output *string `json:"output,omitempty"`

	// Input devices to disable in tablet mode.
	Keyboards *[]string `json:"keyboards,omitempty"`
	Pointers  *[]string `json:"pointers,omitempty"`

	// Touch/pen devices whose coordinate transform follows the display.
	Touchscreens *[]string `json:"touchscreens,omitempty"`

	// Poll interval in whole seconds.
	PollIntervalSeconds *int `json:"poll_interval_seconds,omitempty"`

	// Minimum dominant-axis magnitude to assert a new orientation.
	GravityThreshold *float64 `json:"gravity_threshold,omitempty"`

	// Sensor device namespace and lid switch state file.
	SensorsGlob  *string `json:"sensors_glob,omitempty"`
	LidStatePath *string `json:"lid_state_path,omitempty"`

	// On-screen keyboard command (argv form); empty disables the launcher.
	KeyboardCommand *[]string `json:"keyboard_command,omitempty"`

	// Consecutive vanished-file reads tolerated per sensor.
	SensorFaultCeiling *int `json:"sensor_fault_ceiling,omitempty"`

	// Path of the sqlite transition log.
	DatabasePath *string `json:"database_path,omitempty"`

	// Publish resolved mode as a virtual SW_TABLET_MODE switch.
	PublishTabletSwitch *bool `json:"publish_tablet_switch,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and stay under the max file size. Omitted fields keep their
// defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds != nil && *c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", *c.PollIntervalSeconds)
	}
	if c.GravityThreshold != nil && *c.GravityThreshold <= 0 {
		return fmt.Errorf("gravity_threshold must be positive, got %f", *c.GravityThreshold)
	}
	if c.SensorFaultCeiling != nil && *c.SensorFaultCeiling < 0 {
		return fmt.Errorf("sensor_fault_ceiling must be non-negative, got %d", *c.SensorFaultCeiling)
	}
	if c.SensorsGlob != nil && *c.SensorsGlob == "" {
		return fmt.Errorf("sensors_glob must not be empty")
	}
	return nil
}

// GetOutput returns the display output name or the default.
func (c *Config) GetOutput() string {
	if c.Output == nil {
		return "eDP1"
	}
	return *c.Output
}

// GetKeyboards returns the keyboard device names or the default.
func (c *Config) GetKeyboards() []string {
	if c.Keyboards == nil {
		return []string{"AT Translated Set 2 keyboard"}
	}
	return *c.Keyboards
}

// GetPointers returns the pointer device names or the default.
func (c *Config) GetPointers() []string {
	if c.Pointers == nil {
		return []string{"TPPS/2 IBM TrackPoint", "Synaptics TM2911-002"}
	}
	return *c.Pointers
}

// GetTouchscreens returns the touchscreen device names or the default.
func (c *Config) GetTouchscreens() []string {
	if c.Touchscreens == nil {
		return []string{"ELAN Touchscreen", "Wacom ISDv4 EC Pen stylus"}
	}
	return *c.Touchscreens
}

// GetPollInterval returns the poll interval as a duration.
func (c *Config) GetPollInterval() time.Duration {
	if c.PollIntervalSeconds == nil {
		return time.Second
	}
	return time.Duration(*c.PollIntervalSeconds) * time.Second
}

// GetGravityThreshold returns the gravity threshold or the default.
func (c *Config) GetGravityThreshold() float64 {
	if c.GravityThreshold == nil {
		return 2.0
	}
	return *c.GravityThreshold
}

// GetSensorsGlob returns the sensor namespace glob or the default.
func (c *Config) GetSensorsGlob() string {
	if c.SensorsGlob == nil {
		return iio.DefaultDevicesGlob
	}
	return *c.SensorsGlob
}

// GetLidStatePath returns the lid switch state file or the default.
func (c *Config) GetLidStatePath() string {
	if c.LidStatePath == nil {
		return iio.DefaultLidStatePath
	}
	return *c.LidStatePath
}

// GetKeyboardCommand returns the on-screen keyboard argv, empty by default.
func (c *Config) GetKeyboardCommand() []string {
	if c.KeyboardCommand == nil {
		return nil
	}
	return *c.KeyboardCommand
}

// GetSensorFaultCeiling returns the fault ceiling or the default.
func (c *Config) GetSensorFaultCeiling() int {
	if c.SensorFaultCeiling == nil {
		return iio.DefaultFaultCeiling
	}
	return *c.SensorFaultCeiling
}

// GetDatabasePath returns the sqlite path or the default.
func (c *Config) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "orientd.db"
	}
	return *c.DatabasePath
}

// GetPublishTabletSwitch reports whether the virtual switch is enabled.
func (c *Config) GetPublishTabletSwitch() bool {
	if c.PublishTabletSwitch == nil {
		return false
	}
	return *c.PublishTabletSwitch
}
