package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/erg.defaults.json"

// Config is the root configuration. Every field is optional; the Get*
// accessors fall back to built-in defaults so partial files are safe.
type Config struct {
	Rower     *RowerConfig     `json:"rower,omitempty"`
	Session   *SessionConfig   `json:"session,omitempty"`
	Input     *InputConfig     `json:"input,omitempty"`
	Recording *RecordingConfig `json:"recording,omitempty"`
	MQTT      *MQTTConfig      `json:"mqtt,omitempty"`
	HTTP      *HTTPConfig      `json:"http,omitempty"`
}

// RowerConfig selects a machine profile and overrides individual settings.
type RowerConfig struct {
	Profile *string `json:"profile,omitempty"`

	NumOfImpulsesPerRevolution    *int     `json:"num_of_impulses_per_revolution,omitempty"`
	SprocketRadius                *float64 `json:"sprocket_radius,omitempty"` // cm
	MinimumTimeBetweenImpulses    *float64 `json:"minimum_time_between_impulses,omitempty"`
	MaximumTimeBetweenImpulses    *float64 `json:"maximum_time_between_impulses,omitempty"`
	Smoothing                     *int     `json:"smoothing,omitempty"`
	FlankLength                   *int     `json:"flank_length,omitempty"`
	MinimumStrokeQuality          *float64 `json:"minimum_stroke_quality,omitempty"`
	DragFactor                    *float64 `json:"drag_factor,omitempty"`
	AutoAdjustDragFactor          *bool    `json:"auto_adjust_drag_factor,omitempty"`
	MinimumDragQuality            *float64 `json:"minimum_drag_quality,omitempty"`
	DragFactorSmoothing           *int     `json:"drag_factor_smoothing,omitempty"`
	FlywheelInertia               *float64 `json:"flywheel_inertia,omitempty"`
	MinimumForceBeforeStroke      *float64 `json:"minimum_force_before_stroke,omitempty"`
	MinimumRecoverySlope          *float64 `json:"minimum_recovery_slope,omitempty"`
	AutoAdjustRecoverySlope       *bool    `json:"auto_adjust_recovery_slope,omitempty"`
	AutoAdjustRecoverySlopeMargin *float64 `json:"auto_adjust_recovery_slope_margin,omitempty"`
	MinimumDriveTime              *float64 `json:"minimum_drive_time,omitempty"`
	MinimumRecoveryTime           *float64 `json:"minimum_recovery_time,omitempty"`
	MaximumStrokeTimeBeforePause  *float64 `json:"maximum_stroke_time_before_pause,omitempty"`
	MagicConstant                 *float64 `json:"magic_constant,omitempty"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	NumOfPhasesForAveragingScreenData *int    `json:"num_of_phases_for_averaging_screen_data,omitempty"`
	RebroadcastInterval               *string `json:"rebroadcast_interval,omitempty"` // duration string like "1s", "0s" disables
}

// InputConfig describes where impulses come from.
type InputConfig struct {
	Source     *string `json:"source,omitempty"` // serial, gpio, replay or simulate
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	GPIOPin    *string `json:"gpio_pin,omitempty"`
	ReplayFile *string `json:"replay_file,omitempty"`
}

// RecordingConfig controls the session recorders.
type RecordingConfig struct {
	Directory          *string `json:"directory,omitempty"`
	CreateRawDataFiles *bool   `json:"create_raw_data_files,omitempty"`
	GzipRawDataFiles   *bool   `json:"gzip_raw_data_files,omitempty"`
	CreateFitFiles     *bool   `json:"create_fit_files,omitempty"`
	CreateLogFiles     *bool   `json:"create_log_files,omitempty"`
	Database           *string `json:"database,omitempty"`
}

// MQTTConfig configures the optional metrics publisher.
type MQTTConfig struct {
	Enabled     *bool   `json:"enabled,omitempty"`
	Broker      *string `json:"broker,omitempty"`
	ClientID    *string `json:"client_id,omitempty"`
	TopicPrefix *string `json:"topic_prefix,omitempty"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Listen *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a Config with all sections unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*Config, error) {
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

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and its parents. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that every set value is in range. Rower overrides are
// checked after being merged onto their profile.
func (c *Config) Validate() error {
	if _, err := c.RowerSettings(); err != nil {
		return err
	}

	if c.Session != nil {
		if v := c.Session.NumOfPhasesForAveragingScreenData; v != nil && *v < 2 {
			return fmt.Errorf("num_of_phases_for_averaging_screen_data must be at least 2, got %d", *v)
		}
		if v := c.Session.RebroadcastInterval; v != nil && *v != "" {
			d, err := time.ParseDuration(*v)
			if err != nil {
				return fmt.Errorf("invalid rebroadcast_interval '%s': %w", *v, err)
			}
			if d < 0 {
				return fmt.Errorf("rebroadcast_interval must be non-negative, got %s", d)
			}
		}
	}

	if c.Input != nil {
		if v := c.Input.Source; v != nil {
			switch *v {
			case "serial", "gpio", "replay", "simulate":
			default:
				return fmt.Errorf("input source must be one of serial, gpio, replay, simulate, got %q", *v)
			}
		}
		if v := c.Input.BaudRate; v != nil && *v <= 0 {
			return fmt.Errorf("baud_rate must be positive, got %d", *v)
		}
	}

	if c.MQTT != nil && c.MQTT.Enabled != nil && *c.MQTT.Enabled {
		if c.MQTT.Broker == nil || *c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required when mqtt is enabled")
		}
	}

	return nil
}

// GetNumOfPhasesForAveragingScreenData returns the smoothing window for
// displayed metrics.
func (c *Config) GetNumOfPhasesForAveragingScreenData() int {
	if c.Session == nil || c.Session.NumOfPhasesForAveragingScreenData == nil {
		return 4
	}
	return *c.Session.NumOfPhasesForAveragingScreenData
}

// GetRebroadcastInterval returns how often the last metrics record is
// re-emitted. Zero disables rebroadcasting.
func (c *Config) GetRebroadcastInterval() time.Duration {
	if c.Session == nil || c.Session.RebroadcastInterval == nil || *c.Session.RebroadcastInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.Session.RebroadcastInterval)
	if err != nil {
		return 0
	}
	return d
}

// GetInputSource returns the impulse source name.
func (c *Config) GetInputSource() string {
	if c.Input == nil || c.Input.Source == nil {
		return "serial"
	}
	return *c.Input.Source
}

// GetSerialPort returns the serial device path.
func (c *Config) GetSerialPort() string {
	if c.Input == nil || c.Input.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.Input.SerialPort
}

// GetBaudRate returns the serial baud rate.
func (c *Config) GetBaudRate() int {
	if c.Input == nil || c.Input.BaudRate == nil {
		return 115200
	}
	return *c.Input.BaudRate
}

// GetGPIOPin returns the GPIO pin name the impulse sensor is wired to.
func (c *Config) GetGPIOPin() string {
	if c.Input == nil || c.Input.GPIOPin == nil {
		return "GPIO17"
	}
	return *c.Input.GPIOPin
}

// GetReplayFile returns the raw recording used by the replay source.
func (c *Config) GetReplayFile() string {
	if c.Input == nil || c.Input.ReplayFile == nil {
		return ""
	}
	return *c.Input.ReplayFile
}

// GetRecordingDirectory returns where session files are written.
func (c *Config) GetRecordingDirectory() string {
	if c.Recording == nil || c.Recording.Directory == nil {
		return "data"
	}
	return *c.Recording.Directory
}

// GetCreateRawDataFiles reports whether raw impulse files are written.
func (c *Config) GetCreateRawDataFiles() bool {
	if c.Recording == nil || c.Recording.CreateRawDataFiles == nil {
		return true
	}
	return *c.Recording.CreateRawDataFiles
}

// GetGzipRawDataFiles reports whether raw impulse files are compressed.
func (c *Config) GetGzipRawDataFiles() bool {
	if c.Recording == nil || c.Recording.GzipRawDataFiles == nil {
		return true
	}
	return *c.Recording.GzipRawDataFiles
}

// GetCreateFitFiles reports whether FIT activity files are written.
func (c *Config) GetCreateFitFiles() bool {
	if c.Recording == nil || c.Recording.CreateFitFiles == nil {
		return true
	}
	return *c.Recording.CreateFitFiles
}

// GetCreateLogFiles reports whether human readable session logs are written.
func (c *Config) GetCreateLogFiles() bool {
	if c.Recording == nil || c.Recording.CreateLogFiles == nil {
		return false
	}
	return *c.Recording.CreateLogFiles
}

// GetDatabase returns the SQLite database path.
func (c *Config) GetDatabase() string {
	if c.Recording == nil || c.Recording.Database == nil {
		return "erg_data.db"
	}
	return *c.Recording.Database
}

// GetMQTTEnabled reports whether metrics are published over MQTT.
func (c *Config) GetMQTTEnabled() bool {
	if c.MQTT == nil || c.MQTT.Enabled == nil {
		return false
	}
	return *c.MQTT.Enabled
}

// GetMQTTBroker returns the broker URL.
func (c *Config) GetMQTTBroker() string {
	if c.MQTT == nil || c.MQTT.Broker == nil {
		return "tcp://localhost:1883"
	}
	return *c.MQTT.Broker
}

// GetMQTTClientID returns the MQTT client identifier.
func (c *Config) GetMQTTClientID() string {
	if c.MQTT == nil || c.MQTT.ClientID == nil {
		return "ergmonitor"
	}
	return *c.MQTT.ClientID
}

// GetMQTTTopicPrefix returns the prefix for published topics.
func (c *Config) GetMQTTTopicPrefix() string {
	if c.MQTT == nil || c.MQTT.TopicPrefix == nil {
		return "erg"
	}
	return *c.MQTT.TopicPrefix
}

// GetHTTPListen returns the web server listen address.
func (c *Config) GetHTTPListen() string {
	if c.HTTP == nil || c.HTTP.Listen == nil {
		return ":8080"
	}
	return *c.HTTP.Listen
}
