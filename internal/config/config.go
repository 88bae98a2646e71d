package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/fall_monitor/internal/fall"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDGPS      string
	MQTTClientIDDetector string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicIMU           string
	TopicGPS           string
	TopicFallEvent     string
	TopicFallStatus    string
	TopicAlert         string
	TopicAlertResponse string
	TopicEmergency     string

	// IMU source: "mpu9250" (SPI hardware) or "sim" (scripted scenario)
	IMUSource string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	IMUCalibrationFile string
	SimScenarioFile    string // built-in name or path to a YAML script

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Timing
	IMUSampleInterval     int // milliseconds
	StatusInterval        int // milliseconds
	DisplayUpdateInterval int // milliseconds

	// Fall detection thresholds
	FallWindowSize            int
	FallStationarySamples     int
	FallFreeFallThreshold     float64 // m/s²
	FallImpactThreshold       float64 // m/s²
	FallStationaryThreshold   float64 // m/s²
	FallHighRotationThreshold float64 // rad/s
	FallMinFreeFallMS         int
	FallMaxFreeFallMS         int
	FallStationaryCheckMS     int
	FallCooldownMS            int
	FallMaxMagnitude          float64 // m/s²

	MonitorQueueSize int

	// Emergency message
	EmergencyContact string
	EmergencyMessage string

	// SQLite alert journal; empty disables it
	AlertDBPath string

	// Web Server
	WebServerPort int

	LogLevel slog.Level
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock for initialization,
//     read lock for Get().
//
// External code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional key set to its default.
// Required keys (MQTT_BROKER) are left empty.
func Default() *Config {
	s := fall.DefaultSettings()
	return &Config{
		MQTTClientIDProducer: "fall-imu-producer",
		MQTTClientIDGPS:      "fall-gps-producer",
		MQTTClientIDDetector: "fall-detector",
		MQTTClientIDConsole:  "fall-console-subscriber",
		MQTTClientIDWeb:      "fall-web-subscriber",
		MQTTClientIDDisplay:  "fall-display",

		TopicIMU:           "fall/imu",
		TopicGPS:           "fall/gps",
		TopicFallEvent:     "fall/event",
		TopicFallStatus:    "fall/status",
		TopicAlert:         "fall/alert",
		TopicAlertResponse: "fall/alert/response",
		TopicEmergency:     "fall/emergency",

		IMUSource:       "mpu9250",
		SimScenarioFile: "fall",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		IMUSampleInterval:     50,
		StatusInterval:        1000,
		DisplayUpdateInterval: 500,

		FallWindowSize:            s.WindowSize,
		FallStationarySamples:     s.StationarySamples,
		FallFreeFallThreshold:     s.FreeFallThreshold,
		FallImpactThreshold:       s.ImpactThreshold,
		FallStationaryThreshold:   s.StationaryThreshold,
		FallHighRotationThreshold: s.HighRotationThreshold,
		FallMinFreeFallMS:         int(s.MinFreeFallDuration / time.Millisecond),
		FallMaxFreeFallMS:         int(s.MaxFreeFallDuration / time.Millisecond),
		FallStationaryCheckMS:     int(s.StationaryCheckDuration / time.Millisecond),
		FallCooldownMS:            int(s.AlertCooldown / time.Millisecond),
		FallMaxMagnitude:          s.MaxMagnitude,

		MonitorQueueSize: 256,

		EmergencyMessage: "EMERGENCY ALERT\nPossible accident detected. Please check immediately.",

		WebServerPort: 8080,
		LogLevel:      slog.LevelInfo,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_DETECTOR":
		c.MQTTClientIDDetector = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_FALL_EVENT":
		c.TopicFallEvent = value
	case "TOPIC_FALL_STATUS":
		c.TopicFallStatus = value
	case "TOPIC_ALERT":
		c.TopicAlert = value
	case "TOPIC_ALERT_RESPONSE":
		c.TopicAlertResponse = value
	case "TOPIC_EMERGENCY":
		c.TopicEmergency = value

	// IMU
	case "IMU_SOURCE":
		if value != "mpu9250" && value != "sim" {
			return fmt.Errorf("IMU_SOURCE must be mpu9250 or sim, got %q", value)
		}
		c.IMUSource = value
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "IMU_CALIBRATION_FILE":
		c.IMUCalibrationFile = value
	case "SIM_SCENARIO_FILE":
		c.SimScenarioFile = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		return setInt(&c.GPSBaudRate, key, value)

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		return setInt(&c.IMUSampleInterval, key, value)
	case "STATUS_INTERVAL":
		return setInt(&c.StatusInterval, key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		return setInt(&c.DisplayUpdateInterval, key, value)

	// Fall detection
	case "FALL_WINDOW_SIZE":
		return setInt(&c.FallWindowSize, key, value)
	case "FALL_STATIONARY_SAMPLES":
		return setInt(&c.FallStationarySamples, key, value)
	case "FALL_FREE_FALL_THRESHOLD":
		return setFloat(&c.FallFreeFallThreshold, key, value)
	case "FALL_IMPACT_THRESHOLD":
		return setFloat(&c.FallImpactThreshold, key, value)
	case "FALL_STATIONARY_THRESHOLD":
		return setFloat(&c.FallStationaryThreshold, key, value)
	case "FALL_HIGH_ROTATION_THRESHOLD":
		return setFloat(&c.FallHighRotationThreshold, key, value)
	case "FALL_MIN_FREE_FALL_MS":
		return setInt(&c.FallMinFreeFallMS, key, value)
	case "FALL_MAX_FREE_FALL_MS":
		return setInt(&c.FallMaxFreeFallMS, key, value)
	case "FALL_STATIONARY_CHECK_MS":
		return setInt(&c.FallStationaryCheckMS, key, value)
	case "FALL_COOLDOWN_MS":
		return setInt(&c.FallCooldownMS, key, value)
	case "FALL_MAX_MAGNITUDE":
		return setFloat(&c.FallMaxMagnitude, key, value)
	case "MONITOR_QUEUE_SIZE":
		return setInt(&c.MonitorQueueSize, key, value)

	// Emergency
	case "EMERGENCY_CONTACT":
		c.EmergencyContact = value
	case "EMERGENCY_MESSAGE":
		// allow multi-line messages on a single config line
		c.EmergencyMessage = strings.ReplaceAll(value, `\n`, "\n")
	case "ALERT_DB_PATH":
		c.AlertDBPath = value

	// Web Server
	case "WEB_SERVER_PORT":
		return setInt(&c.WebServerPort, key, value)

	case "LOG_LEVEL":
		if err := c.LogLevel.UnmarshalText([]byte(value)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", value, err)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setInt(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func setFloat(dst *float64, key, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.IMUSource == "mpu9250" {
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required when IMU_SOURCE=mpu9250")
		}
		if c.IMUCSPin == "" {
			return fmt.Errorf("IMU_CS_PIN is required when IMU_SOURCE=mpu9250")
		}
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be > 0")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("STATUS_INTERVAL must be > 0")
	}
	if c.MonitorQueueSize <= 0 {
		return fmt.Errorf("MONITOR_QUEUE_SIZE must be > 0")
	}
	if _, err := c.FallSettings(); err != nil {
		return err
	}
	return nil
}

// FallSettings converts the FALL_* keys into detector settings.
func (c *Config) FallSettings() (fall.Settings, error) {
	s := fall.Settings{
		WindowSize:              c.FallWindowSize,
		StationarySamples:       c.FallStationarySamples,
		FreeFallThreshold:       c.FallFreeFallThreshold,
		ImpactThreshold:         c.FallImpactThreshold,
		StationaryThreshold:     c.FallStationaryThreshold,
		HighRotationThreshold:   c.FallHighRotationThreshold,
		MinFreeFallDuration:     time.Duration(c.FallMinFreeFallMS) * time.Millisecond,
		MaxFreeFallDuration:     time.Duration(c.FallMaxFreeFallMS) * time.Millisecond,
		StationaryCheckDuration: time.Duration(c.FallStationaryCheckMS) * time.Millisecond,
		AlertCooldown:           time.Duration(c.FallCooldownMS) * time.Millisecond,
		MaxMagnitude:            c.FallMaxMagnitude,
	}
	if err := s.Validate(); err != nil {
		return fall.Settings{}, err
	}
	return s, nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
