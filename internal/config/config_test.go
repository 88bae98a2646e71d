package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/fall_monitor/internal/fall"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fall_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsApply(t *testing.T) {
	path := writeConfig(t, `
# minimal simulated setup
MQTT_BROKER=tcp://localhost:1883
IMU_SOURCE=sim
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "sim", cfg.IMUSource)
	assert.Equal(t, "fall/imu", cfg.TopicIMU)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)

	s, err := cfg.FallSettings()
	require.NoError(t, err)
	assert.Equal(t, fall.DefaultSettings(), s)
}

func TestLoad_OverridesThresholds(t *testing.T) {
	path := writeConfig(t, `
MQTT_BROKER=tcp://broker:1883
IMU_SPI_DEVICE=/dev/spidev0.0
IMU_CS_PIN=8
IMU_ACCEL_RANGE=3
FALL_IMPACT_THRESHOLD=30.5
FALL_COOLDOWN_MS=60000
FALL_MIN_FREE_FALL_MS=250
EMERGENCY_CONTACT=+15550100
EMERGENCY_MESSAGE=HELP\nfall detected
ALERT_DB_PATH=/var/lib/fall/alerts.db
LOG_LEVEL=debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, byte(3), cfg.IMUAccelRange)
	assert.Equal(t, "HELP\nfall detected", cfg.EmergencyMessage)
	assert.Equal(t, "/var/lib/fall/alerts.db", cfg.AlertDBPath)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)

	s, err := cfg.FallSettings()
	require.NoError(t, err)
	assert.InDelta(t, 30.5, s.ImpactThreshold, 1e-12)
	assert.Equal(t, time.Minute, s.AlertCooldown)
	assert.Equal(t, 250*time.Millisecond, s.MinFreeFallDuration)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"missing broker":    "IMU_SOURCE=sim\n",
		"unknown key":       "MQTT_BROKER=x\nIMU_SOURCE=sim\nBOGUS=1\n",
		"no equals":         "MQTT_BROKER\n",
		"bad range":         "MQTT_BROKER=x\nIMU_SOURCE=sim\nIMU_ACCEL_RANGE=7\n",
		"bad float":         "MQTT_BROKER=x\nIMU_SOURCE=sim\nFALL_IMPACT_THRESHOLD=high\n",
		"bad source":        "MQTT_BROKER=x\nIMU_SOURCE=camera\n",
		"spi required":      "MQTT_BROKER=x\n",
		"inverted bounds":   "MQTT_BROKER=x\nIMU_SOURCE=sim\nFALL_MIN_FREE_FALL_MS=2000\n",
		"impact below fall": "MQTT_BROKER=x\nIMU_SOURCE=sim\nFALL_IMPACT_THRESHOLD=4\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}
