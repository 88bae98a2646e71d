package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/fall_monitor/internal/config"
	"github.com/relabs-tech/fall_monitor/internal/gps"
	"github.com/relabs-tech/fall_monitor/internal/imu"
	"github.com/relabs-tech/fall_monitor/internal/sim"
)

func TestIMUProducerStampsLocalClock(t *testing.T) {
	src, err := sim.NewSource(sim.RunningScript(), false)
	require.NoError(t, err)
	pub := &fakePublisher{}
	start := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	p := &imuProducer{src: src, pub: pub, topic: "fall/imu", start: start}

	_, err = p.step(start.Add(50 * time.Millisecond))
	require.NoError(t, err)
	_, err = p.step(start.Add(100 * time.Millisecond))
	require.NoError(t, err)

	msgs := pub.on("fall/imu")
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].retained)

	var r imu.Reading
	pub.decodeLast(t, "fall/imu", &r)
	assert.Equal(t, 100*time.Millisecond, r.Mono)
	assert.True(t, r.Time.Equal(start.Add(100*time.Millisecond)))
	assert.Equal(t, "sim:running", r.Source)
	assert.True(t, r.HasGyro)
}

func TestNewIMUSourceSim(t *testing.T) {
	cfg := config.Default()
	cfg.IMUSource = "sim"
	cfg.SimScenarioFile = "table_drop"

	src, err := newIMUSource(cfg)
	require.NoError(t, err)
	r, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "sim:table_drop", r.Source)

	cfg.IMUSource = "bmp280"
	_, err = newIMUSource(cfg)
	assert.Error(t, err)
}

func TestPumpNMEA(t *testing.T) {
	input := strings.Join([]string{
		"garbage",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*00",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"",
	}, "\r\n")
	pub := &fakePublisher{}

	require.NoError(t, pumpNMEA(strings.NewReader(input), pub, "fall/gps"))

	msgs := pub.on("fall/gps")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].retained)

	var fix gps.Fix
	pub.decodeLast(t, "fall/gps", &fix)
	assert.True(t, fix.Valid())
	assert.InDelta(t, 48.1173, fix.Latitude, 1e-4)
	assert.InDelta(t, 11.5167, fix.Longitude, 1e-4)
}
