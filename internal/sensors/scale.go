package sensors

import (
	"fmt"
	"math"

	"github.com/relabs-tech/fall_monitor/internal/imu"
)

// accelLSBPerG is the MPU9250 accelerometer sensitivity for each
// ACCEL_FS_SEL setting (±2g, ±4g, ±8g, ±16g).
var accelLSBPerG = [4]float64{16384, 8192, 4096, 2048}

// gyroLSBPerDPS is the gyroscope sensitivity for each GYRO_FS_SEL setting
// (±250, ±500, ±1000, ±2000 °/s).
var gyroLSBPerDPS = [4]float64{131, 65.5, 32.8, 16.4}

// Scale converts raw sensor counts into physical units.
type Scale struct {
	AccelRange byte
	GyroRange  byte
}

func (s Scale) validate() error {
	if s.AccelRange > 3 {
		return fmt.Errorf("accel range %d out of 0-3", s.AccelRange)
	}
	if s.GyroRange > 3 {
		return fmt.Errorf("gyro range %d out of 0-3", s.GyroRange)
	}
	return nil
}

// Accel converts a raw accelerometer count to m/s².
func (s Scale) Accel(raw int16) float64 {
	return float64(raw) / accelLSBPerG[s.AccelRange&3] * imu.StandardGravity
}

// Gyro converts a raw gyroscope count to rad/s.
func (s Scale) Gyro(raw int16) float64 {
	return float64(raw) / gyroLSBPerDPS[s.GyroRange&3] * math.Pi / 180.0
}

// Apply converts a raw sample into a Reading (without timestamps).
func (s Scale) Apply(raw imu.IMURaw) imu.Reading {
	return imu.Reading{
		Source:  raw.Source,
		Accel:   [3]float64{s.Accel(raw.Ax), s.Accel(raw.Ay), s.Accel(raw.Az)},
		Gyro:    [3]float64{s.Gyro(raw.Gx), s.Gyro(raw.Gy), s.Gyro(raw.Gz)},
		HasGyro: true,
	}
}
