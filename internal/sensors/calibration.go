// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/relabs-tech/fall_monitor/internal/imu"
)

// Calibration holds per-axis corrections in physical units.
// corrected = (measured - bias) * scale
type Calibration struct {
	Version int    `json:"version"`
	IMU     string `json:"imu"`

	AccelBiasX  float64 `json:"accel_bias_x"` // m/s²
	AccelBiasY  float64 `json:"accel_bias_y"`
	AccelBiasZ  float64 `json:"accel_bias_z"`
	AccelScaleX float64 `json:"accel_scale_x"`
	AccelScaleY float64 `json:"accel_scale_y"`
	AccelScaleZ float64 `json:"accel_scale_z"`

	GyroBiasX float64 `json:"gyro_bias_x"` // rad/s
	GyroBiasY float64 `json:"gyro_bias_y"`
	GyroBiasZ float64 `json:"gyro_bias_z"`
}

// IdentityCalibration leaves readings unchanged.
func IdentityCalibration() Calibration {
	return Calibration{Version: 1, AccelScaleX: 1, AccelScaleY: 1, AccelScaleZ: 1}
}

// LoadCalibration reads a calibration JSON file. An empty path or a missing
// file yields the identity calibration.
func LoadCalibration(path string) (Calibration, error) {
	if path == "" {
		return IdentityCalibration(), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return IdentityCalibration(), nil
	}
	if err != nil {
		return Calibration{}, fmt.Errorf("calibration: %w", err)
	}

	cal := IdentityCalibration()
	if err := json.Unmarshal(b, &cal); err != nil {
		return Calibration{}, fmt.Errorf("calibration: parse %s: %w", path, err)
	}
	if cal.AccelScaleX <= 0 || cal.AccelScaleY <= 0 || cal.AccelScaleZ <= 0 {
		return Calibration{}, fmt.Errorf("calibration: accel scale must be > 0 in %s", path)
	}
	return cal, nil
}

// Apply corrects a reading in place and returns it.
func (c Calibration) Apply(r imu.Reading) imu.Reading {
	r.Accel[0] = (r.Accel[0] - c.AccelBiasX) * c.AccelScaleX
	r.Accel[1] = (r.Accel[1] - c.AccelBiasY) * c.AccelScaleY
	r.Accel[2] = (r.Accel[2] - c.AccelBiasZ) * c.AccelScaleZ
	if r.HasGyro {
		r.Gyro[0] -= c.GyroBiasX
		r.Gyro[1] -= c.GyroBiasY
		r.Gyro[2] -= c.GyroBiasZ
	}
	return r
}
