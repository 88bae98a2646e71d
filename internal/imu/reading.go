// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// StandardGravity is 1 g in m/s².
const StandardGravity = 9.80665

// ErrInvalidSample is returned for magnitudes the detector must never see:
// NaN, infinities, negative values or values above the plausibility ceiling.
var ErrInvalidSample = errors.New("invalid sample")

// Reading is one accelerometer (and optionally gyroscope) sample in
// physical units. This is the payload published on the IMU topic.
type Reading struct {
	Source string    `json:"source"`
	Time   time.Time `json:"time"`

	// Mono is the producer's monotonic offset since it started sampling.
	// Wall clocks can jump; consumers order and time samples by Mono.
	Mono time.Duration `json:"mono_ns"`

	Accel [3]float64 `json:"accel"` // m/s²
	Gyro  [3]float64 `json:"gyro"`  // rad/s

	// HasGyro is false for devices without a gyroscope.
	HasGyro bool `json:"has_gyro"`
}

// AccelMagnitude returns the Euclidean norm of the acceleration vector.
func (r Reading) AccelMagnitude() float64 {
	return Magnitude(r.Accel[0], r.Accel[1], r.Accel[2])
}

// GyroMagnitude returns the Euclidean norm of the angular velocity vector.
func (r Reading) GyroMagnitude() float64 {
	return Magnitude(r.Gyro[0], r.Gyro[1], r.Gyro[2])
}

// Magnitude computes sqrt(x² + y² + z²).
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// Validate rejects magnitudes that cannot come from a working sensor.
// A max of zero or less disables the upper bound.
func Validate(magnitude, max float64) error {
	switch {
	case math.IsNaN(magnitude):
		return fmt.Errorf("%w: NaN", ErrInvalidSample)
	case math.IsInf(magnitude, 0):
		return fmt.Errorf("%w: infinite", ErrInvalidSample)
	case magnitude < 0:
		return fmt.Errorf("%w: negative magnitude %.3f", ErrInvalidSample, magnitude)
	case max > 0 && magnitude > max:
		return fmt.Errorf("%w: magnitude %.1f above %.1f", ErrInvalidSample, magnitude, max)
	}
	return nil
}

// Source is anything that can provide readings over time: the real
// sensor, a scripted scenario, a replay file.
type Source interface {
	Next() (Reading, error)
}
