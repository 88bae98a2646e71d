// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fall

import (
	"fmt"
	"time"
)

// Settings holds the empirically tuned thresholds of the detector.
// A Detector copies its Settings at construction; they never change afterwards.
type Settings struct {
	// WindowSize is the capacity of the acceleration window.
	WindowSize int
	// StationarySamples is how many recent samples the stillness test uses.
	StationarySamples int

	FreeFallThreshold     float64 // m/s², magnitude below this starts a free fall
	ImpactThreshold       float64 // m/s², magnitude above this is an impact
	StationaryThreshold   float64 // m/s², max stddev of a still device
	HighRotationThreshold float64 // rad/s, max angular velocity of a still device

	MinFreeFallDuration     time.Duration
	MaxFreeFallDuration     time.Duration
	StationaryCheckDuration time.Duration
	AlertCooldown           time.Duration

	// MaxMagnitude is the plausibility ceiling in m/s². Zero disables it.
	MaxMagnitude float64
}

// DefaultSettings returns the thresholds the detector was tuned with.
func DefaultSettings() Settings {
	return Settings{
		WindowSize:              30,
		StationarySamples:       10,
		FreeFallThreshold:       5.0,
		ImpactThreshold:         25.0,
		StationaryThreshold:     2.0,
		HighRotationThreshold:   3.0,
		MinFreeFallDuration:     300 * time.Millisecond,
		MaxFreeFallDuration:     1500 * time.Millisecond,
		StationaryCheckDuration: 2000 * time.Millisecond,
		AlertCooldown:           30 * time.Second,
		MaxMagnitude:            400,
	}
}

// Validate checks that the thresholds describe a usable detector.
func (s Settings) Validate() error {
	if s.WindowSize <= 0 {
		return fmt.Errorf("fall: window size must be > 0, got %d", s.WindowSize)
	}
	if s.StationarySamples <= 0 || s.StationarySamples > s.WindowSize {
		return fmt.Errorf("fall: stationary samples must be 1-%d, got %d", s.WindowSize, s.StationarySamples)
	}
	if s.FreeFallThreshold <= 0 {
		return fmt.Errorf("fall: free fall threshold must be > 0")
	}
	if s.ImpactThreshold <= s.FreeFallThreshold {
		return fmt.Errorf("fall: impact threshold %.2f must exceed free fall threshold %.2f",
			s.ImpactThreshold, s.FreeFallThreshold)
	}
	if s.StationaryThreshold <= 0 {
		return fmt.Errorf("fall: stationary threshold must be > 0")
	}
	if s.HighRotationThreshold <= 0 {
		return fmt.Errorf("fall: high rotation threshold must be > 0")
	}
	if s.MinFreeFallDuration < 0 || s.MaxFreeFallDuration <= s.MinFreeFallDuration {
		return fmt.Errorf("fall: free fall duration bounds invalid (min=%s max=%s)",
			s.MinFreeFallDuration, s.MaxFreeFallDuration)
	}
	if s.StationaryCheckDuration <= 0 {
		return fmt.Errorf("fall: stationary check duration must be > 0")
	}
	if s.AlertCooldown < 0 {
		return fmt.Errorf("fall: alert cooldown must be >= 0")
	}
	if s.MaxMagnitude < 0 {
		return fmt.Errorf("fall: max magnitude must be >= 0")
	}
	return nil
}
