// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fall implements the fall detection state machine: free fall,
// then impact, then a stillness check, with an alert cooldown in front.
//
// The detector is purely reactive. Every timeout is a timestamp comparison
// evaluated when the next sample arrives, so it needs no timers and can be
// driven entirely by synthetic timestamps. It is not safe for concurrent use.
package fall

import (
	"time"

	"github.com/relabs-tech/fall_monitor/internal/imu"
)

// State is the detector's position in the fall sequence.
type State int

const (
	StateNormal State = iota
	StateFreeFall
	StateImpact
	StateStationaryCheck
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateFreeFall:
		return "free_fall_detected"
	case StateImpact:
		return "impact_detected"
	case StateStationaryCheck:
		return "stationary_check"
	default:
		return "unknown"
	}
}

// Decision is what a single acceleration sample resolved to.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionFallConfirmed
	DecisionReset
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionFallConfirmed:
		return "fall_confirmed"
	case DecisionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Transition describes one state change, reported to the transition hook.
type Transition struct {
	From      State
	To        State
	At        time.Time
	Magnitude float64
	Elapsed   time.Duration // time spent in From
	Reason    string
}

// Option configures a Detector.
type Option func(*Detector)

// WithTransitionHook registers fn to be called on every state change.
// fn runs synchronously on the sampling path and must not block.
func WithTransitionHook(fn func(Transition)) Option {
	return func(d *Detector) {
		d.onTransition = fn
	}
}

// Detector is the fall state machine. Create it with New.
type Detector struct {
	settings Settings
	window   *Buffer
	state    State

	freeFallStart        time.Time
	impactTime           time.Time
	stationaryCheckStart time.Time

	lastAlert    time.Time
	hasAlerted   bool
	angularSpeed float64

	onTransition func(Transition)
}

// New returns a Detector in StateNormal.
func New(settings Settings, opts ...Option) (*Detector, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	d := &Detector{
		settings: settings,
		window:   NewBuffer(settings.WindowSize),
		state:    StateNormal,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Settings returns the thresholds the detector was built with.
func (d *Detector) Settings() Settings {
	return d.settings
}

// State returns the current state.
func (d *Detector) State() State {
	return d.state
}

// LastAlert returns the time of the last confirmed fall, if any.
func (d *Detector) LastAlert() (time.Time, bool) {
	return d.lastAlert, d.hasAlerted
}

// AngularVelocity returns the latest gyroscope magnitude in rad/s.
func (d *Detector) AngularVelocity() float64 {
	return d.angularSpeed
}

// WindowLen returns how many acceleration samples are buffered.
func (d *Detector) WindowLen() int {
	return d.window.Len()
}

// InCooldown reports whether samples at now are being ignored because an
// alert was confirmed less than AlertCooldown ago.
func (d *Detector) InCooldown(now time.Time) bool {
	return d.hasAlerted && now.Sub(d.lastAlert) < d.settings.AlertCooldown
}

// OnGyroscopeSample records the latest angular velocity magnitude. It never
// changes state. Invalid magnitudes are ignored.
func (d *Detector) OnGyroscopeSample(magnitude float64) {
	if imu.Validate(magnitude, 0) != nil {
		return
	}
	d.angularSpeed = magnitude
}

// OnAccelerationSample advances the state machine with one acceleration
// magnitude (m/s²) observed at now. Invalid magnitudes are dropped and
// leave the detector untouched.
func (d *Detector) OnAccelerationSample(magnitude float64, now time.Time) Decision {
	if imu.Validate(magnitude, d.settings.MaxMagnitude) != nil {
		return DecisionNone
	}
	if d.InCooldown(now) {
		return DecisionNone
	}

	d.window.Push(magnitude)

	switch d.state {
	case StateNormal:
		if magnitude < d.settings.FreeFallThreshold {
			d.freeFallStart = now
			d.transition(StateFreeFall, now, magnitude, 0, "acceleration below free fall threshold")
		}

	case StateFreeFall:
		elapsed := now.Sub(d.freeFallStart)
		switch {
		case elapsed > d.settings.MaxFreeFallDuration:
			d.reset(now, magnitude, elapsed, "free fall lasted too long")
		case magnitude > d.settings.ImpactThreshold && elapsed >= d.settings.MinFreeFallDuration:
			d.impactTime = now
			d.transition(StateImpact, now, magnitude, elapsed, "impact after free fall")
		case magnitude > d.settings.ImpactThreshold:
			d.reset(now, magnitude, elapsed, "impact too soon after free fall onset")
		case magnitude > d.settings.FreeFallThreshold && elapsed < d.settings.MinFreeFallDuration:
			d.reset(now, magnitude, elapsed, "free fall ended too quickly")
		}

	case StateImpact:
		d.stationaryCheckStart = now
		d.transition(StateStationaryCheck, now, magnitude, now.Sub(d.impactTime), "checking for stillness")

	case StateStationaryCheck:
		elapsed := now.Sub(d.stationaryCheckStart)
		if elapsed < d.settings.StationaryCheckDuration {
			return DecisionNone
		}
		if d.IsStationary() {
			d.lastAlert = now
			d.hasAlerted = true
			d.reset(now, magnitude, elapsed, "device stationary after impact")
			return DecisionFallConfirmed
		}
		d.reset(now, magnitude, elapsed, "motion after impact")
		return DecisionReset
	}
	return DecisionNone
}

// IsStationary reports whether the most recent samples describe a device
// lying still: low acceleration spread and no significant rotation.
// Without enough history the answer is always false.
func (d *Detector) IsStationary() bool {
	stats, err := d.window.RecentStats(d.settings.StationarySamples)
	if err != nil {
		return false
	}
	return stats.StdDev < d.settings.StationaryThreshold &&
		d.angularSpeed < d.settings.HighRotationThreshold
}

// reset returns to StateNormal. The cooldown, the window and the latest
// angular velocity survive.
func (d *Detector) reset(now time.Time, magnitude float64, elapsed time.Duration, reason string) {
	d.freeFallStart = time.Time{}
	d.impactTime = time.Time{}
	d.stationaryCheckStart = time.Time{}
	d.transition(StateNormal, now, magnitude, elapsed, reason)
}

func (d *Detector) transition(to State, now time.Time, magnitude float64, elapsed time.Duration, reason string) {
	from := d.state
	d.state = to
	if d.onTransition != nil {
		d.onTransition(Transition{
			From:      from,
			To:        to,
			At:        now,
			Magnitude: magnitude,
			Elapsed:   elapsed,
			Reason:    reason,
		})
	}
}
