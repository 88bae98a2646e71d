// Package sim replays scripted motion scenarios as an imu.Source.
//
// Scripts are deterministic: the same script and seed always produce the
// same readings, so they double as fixtures for detector tests.
package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/fall_monitor/internal/imu"
)

// ErrEndOfScenario is returned by Next once a non-looping script is exhausted.
var ErrEndOfScenario = errors.New("sim: end of scenario")

// Epoch is the timestamp of the first reading of every script.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Script is a motion scenario made of consecutive constant phases.
//
// YAML schema (v1):
//
//	version: 1
//	name: fall
//	sample_interval: 50ms
//	seed: 7
//	gyro: true
//	phases:
//	  - name: standing
//	    duration: 2s
//	    magnitude: 9.8   # m/s²
//	    jitter: 0.3      # uniform noise amplitude
//	    swing: 0         # alternating ± offset (gait)
//	    rotation: 0.2    # rad/s
type Script struct {
	Version        int           `yaml:"version"`
	Name           string        `yaml:"name"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Seed           uint64        `yaml:"seed"`
	Gyro           bool          `yaml:"gyro"`
	Phases         []Phase       `yaml:"phases"`
}

// Phase is a stretch of constant motion.
type Phase struct {
	Name      string        `yaml:"name"`
	Duration  time.Duration `yaml:"duration"`
	Magnitude float64       `yaml:"magnitude"`
	Jitter    float64       `yaml:"jitter"`
	Swing     float64       `yaml:"swing"`
	Rotation  float64       `yaml:"rotation"`
}

// ParseScript decodes and validates a YAML script.
func ParseScript(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, fmt.Errorf("sim: parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

// LoadScript resolves a built-in scenario name or reads a YAML file.
func LoadScript(nameOrPath string) (Script, error) {
	if s, ok := Builtin(nameOrPath); ok {
		return s, nil
	}
	b, err := os.ReadFile(nameOrPath)
	if err != nil {
		return Script{}, fmt.Errorf("sim: %w", err)
	}
	return ParseScript(b)
}

// Validate checks the script can be played.
func (s Script) Validate() error {
	if s.Version != 1 {
		return fmt.Errorf("sim: unsupported script version %d", s.Version)
	}
	if s.SampleInterval <= 0 {
		return fmt.Errorf("sim: sample_interval must be > 0")
	}
	if len(s.Phases) == 0 {
		return fmt.Errorf("sim: script %q has no phases", s.Name)
	}
	for i, p := range s.Phases {
		if p.Duration < s.SampleInterval {
			return fmt.Errorf("sim: phase %d (%s) shorter than one sample", i, p.Name)
		}
		if p.Magnitude < 0 || p.Jitter < 0 || p.Swing < 0 || p.Rotation < 0 {
			return fmt.Errorf("sim: phase %d (%s) has negative values", i, p.Name)
		}
	}
	return nil
}

// Duration is the total length of the script.
func (s Script) Duration() time.Duration {
	var d time.Duration
	for _, p := range s.Phases {
		d += p.Duration
	}
	return d
}

// Source plays a Script. Readings are stamped on a synthetic clock that
// starts at Epoch and advances by SampleInterval.
type Source struct {
	script Script
	loop   bool
	rng    *rand.Rand

	phase int
	inPh  int // samples emitted in the current phase
	n     int // samples emitted overall
	last  string
}

// NewSource returns a Source. With loop set the script restarts forever.
func NewSource(s Script, loop bool) (*Source, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		script: s,
		loop:   loop,
		rng:    rand.New(rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Phase returns the phase name of the last reading returned by Next.
func (src *Source) Phase() string {
	return src.last
}

// Next returns the next reading of the script.
func (src *Source) Next() (imu.Reading, error) {
	if src.phase >= len(src.script.Phases) {
		if !src.loop {
			return imu.Reading{}, ErrEndOfScenario
		}
		src.phase, src.inPh = 0, 0
	}

	p := src.script.Phases[src.phase]
	mag := p.Magnitude
	if p.Swing > 0 {
		if src.inPh%2 == 0 {
			mag += p.Swing
		} else {
			mag -= p.Swing
		}
	}
	if p.Jitter > 0 {
		mag += (src.rng.Float64()*2 - 1) * p.Jitter
	}
	if mag < 0 {
		mag = 0
	}

	elapsed := time.Duration(src.n) * src.script.SampleInterval
	r := imu.Reading{
		Source:  "sim:" + src.script.Name,
		Time:    Epoch.Add(elapsed),
		Mono:    elapsed,
		Accel:   [3]float64{0, 0, mag},
		HasGyro: src.script.Gyro,
	}
	if src.script.Gyro {
		r.Gyro = [3]float64{0, 0, p.Rotation}
	}

	src.last = p.Name
	src.n++
	src.inPh++
	if time.Duration(src.inPh)*src.script.SampleInterval >= p.Duration {
		src.phase++
		src.inPh = 0
	}
	return r, nil
}
