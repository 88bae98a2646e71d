package sim

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/fall_monitor/internal/fall"
)

// play runs a script through a fresh detector and collects every decision
// other than DecisionNone.
func play(t *testing.T, s Script) []fall.Decision {
	t.Helper()
	det, err := fall.New(fall.DefaultSettings())
	require.NoError(t, err)
	src, err := NewSource(s, false)
	require.NoError(t, err)

	var out []fall.Decision
	for {
		r, err := src.Next()
		if errors.Is(err, ErrEndOfScenario) {
			return out
		}
		require.NoError(t, err)
		if r.HasGyro {
			det.OnGyroscopeSample(r.GyroMagnitude())
		}
		if d := det.OnAccelerationSample(r.AccelMagnitude(), r.Time); d != fall.DecisionNone {
			out = append(out, d)
		}
	}
}

func TestBuiltinScenarios(t *testing.T) {
	cases := []struct {
		name string
		want []fall.Decision
	}{
		{"fall", []fall.Decision{fall.DecisionFallConfirmed}},
		{"fall_recover", []fall.Decision{fall.DecisionReset}},
		{"table_drop", nil},
		{"running", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, ok := Builtin(tc.name)
			require.True(t, ok)
			assert.Equal(t, tc.want, play(t, s))
		})
	}
}

func TestUnknownBuiltin(t *testing.T) {
	_, ok := Builtin("skydiving")
	assert.False(t, ok)
}

func TestSourceIsDeterministic(t *testing.T) {
	a, err := NewSource(FallScript(), false)
	require.NoError(t, err)
	b, err := NewSource(FallScript(), false)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		ra, err := a.Next()
		require.NoError(t, err)
		rb, err := b.Next()
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	}
}

func TestSourceTimestamps(t *testing.T) {
	src, err := NewSource(RunningScript(), false)
	require.NoError(t, err)

	r0, _ := src.Next()
	r1, _ := src.Next()
	assert.Equal(t, Epoch, r0.Time)
	assert.Equal(t, 50*time.Millisecond, r1.Time.Sub(r0.Time))
	assert.Equal(t, 50*time.Millisecond, r1.Mono)
	assert.Equal(t, "sim:running", r0.Source)
}

func TestSourceEndsAndLoops(t *testing.T) {
	s := Script{
		Version: 1, Name: "short", SampleInterval: 100 * time.Millisecond,
		Phases: []Phase{{Name: "still", Duration: 200 * time.Millisecond, Magnitude: 9.8}},
	}

	once, err := NewSource(s, false)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := once.Next()
		require.NoError(t, err)
	}
	_, err = once.Next()
	assert.ErrorIs(t, err, ErrEndOfScenario)

	looped, err := NewSource(s, true)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		r, err := looped.Next()
		require.NoError(t, err)
		assert.Equal(t, 9.8, r.AccelMagnitude())
		assert.Equal(t, time.Duration(i)*100*time.Millisecond, r.Mono)
	}
}

func TestSwingAlternates(t *testing.T) {
	s := Script{
		Version: 1, Name: "gait", SampleInterval: 10 * time.Millisecond,
		Phases: []Phase{{Name: "walk", Duration: 40 * time.Millisecond, Magnitude: 10, Swing: 3}},
	}
	src, err := NewSource(s, false)
	require.NoError(t, err)

	var got []float64
	for i := 0; i < 4; i++ {
		r, err := src.Next()
		require.NoError(t, err)
		got = append(got, r.AccelMagnitude())
	}
	assert.Equal(t, []float64{13, 7, 13, 7}, got)
}

const yamlScript = `
version: 1
name: stumble
sample_interval: 50ms
seed: 42
gyro: true
phases:
  - name: standing
    duration: 1s
    magnitude: 9.8
    jitter: 0.2
  - name: trip
    duration: 100ms
    magnitude: 15
    rotation: 1.5
`

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(yamlScript))
	require.NoError(t, err)

	assert.Equal(t, "stumble", s.Name)
	assert.Equal(t, 50*time.Millisecond, s.SampleInterval)
	assert.Equal(t, uint64(42), s.Seed)
	assert.True(t, s.Gyro)
	require.Len(t, s.Phases, 2)
	assert.Equal(t, 100*time.Millisecond, s.Phases[1].Duration)
	assert.Equal(t, 1.5, s.Phases[1].Rotation)
	assert.Equal(t, 1100*time.Millisecond, s.Duration())
}

func TestParseScriptErrors(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "version: [",
		"version":      "version: 2\nsample_interval: 50ms\nphases: [{name: a, duration: 1s}]",
		"interval":     "version: 1\nphases: [{name: a, duration: 1s}]",
		"no phases":    "version: 1\nsample_interval: 50ms",
		"short phase":  "version: 1\nsample_interval: 50ms\nphases: [{name: a, duration: 10ms}]",
		"negative mag": "version: 1\nsample_interval: 50ms\nphases: [{name: a, duration: 1s, magnitude: -1}]",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScript([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestLoadScript(t *testing.T) {
	s, err := LoadScript("table_drop")
	require.NoError(t, err)
	assert.Equal(t, "table_drop", s.Name)

	path := filepath.Join(t.TempDir(), "stumble.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlScript), 0o644))
	s, err = LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, "stumble", s.Name)

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSourcePhase(t *testing.T) {
	src, err := NewSource(TableDropScript(), false)
	require.NoError(t, err)
	assert.Empty(t, src.Phase())

	var phases []string
	for {
		_, err := src.Next()
		if errors.Is(err, ErrEndOfScenario) {
			break
		}
		require.NoError(t, err)
		if n := len(phases); n == 0 || phases[n-1] != src.Phase() {
			phases = append(phases, src.Phase())
		}
	}
	assert.Equal(t, []string{"holding", "drop", "impact", "resting"}, phases)
}

func TestBundledStumbleScript(t *testing.T) {
	s, err := LoadScript(filepath.Join("..", "..", "scenarios", "stumble.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "stumble", s.Name)
	assert.Empty(t, play(t, s))
}
