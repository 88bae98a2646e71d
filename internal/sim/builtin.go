package sim

import "time"

const defaultInterval = 50 * time.Millisecond

// Builtin returns one of the bundled scenarios by name:
// fall, fall_recover, table_drop, running.
func Builtin(name string) (Script, bool) {
	switch name {
	case "fall":
		return FallScript(), true
	case "fall_recover":
		return FallAndRecoverScript(), true
	case "table_drop":
		return TableDropScript(), true
	case "running":
		return RunningScript(), true
	}
	return Script{}, false
}

// FallScript is a person falling and lying still afterwards.
func FallScript() Script {
	return Script{
		Version: 1, Name: "fall", SampleInterval: defaultInterval, Seed: 7, Gyro: true,
		Phases: []Phase{
			{Name: "standing", Duration: 2 * time.Second, Magnitude: 9.8, Jitter: 0.3, Rotation: 0.2},
			{Name: "free_fall", Duration: 500 * time.Millisecond, Magnitude: 1.0, Jitter: 0.5, Rotation: 2.0},
			{Name: "impact", Duration: defaultInterval, Magnitude: 35, Jitter: 2, Rotation: 5},
			{Name: "lying", Duration: 4 * time.Second, Magnitude: 9.8, Jitter: 0.2, Rotation: 0.1},
		},
	}
}

// FallAndRecoverScript is a fall after which the person gets up and walks.
func FallAndRecoverScript() Script {
	return Script{
		Version: 1, Name: "fall_recover", SampleInterval: defaultInterval, Seed: 11, Gyro: true,
		Phases: []Phase{
			{Name: "standing", Duration: 2 * time.Second, Magnitude: 9.8, Jitter: 0.3, Rotation: 0.2},
			{Name: "free_fall", Duration: 500 * time.Millisecond, Magnitude: 1.0, Jitter: 0.5, Rotation: 2.0},
			{Name: "impact", Duration: defaultInterval, Magnitude: 35, Jitter: 2, Rotation: 5},
			{Name: "walking", Duration: 4 * time.Second, Magnitude: 11, Swing: 4, Jitter: 0.5, Rotation: 1.0},
		},
	}
}

// TableDropScript is a phone slipping from a hand onto a table.
func TableDropScript() Script {
	return Script{
		Version: 1, Name: "table_drop", SampleInterval: defaultInterval, Seed: 3, Gyro: true,
		Phases: []Phase{
			{Name: "holding", Duration: time.Second, Magnitude: 9.8, Jitter: 0.3, Rotation: 0.3},
			{Name: "drop", Duration: 150 * time.Millisecond, Magnitude: 2.0, Jitter: 0.5, Rotation: 1.0},
			{Name: "impact", Duration: defaultInterval, Magnitude: 30, Jitter: 2, Rotation: 2},
			{Name: "resting", Duration: 3 * time.Second, Magnitude: 9.8, Jitter: 0.1},
		},
	}
}

// RunningScript is a steady jog: large swings that never reach free fall.
func RunningScript() Script {
	return Script{
		Version: 1, Name: "running", SampleInterval: defaultInterval, Seed: 5, Gyro: true,
		Phases: []Phase{
			{Name: "running", Duration: 6 * time.Second, Magnitude: 12, Swing: 5, Jitter: 1, Rotation: 1.5},
		},
	}
}
