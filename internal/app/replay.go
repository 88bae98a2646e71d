package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/relabs-tech/fall_monitor/internal/fall"
	"github.com/relabs-tech/fall_monitor/internal/sim"
)

// ReplaySummary counts what a scenario produced.
type ReplaySummary struct {
	Scenario    string
	Samples     int
	Transitions int
	Falls       int
	Resets      int
}

// TracePoint is one acceleration sample of a replay.
type TracePoint struct {
	Offset    time.Duration
	Magnitude float64
	State     fall.State // state after the sample
}

// DecisionPoint marks a non-trivial decision in a replay.
type DecisionPoint struct {
	Offset    time.Duration
	Magnitude float64
	Decision  fall.Decision
}

// ReplayResult is the full outcome of RunReplay.
type ReplayResult struct {
	ReplaySummary
	Trace     []TracePoint
	Decisions []DecisionPoint
}

// RunReplay plays a scenario (built-in name or YAML path) straight through
// a detector, without MQTT, and writes every transition and decision to w.
func RunReplay(w io.Writer, scenario string, settings fall.Settings) (ReplayResult, error) {
	script, err := sim.LoadScript(scenario)
	if err != nil {
		return ReplayResult{}, err
	}
	src, err := sim.NewSource(script, false)
	if err != nil {
		return ReplayResult{}, err
	}

	res := ReplayResult{ReplaySummary: ReplaySummary{Scenario: script.Name}}
	det, err := fall.New(settings, fall.WithTransitionHook(func(t fall.Transition) {
		res.Transitions++
		fmt.Fprintf(w, "%8s  %-18s -> %-18s |a|=%6.2f  %s\n",
			t.At.Sub(sim.Epoch), t.From, t.To, t.Magnitude, t.Reason)
	}))
	if err != nil {
		return ReplayResult{}, err
	}

	for {
		r, err := src.Next()
		if errors.Is(err, sim.ErrEndOfScenario) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Samples++
		if r.HasGyro {
			det.OnGyroscopeSample(r.GyroMagnitude())
		}
		mag := r.AccelMagnitude()
		d := det.OnAccelerationSample(mag, r.Time)
		res.Trace = append(res.Trace, TracePoint{Offset: r.Mono, Magnitude: mag, State: det.State()})

		switch d {
		case fall.DecisionFallConfirmed:
			res.Falls++
			fmt.Fprintf(w, "%8s  FALL CONFIRMED (phase %s)\n", r.Mono, src.Phase())
		case fall.DecisionReset:
			res.Resets++
			fmt.Fprintf(w, "%8s  RESET, wearer moving (phase %s)\n", r.Mono, src.Phase())
		default:
			continue
		}
		res.Decisions = append(res.Decisions, DecisionPoint{Offset: r.Mono, Magnitude: mag, Decision: d})
	}

	fmt.Fprintf(w, "%s: %d samples, %d transitions, %d falls, %d resets\n",
		res.Scenario, res.Samples, res.Transitions, res.Falls, res.Resets)
	return res, nil
}
