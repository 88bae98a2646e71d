package fall

import "fmt"

// MarshalText encodes the state by name so it reads well in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateNormal, StateFreeFall, StateImpact, StateStationaryCheck} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("fall: unknown state %q", b)
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Decision) UnmarshalText(b []byte) error {
	for _, v := range []Decision{DecisionNone, DecisionFallConfirmed, DecisionReset} {
		if v.String() == string(b) {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("fall: unknown decision %q", b)
}
