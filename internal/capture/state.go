package capture

import "fmt"

// State is the processing state of the capture session.
//
//	Live -> Captured -> (Detecting) -> Reviewing -> Rectified
//
// Retake returns to Live from any state.
type State int

const (
	Live State = iota
	Captured
	Detecting
	Reviewing
	Rectified
)

var stateNames = [...]string{
	Live:      "live",
	Captured:  "captured",
	Detecting: "detecting",
	Reviewing: "reviewing",
	Rectified: "rectified",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}
