package strategies

import (
	"fmt"
	"strings"
)

// Direction of a binary option trade.
type Direction string

const (
	Call Direction = "CALL"
	Put  Direction = "PUT"
	None Direction = "NONE"
)

// ParseDirection accepts CALL/PUT/NONE in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case Call, Put, None:
		return d, nil
	}
	return None, fmt.Errorf("unknown direction %q", s)
}

// Reason records one factor's vote on a signal.
type Reason struct {
	Factor    string    `json:"factor"`
	Direction Direction `json:"direction"`
	Detail    string    `json:"detail"`
}

func (r Reason) String() string {
	return fmt.Sprintf("%s=%s (%s)", r.Factor, r.Direction, r.Detail)
}

// Signal is the outcome of evaluating one closed candle.
type Signal struct {
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
	Reasons   []Reason  `json:"reasons"`
}

// Actionable reports whether the signal asks for a trade.
func (s Signal) Actionable() bool {
	return s.Direction == Call || s.Direction == Put
}

// Summary renders the reasons on one line for logs and journals.
func (s Signal) Summary() string {
	parts := make([]string, len(s.Reasons))
	for i, r := range s.Reasons {
		parts[i] = r.String()
	}
	return strings.Join(parts, "; ")
}

func noSignal(reasons ...Reason) Signal {
	return Signal{Direction: None, Reasons: reasons}
}
