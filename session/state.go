// Package session drives one asset through the trading loop: closed candles
// in, indicator snapshots, strategy signals, risk gating, order placement and
// settlement, and performance bookkeeping out.
package session

import (
	"errors"
	"fmt"
	"strings"
)

// State of a Controller.
type State int

const (
	Idle State = iota
	Connected
	WarmingUp
	Monitoring
	Evaluating
	Executing
	Stopped
)

var stateNames = [...]string{"IDLE", "CONNECTED", "WARMING_UP", "MONITORING", "EVALUATING", "EXECUTING", "STOPPED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

var (
	// ErrSettlementTimeout is reported when an order's settlement did not
	// arrive within its duration plus the settlement grace.
	ErrSettlementTimeout = errors.New("settlement timeout")

	// ErrConnectivity wraps failures to reach the executor or its
	// settlement stream.
	ErrConnectivity = errors.New("connectivity failure")

	ErrStopped      = errors.New("session stopped")
	ErrNotConnected = errors.New("session not connected")
)

// CapPolicy decides what happens once the daily loss cap denies a trade.
type CapPolicy string

const (
	// CapHalt stops the session.
	CapHalt CapPolicy = "halt"
	// CapMonitor keeps evaluating candles; every signal is denied until the
	// day resets.
	CapMonitor CapPolicy = "monitor"
)

func ParseCapPolicy(s string) (CapPolicy, error) {
	switch p := CapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CapHalt, CapMonitor:
		return p, nil
	case "":
		return CapHalt, nil
	}
	return "", fmt.Errorf("unknown daily loss cap policy %q (supported: halt, monitor)", s)
}
