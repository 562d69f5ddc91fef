package strategies

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/market"
)

// Strategy turns the indicator snapshots of the latest closed candle (cur)
// and the one before it (prev) into a Signal. prev is nil when there is no
// earlier snapshot. Implementations must be pure.
type Strategy interface {
	Name() string
	Evaluate(c market.Candle, cur, prev *indicators.Snapshot) Signal
}

// Factory builds a strategy from its configuration.
type Factory func(cfg Config) (Strategy, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register makes a strategy available by name.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Names lists registered strategies.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// StrategyByName constructs a registered strategy.
func StrategyByName(name string, cfg Config) (Strategy, error) {
	regMu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(cfg)
}

func init() {
	Register("confluence", func(cfg Config) (Strategy, error) { return NewConfluence(cfg) })
	Register("noop", func(Config) (Strategy, error) { return Noop{}, nil })
}
