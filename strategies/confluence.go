package strategies

import (
	"fmt"

	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/market"
)

// Weights scale each factor's contribution to signal strength.
type Weights struct {
	EMA    float64 `json:"ema" yaml:"ema"`
	RSI    float64 `json:"rsi" yaml:"rsi"`
	BB     float64 `json:"bb" yaml:"bb"`
	Volume float64 `json:"volume" yaml:"volume"`
}

func (w Weights) total() float64 {
	return w.EMA + w.RSI + w.BB + w.Volume
}

// Config holds the signal thresholds.
type Config struct {
	RSIOversold   float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought" yaml:"rsi_overbought"`

	// BBProximity is the fraction of band width within which the close
	// counts as touching a band.
	BBProximity float64 `json:"bb_proximity" yaml:"bb_proximity"`

	Weights Weights `json:"weights" yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{
		RSIOversold:   30,
		RSIOverbought: 70,
		BBProximity:   0.1,
		Weights:       Weights{EMA: 1, RSI: 1, BB: 1, Volume: 1},
	}
}

func (c Config) Validate() error {
	if c.RSIOversold <= 0 || c.RSIOverbought >= 100 || c.RSIOversold >= c.RSIOverbought {
		return fmt.Errorf("rsi thresholds must satisfy 0 < oversold < overbought < 100")
	}
	if c.BBProximity < 0 || c.BBProximity >= 0.5 {
		return fmt.Errorf("bb_proximity must be within [0, 0.5)")
	}
	w := c.Weights
	if w.EMA < 0 || w.RSI < 0 || w.BB < 0 || w.Volume < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if w.total() <= 0 {
		return fmt.Errorf("weights must sum to a positive value")
	}
	return nil
}

// Confluence requires the EMA crossover, RSI extreme and Bollinger band touch
// to agree on a direction. High volume only adds strength.
type Confluence struct {
	cfg Config
}

func NewConfluence(cfg Config) (*Confluence, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Confluence{cfg: cfg}, nil
}

func (s *Confluence) Name() string { return "confluence" }

func (s *Confluence) Evaluate(c market.Candle, cur, prev *indicators.Snapshot) Signal {
	if cur == nil {
		return noSignal(Reason{Factor: "data", Direction: None, Detail: "no snapshot"})
	}

	ema := s.emaCross(cur, prev)
	rsi := s.rsi(cur)
	bb := s.bands(c.Close, cur.Bands)
	vol := Reason{Factor: "volume", Direction: None, Detail: string(cur.Volume)}

	dir := ema.Direction
	if dir == None || rsi.Direction != dir || bb.Direction != dir {
		return noSignal(ema, rsi, bb, vol)
	}

	w := s.cfg.Weights
	score := w.EMA + w.RSI + w.BB
	if cur.Volume == indicators.BiasHigh {
		vol.Direction = dir
		score += w.Volume
	}
	reasons := []Reason{ema, rsi, bb, vol}
	strength := score / w.total()
	if strength > 1 {
		strength = 1
	}
	return Signal{Direction: dir, Strength: strength, Reasons: reasons}
}

func (s *Confluence) emaCross(cur, prev *indicators.Snapshot) Reason {
	r := Reason{Factor: "ema", Direction: None}
	if prev == nil {
		r.Detail = "no previous snapshot"
		return r
	}

	// Bull cross: fast moves from <= slow to > slow. Bear cross mirrors it.
	lastDiff := prev.EMAFast - prev.EMASlow
	diff := cur.EMAFast - cur.EMASlow
	switch {
	case diff > 0 && lastDiff <= 0:
		r.Direction = Call
		r.Detail = "bullish cross"
	case diff < 0 && lastDiff >= 0:
		r.Direction = Put
		r.Detail = "bearish cross"
	default:
		r.Detail = "no cross"
	}
	return r
}

func (s *Confluence) rsi(cur *indicators.Snapshot) Reason {
	r := Reason{Factor: "rsi", Direction: None, Detail: fmt.Sprintf("%.2f", cur.RSI)}
	switch {
	case cur.RSI < s.cfg.RSIOversold:
		r.Direction = Call
	case cur.RSI > s.cfg.RSIOverbought:
		r.Direction = Put
	}
	return r
}

func (s *Confluence) bands(price float64, b indicators.Bands) Reason {
	r := Reason{Factor: "bb", Direction: None}
	band := s.cfg.BBProximity * b.Width()
	nearLower := price <= b.Lower+band
	nearUpper := price >= b.Upper-band

	switch {
	case nearLower && nearUpper:
		r.Detail = "bands collapsed"
	case nearLower:
		r.Direction = Call
		r.Detail = fmt.Sprintf("near lower %.5f", b.Lower)
	case nearUpper:
		r.Direction = Put
		r.Detail = fmt.Sprintf("near upper %.5f", b.Upper)
	default:
		r.Detail = "inside bands"
	}
	return r
}
