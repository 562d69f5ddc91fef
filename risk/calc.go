package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/strategies"
)

// RewardModel selects how a proposal's reward and risk are measured.
type RewardModel string

const (
	// ModelBands measures distance to the Bollinger bands: a CALL has the
	// upper band as reward and the lower band as risk, a PUT the reverse.
	ModelBands RewardModel = "bands"

	// ModelPayout uses the option payout: reward is amount*payout_rate and
	// risk is the amount staked.
	ModelPayout RewardModel = "payout"
)

func ParseRewardModel(s string) (RewardModel, error) {
	switch m := RewardModel(strings.ToLower(strings.TrimSpace(s))); m {
	case ModelBands, ModelPayout:
		return m, nil
	case "":
		return ModelBands, nil
	}
	return "", fmt.Errorf("unknown reward model %q (supported: bands, payout)", s)
}

// Proposal is a candidate trade with its estimated reward and risk.
type Proposal struct {
	Direction strategies.Direction
	Reward    float64
	Risk      float64
}

// RR is the reward-to-risk ratio. A proposal with no risk and some reward is
// unbounded; one with neither is worthless.
func (p Proposal) RR() float64 {
	return RR(p.Reward, p.Risk)
}

func RR(reward, risk float64) float64 {
	if risk <= 0 {
		if reward > 0 {
			return math.Inf(1)
		}
		return 0
	}
	if reward <= 0 {
		return 0
	}
	return reward / risk
}

// Propose estimates reward and risk for trading dir at price.
func Propose(model RewardModel, dir strategies.Direction, price float64, b indicators.Bands, amount, payoutRate float64) Proposal {
	p := Proposal{Direction: dir}
	switch model {
	case ModelPayout:
		p.Reward = amount * payoutRate
		p.Risk = amount
	default:
		switch dir {
		case strategies.Call:
			p.Reward = b.Upper - price
			p.Risk = price - b.Lower
		case strategies.Put:
			p.Reward = price - b.Lower
			p.Risk = b.Upper - price
		}
	}
	return p
}
