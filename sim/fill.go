package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/market"
)

// FillResult is the outcome of a simulated execution.
type FillResult struct {
	Filled bool
	Price  float64
	Reason string
}

// FillSimulator decides whether a pending order executes and at what
// market price. Limit orders always fill at their limit price.
type FillSimulator interface {
	Simulate(o Order, marketPrice float64) FillResult
}

// FillFunc adapts a function to a FillSimulator.
type FillFunc func(o Order, marketPrice float64) FillResult

func (f FillFunc) Simulate(o Order, marketPrice float64) FillResult { return f(o, marketPrice) }

// AlwaysFill executes every order at the market price.
var AlwaysFill FillSimulator = FillFunc(func(_ Order, px float64) FillResult {
	return FillResult{Filled: true, Price: px}
})

const (
	DefaultFillProbability = 0.9
	DefaultSlippage        = 0.001
)

// RandomFill fills with the given probability and moves the market price
// against the order by up to Slippage (a fraction of price).
type RandomFill struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probability float64
	slippage    float64
}

func NewRandomFill(probability, slippage float64, seed int64) *RandomFill {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomFill{
		rng:         rand.New(rand.NewSource(seed)),
		probability: probability,
		slippage:    slippage,
	}
}

func (f *RandomFill) Simulate(o Order, px float64) FillResult {
	f.mu.Lock()
	roll := f.rng.Float64()
	slip := f.rng.Float64() * f.slippage
	f.mu.Unlock()

	if roll >= f.probability {
		return FillResult{Reason: "Order rejected by market"}
	}
	if o.Side == market.Sell {
		return FillResult{Filled: true, Price: px * (1 - slip)}
	}
	return FillResult{Filled: true, Price: px * (1 + slip)}
}
