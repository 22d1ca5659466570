package feed

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/market"
	"go.uber.org/zap"
)

// DefaultSymbols seeds the mock feed when none are configured.
var DefaultSymbols = map[string]float64{
	"AAPL":  190,
	"MSFT":  410,
	"GOOGL": 140,
	"AMZN":  180,
	"TSLA":  175,
}

// RandomWalk generates mock ticks: each step moves every symbol by a
// normally distributed return with the given volatility.
type RandomWalk struct {
	mu         sync.Mutex
	prices     map[string]float64
	symbols    []string
	volatility float64
	interval   time.Duration
	rng        *rand.Rand
	now        func() time.Time
	log        *zap.Logger
}

// NewRandomWalk starts each symbol at its given price. Volatility is the
// per-step standard deviation as a fraction (0.002 = 0.2%).
func NewRandomWalk(start map[string]float64, volatility float64, interval time.Duration, seed int64, log *zap.Logger) *RandomWalk {
	if len(start) == 0 {
		start = DefaultSymbols
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	w := &RandomWalk{
		prices:     make(map[string]float64, len(start)),
		volatility: volatility,
		interval:   interval,
		rng:        rand.New(rand.NewSource(seed)),
		now:        time.Now,
		log:        log.Named("feed"),
	}
	for s, p := range start {
		sym := market.NormalizeSymbol(s)
		w.prices[sym] = p
		w.symbols = append(w.symbols, sym)
	}
	sort.Strings(w.symbols)
	return w
}

// Symbols returns the generated symbols in sorted order.
func (w *RandomWalk) Symbols() []string {
	return append([]string(nil), w.symbols...)
}

// Next advances every symbol one step and returns the new ticks in
// symbol order.
func (w *RandomWalk) Next() []market.Tick {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	out := make([]market.Tick, 0, len(w.symbols))
	for _, sym := range w.symbols {
		p := w.prices[sym] * math.Exp(w.rng.NormFloat64()*w.volatility)
		p = math.Round(p*100) / 100
		if p < 0.01 {
			p = 0.01
		}
		w.prices[sym] = p
		out = append(out, market.Tick{
			Symbol: sym,
			Price:  p,
			Volume: float64(100 * (1 + w.rng.Intn(50))),
			Time:   now,
		})
	}
	return out
}

// Run emits one round of ticks per interval until ctx is done. Handler
// errors are logged and do not stop the feed.
func (w *RandomWalk) Run(ctx context.Context, h Handler) error {
	w.log.Info("random walk feed started",
		zap.Strings("symbols", w.symbols),
		zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, t := range w.Next() {
				if err := h.OnTick(ctx, t); err != nil {
					w.log.Warn("tick rejected", zap.String("symbol", t.Symbol), zap.Error(err))
				}
			}
		}
	}
}
