package market

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNoPrice = errors.New("price not found")

// Tick is one observation from the market data feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"timestamp"`
}

// Validate reports a malformed symbol or a non-positive price. The symbol
// is checked in normalized form.
func (t Tick) Validate() error {
	sym := NormalizeSymbol(t.Symbol)
	if err := ValidateSymbol(sym); err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	if t.Price <= 0 {
		return fmt.Errorf("tick %s: price %.4f must be positive", sym, t.Price)
	}
	return nil
}

// TickStore keeps the latest tick per symbol. Ticks older than the one
// already stored for a symbol are ignored.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

// Set stores t and reports whether it replaced the previous tick.
func (ts *TickStore) Set(t Tick) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if prev, ok := ts.ticks[t.Symbol]; ok && !t.Time.IsZero() && t.Time.Before(prev.Time) {
		return false
	}
	ts.ticks[t.Symbol] = t
	return true
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoPrice
	}
	return t, nil
}

// Price is Get without the tick metadata.
func (ts *TickStore) Price(symbol string) (float64, bool) {
	t, err := ts.Get(symbol)
	if err != nil {
		return 0, false
	}
	return t.Price, true
}
