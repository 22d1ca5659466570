// Package ledger holds open positions per symbol and marks them to market.
//
// The ledger is not safe for concurrent use; its owner serialises access.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/tradedesk/market"
	"github.com/shopspring/decimal"
)

// Position is a read-only view of a holding.
type Position struct {
	Symbol               string    `json:"symbol"`
	Quantity             float64   `json:"quantity"`
	AvgEntryPrice        float64   `json:"avgEntryPrice"`
	CurrentPrice         float64   `json:"currentPrice"`
	UnrealizedPnL        float64   `json:"unrealizedPnL"`
	UnrealizedPnLPercent float64   `json:"unrealizedPnLPercent"`
	MarketValue          float64   `json:"marketValue"`
	StopLoss             float64   `json:"stopLoss,omitempty"`
	TakeProfit           float64   `json:"takeProfit,omitempty"`
	OpenedAt             time.Time `json:"openedAt"`
	LastUpdated          time.Time `json:"lastUpdated"`
}

// Fill is an executed quantity applied to the ledger.
type Fill struct {
	Symbol   string
	Side     market.Side
	Quantity float64
	Price    float64
	Time     time.Time
}

// Result describes the effect of ApplyFill.
type Result struct {
	// RealizedPnL is only non-zero for sells against a held position.
	RealizedPnL float64
	// ClosedQuantity is the part of a sell matched against the holding.
	ClosedQuantity float64
	// Removed is true when the position was deleted.
	Removed bool
}

type entry struct {
	symbol  string
	qty     decimal.Decimal
	avg     decimal.Decimal
	price   decimal.Decimal
	stop    float64
	target  float64
	exiting bool
	opened  time.Time
	updated time.Time
}

type Ledger struct {
	positions map[string]*entry

	stopLossPct   float64
	takeProfitPct float64
}

// New creates an empty ledger that derives exit levels from the given
// stop-loss and take-profit percentages.
func New(stopLossPct, takeProfitPct float64) *Ledger {
	return &Ledger{
		positions:     make(map[string]*entry),
		stopLossPct:   stopLossPct,
		takeProfitPct: takeProfitPct,
	}
}

// ApplyFill folds a fill into the position for its symbol. Buys open or
// average into the position; sells reduce it and remove it at zero.
// Selling more than is held removes the position, no short is opened.
func (l *Ledger) ApplyFill(f Fill) Result {
	if f.Quantity <= 0 || f.Price <= 0 {
		panic(fmt.Sprintf("ledger: invalid fill %+v", f))
	}

	qty := decimal.NewFromFloat(f.Quantity)
	px := decimal.NewFromFloat(f.Price)

	switch f.Side {
	case market.Buy:
		e, ok := l.positions[f.Symbol]
		if !ok {
			e = &entry{symbol: f.Symbol, qty: qty, avg: px, price: px, opened: f.Time}
			l.positions[f.Symbol] = e
		} else {
			// (oldQty*oldAvg + newQty*price) / (oldQty+newQty)
			total := e.qty.Add(qty)
			e.avg = e.qty.Mul(e.avg).Add(qty.Mul(px)).Div(total)
			e.qty = total
			e.price = px
		}
		e.updated = f.Time
		e.exiting = false
		l.setLevels(e)
		l.assert(e)
		return Result{}

	case market.Sell:
		e, ok := l.positions[f.Symbol]
		if !ok {
			return Result{}
		}
		closed := decimal.Min(qty, e.qty)
		pnl := px.Sub(e.avg).Mul(closed)

		e.qty = e.qty.Sub(qty)
		e.price = px
		e.updated = f.Time
		res := Result{RealizedPnL: pnl.InexactFloat64(), ClosedQuantity: closed.InexactFloat64()}
		if !e.qty.IsPositive() {
			delete(l.positions, f.Symbol)
			res.Removed = true
		}
		return res
	}

	panic(fmt.Sprintf("ledger: unknown side %q", f.Side))
}

// RefreshPrices marks held positions to the given ticks. Ticks for symbols
// that are not held are ignored.
func (l *Ledger) RefreshPrices(ticks ...market.Tick) []string {
	var touched []string
	for _, t := range ticks {
		e, ok := l.positions[t.Symbol]
		if !ok || t.Price <= 0 {
			continue
		}
		e.price = decimal.NewFromFloat(t.Price)
		e.updated = t.Time
		touched = append(touched, t.Symbol)
	}
	return touched
}

// SetLevelPercentages changes the exit percentages and recomputes the
// levels of every open position from its average entry.
func (l *Ledger) SetLevelPercentages(stopLossPct, takeProfitPct float64) {
	l.stopLossPct = stopLossPct
	l.takeProfitPct = takeProfitPct
	for _, e := range l.positions {
		l.setLevels(e)
	}
}

func (l *Ledger) setLevels(e *entry) {
	avg := e.avg.InexactFloat64()
	e.stop = avg * (1 - l.stopLossPct/100)
	e.target = avg * (1 + l.takeProfitPct/100)
}

func (l *Ledger) assert(e *entry) {
	if !e.qty.IsPositive() || !e.avg.IsPositive() {
		panic(fmt.Sprintf("ledger: position %s has qty %s avg %s", e.symbol, e.qty, e.avg))
	}
}

// Trigger is a position whose price crossed an exit level.
type Trigger struct {
	Symbol   string
	Reason   string // "StopLoss" or "TakeProfit"
	Quantity float64
	Price    float64
	Level    float64
}

// Triggered returns positions that crossed their stop-loss or take-profit
// and marks them as exiting so they are reported once. The mark clears on
// the next buy into the position.
func (l *Ledger) Triggered() []Trigger {
	var out []Trigger
	for _, sym := range l.symbols() {
		e := l.positions[sym]
		if e.exiting {
			continue
		}
		price := e.price.InexactFloat64()
		var reason string
		var level float64
		switch {
		case e.stop > 0 && price <= e.stop:
			reason, level = "StopLoss", e.stop
		case e.target > 0 && price >= e.target:
			reason, level = "TakeProfit", e.target
		default:
			continue
		}
		e.exiting = true
		out = append(out, Trigger{
			Symbol:   sym,
			Reason:   reason,
			Quantity: e.qty.InexactFloat64(),
			Price:    price,
			Level:    level,
		})
	}
	return out
}

// ClearExit allows a position to trigger again, e.g. after its exit order
// was rejected.
func (l *Ledger) ClearExit(symbol string) {
	if e, ok := l.positions[symbol]; ok {
		e.exiting = false
	}
}

func (l *Ledger) symbols() []string {
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (e *entry) view() Position {
	qty := e.qty
	cost := qty.Mul(e.avg)
	value := qty.Mul(e.price)
	pnl := e.price.Sub(e.avg).Mul(qty)

	p := Position{
		Symbol:        e.symbol,
		Quantity:      qty.InexactFloat64(),
		AvgEntryPrice: e.avg.InexactFloat64(),
		CurrentPrice:  e.price.InexactFloat64(),
		UnrealizedPnL: pnl.InexactFloat64(),
		MarketValue:   value.InexactFloat64(),
		StopLoss:      e.stop,
		TakeProfit:    e.target,
		OpenedAt:      e.opened,
		LastUpdated:   e.updated,
	}
	if cost.IsPositive() {
		p.UnrealizedPnLPercent = pnl.Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return p
}

// Position returns the holding for symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	e, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return e.view(), true
}

// Positions returns all holdings sorted by symbol.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, sym := range l.symbols() {
		out = append(out, l.positions[sym].view())
	}
	return out
}

func (l *Ledger) Len() int { return len(l.positions) }

func (l *Ledger) Holds(symbol string) bool {
	_, ok := l.positions[symbol]
	return ok
}

// Summary aggregates the holdings.
type Summary struct {
	TotalValue     float64 `json:"totalValue"`
	TotalCost      float64 `json:"totalCost"`
	TotalPL        float64 `json:"totalPL"`
	TotalPLPercent float64 `json:"totalPLPercent"`
	PositionCount  int     `json:"positionCount"`
}

func (l *Ledger) Summary() Summary {
	value, cost := decimal.Zero, decimal.Zero
	for _, e := range l.positions {
		value = value.Add(e.qty.Mul(e.price))
		cost = cost.Add(e.qty.Mul(e.avg))
	}
	pl := value.Sub(cost)

	s := Summary{
		TotalValue:    value.InexactFloat64(),
		TotalCost:     cost.InexactFloat64(),
		TotalPL:       pl.InexactFloat64(),
		PositionCount: len(l.positions),
	}
	if cost.IsPositive() {
		s.TotalPLPercent = pl.Div(cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}
