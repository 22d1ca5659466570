package ledger

import (
	"testing"
	"time"

	"github.com/rustyeddy/tradedesk/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func buy(sym string, qty, px float64) Fill {
	return Fill{Symbol: sym, Side: market.Buy, Quantity: qty, Price: px, Time: t0}
}

func sell(sym string, qty, px float64) Fill {
	return Fill{Symbol: sym, Side: market.Sell, Quantity: qty, Price: px, Time: t0}
}

func assertNoZeroPositions(t *testing.T, l *Ledger) {
	t.Helper()
	for _, p := range l.Positions() {
		assert.Greater(t, p.Quantity, 0.0, "position %s persisted with quantity %v", p.Symbol, p.Quantity)
	}
}

func TestApplyFill_WeightedAverage(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("X", 10, 100))
	l.ApplyFill(buy("X", 10, 200))

	p, ok := l.Position("X")
	require.True(t, ok)
	assert.Equal(t, 20.0, p.Quantity)
	assert.Equal(t, 150.0, p.AvgEntryPrice)
	assert.Equal(t, 200.0, p.CurrentPrice)
}

func TestApplyFill_SellRemovesAtZero(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("AAPL", 10, 100))

	res := l.ApplyFill(sell("AAPL", 10, 110))
	assert.True(t, res.Removed)
	assert.InDelta(t, 100.0, res.RealizedPnL, 1e-9)
	assert.Equal(t, 10.0, res.ClosedQuantity)

	_, ok := l.Position("AAPL")
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
	assertNoZeroPositions(t, l)
}

func TestApplyFill_PartialSellKeepsAverage(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("AAPL", 10, 100))
	res := l.ApplyFill(sell("AAPL", 4, 90))

	assert.False(t, res.Removed)
	assert.InDelta(t, -40.0, res.RealizedPnL, 1e-9)

	p, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 6.0, p.Quantity)
	assert.Equal(t, 100.0, p.AvgEntryPrice)
}

func TestApplyFill_OversellClampsToRemoval(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("AAPL", 5, 100))
	res := l.ApplyFill(sell("AAPL", 8, 120))

	assert.True(t, res.Removed)
	assert.Equal(t, 5.0, res.ClosedQuantity)
	assert.InDelta(t, 100.0, res.RealizedPnL, 1e-9, "P&L only on the held quantity")
	assert.False(t, l.Holds("AAPL"))
	assertNoZeroPositions(t, l)
}

func TestApplyFill_SellWithoutPositionIsNoop(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	res := l.ApplyFill(sell("AAPL", 5, 100))
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 0, l.Len())
}

func TestApplyFill_InvalidFillPanics(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	assert.Panics(t, func() { l.ApplyFill(buy("AAPL", 0, 100)) })
	assert.Panics(t, func() { l.ApplyFill(Fill{Symbol: "AAPL", Side: "hold", Quantity: 1, Price: 1}) })
}

func TestRefreshPrices(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("AAPL", 10, 100))

	t1 := t0.Add(time.Minute)
	touched := l.RefreshPrices(
		market.Tick{Symbol: "AAPL", Price: 110, Time: t1},
		market.Tick{Symbol: "MSFT", Price: 400, Time: t1},
	)
	assert.Equal(t, []string{"AAPL"}, touched)

	p, ok := l.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 110.0, p.CurrentPrice)
	assert.InDelta(t, 1100.0, p.MarketValue, 1e-9)
	assert.InDelta(t, 100.0, p.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, p.UnrealizedPnLPercent, 1e-9)
	assert.Equal(t, t1, p.LastUpdated)

	_, ok = l.Position("MSFT")
	assert.False(t, ok, "tick for unheld symbol must not create a position")
	assert.Equal(t, 1, l.Len())
}

func TestTriggered(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("AAPL", 10, 100))
	l.ApplyFill(buy("MSFT", 1, 400))

	p, _ := l.Position("AAPL")
	assert.InDelta(t, 98.0, p.StopLoss, 1e-9)
	assert.InDelta(t, 104.0, p.TakeProfit, 1e-9)

	l.RefreshPrices(
		market.Tick{Symbol: "AAPL", Price: 97.5},
		market.Tick{Symbol: "MSFT", Price: 420},
	)

	got := l.Triggered()
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "StopLoss", got[0].Reason)
	assert.Equal(t, 10.0, got[0].Quantity)
	assert.Equal(t, "MSFT", got[1].Symbol)
	assert.Equal(t, "TakeProfit", got[1].Reason)

	assert.Empty(t, l.Triggered(), "reported once")

	l.ClearExit("AAPL")
	again := l.Triggered()
	require.Len(t, again, 1)
	assert.Equal(t, "AAPL", again[0].Symbol)
}

func TestSetLevelPercentages(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	l.ApplyFill(buy("AAPL", 10, 100))
	l.SetLevelPercentages(5, 10)

	p, _ := l.Position("AAPL")
	assert.InDelta(t, 95.0, p.StopLoss, 1e-9)
	assert.InDelta(t, 110.0, p.TakeProfit, 1e-9)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	l := New(2, 4)
	assert.Equal(t, Summary{}, l.Summary())

	l.ApplyFill(buy("AAPL", 10, 100))
	l.ApplyFill(buy("MSFT", 2, 400))
	l.RefreshPrices(market.Tick{Symbol: "AAPL", Price: 110}, market.Tick{Symbol: "MSFT", Price: 350})

	s := l.Summary()
	assert.InDelta(t, 1800.0, s.TotalValue, 1e-9)
	assert.InDelta(t, 1800.0, s.TotalCost, 1e-9)
	assert.InDelta(t, 0.0, s.TotalPL, 1e-9)
	assert.Equal(t, 2, s.PositionCount)

	l.RefreshPrices(market.Tick{Symbol: "MSFT", Price: 400})
	s = l.Summary()
	assert.InDelta(t, 100.0, s.TotalPL, 1e-9)
	assert.InDelta(t, 100.0*100/1800, s.TotalPLPercent, 1e-9)
}
