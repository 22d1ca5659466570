package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/tradedesk/events"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/market"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

type harness struct {
	t      *testing.T
	e      *Engine
	clk    *risk.ManualClock
	sched  *ManualScheduler
	alerts *notify.Recorder
	j      *journal.Memory
	store  *risk.MemoryStore
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clk:    risk.NewManualClock(time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)),
		sched:  &ManualScheduler{},
		alerts: notify.NewRecorder(0),
		j:      journal.NewMemory(),
		store:  risk.NewMemoryStore(),
	}
	cfg := Config{
		Settings:      risk.DefaultSettings(),
		SettingsStore: h.store,
		StateStore:    h.store,
		Journal:       h.j,
		Sink:          h.alerts,
		Clock:         h.clk,
		Location:      time.UTC,
		Scheduler:     h.sched,
		Fills:         AlwaysFill,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	h.e = e
	return h
}

func price(v float64) *float64 { return &v }

func (h *harness) tick(symbol string, px float64) {
	h.t.Helper()
	require.NoError(h.t, h.e.OnTick(ctx, market.Tick{Symbol: symbol, Price: px, Time: h.clk.Now()}))
}

func (h *harness) place(req OrderRequest) Order {
	h.t.Helper()
	o, err := h.e.PlaceOrder(ctx, req)
	require.NoError(h.t, err)
	return o
}

// fillAll places and fills a limit order at px.
func (h *harness) trade(symbol string, side market.Side, qty, px float64) Order {
	h.t.Helper()
	o := h.place(OrderRequest{Symbol: symbol, Side: side, Quantity: qty, Type: Limit, LimitPrice: price(px)})
	h.sched.RunAll()
	got, err := h.e.Order(o.ID)
	require.NoError(h.t, err)
	require.Equal(h.t, Filled, got.Status)
	return got
}

func (h *harness) hasAlert(sev notify.Severity, code string) bool {
	for _, a := range h.alerts.Alerts() {
		if a.Severity == sev && (code == "" || a.Code == code) {
			return true
		}
	}
	return false
}

func violationErr(t *testing.T, err error) *risk.ValidationError {
	t.Helper()
	var ve *risk.ValidationError
	require.True(t, errors.As(err, &ve), "want *risk.ValidationError, got %v", err)
	return ve
}

func TestPlaceOrderFillsAsynchronously(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: " aapl", Side: "BUY", Quantity: 10})
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, Pending, o.Status)
	assert.Equal(t, Market, o.Type)
	assert.Equal(t, OriginManual, o.Reason)
	assert.Equal(t, 10.0, o.RequestedQuantity)
	assert.Nil(t, o.AvgFillPrice)
	assert.Equal(t, 1, h.e.PortfolioSummary().PendingOrders)

	delays := h.sched.Delays()
	require.Len(t, delays, 1)
	assert.GreaterOrEqual(t, delays[0], DefaultMinFillDelay)
	assert.LessOrEqual(t, delays[0], DefaultMaxFillDelay)

	assert.Equal(t, 1, h.sched.RunAll())

	got, err := h.e.Order(o.ID)
	require.NoError(t, err)
	assert.Equal(t, Filled, got.Status)
	assert.Equal(t, 10.0, got.FilledQuantity)
	require.NotNil(t, got.AvgFillPrice)
	assert.Equal(t, 100.0, *got.AvgFillPrice)

	p, ok := h.e.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 10.0, p.Quantity)
	assert.Equal(t, 100.0, p.AvgEntryPrice)

	rec, ok := h.j.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, "filled", rec.Status)
	require.Len(t, h.j.Fills(), 1)
	assert.Equal(t, 0.0, h.j.Fills()[0].RealizedPL)

	summary := h.e.PortfolioSummary()
	assert.Equal(t, 0, summary.PendingOrders)
	assert.Equal(t, 1, summary.PositionCount)
	assert.InDelta(t, 1000.0, summary.TotalValue, 1e-9)

	// opening fills do not count as trades
	assert.Equal(t, 0, h.e.DailyState().TradeCount)
	assert.True(t, h.hasAlert(notify.Info, ""))
}

func TestPlaceOrderClampsToMaxPositionSize(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Settings.MaxPositionSize = 300 })
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 5})
	assert.Equal(t, 3.0, o.RequestedQuantity)

	var codes []string
	for _, w := range o.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, risk.CodePositionClamped)
	assert.True(t, h.hasAlert(notify.Warning, risk.CodePositionClamped))

	h.sched.RunAll()
	got, _ := h.e.Order(o.ID)
	assert.Equal(t, 3.0, got.FilledQuantity)
	assert.LessOrEqual(t, got.FilledQuantity, got.RequestedQuantity)
}

func TestDailyLossLimitRejects(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Settings.EmergencyStopEnabled = false })

	h.trade("AAPL", market.Buy, 10, 200)
	sell := h.trade("AAPL", market.Sell, 10, 100)
	assert.Equal(t, Filled, sell.Status)

	d := h.e.DailyState()
	assert.Equal(t, -1000.0, d.RealizedPnL)
	assert.Equal(t, 1, d.TradeCount)
	assert.Equal(t, 1, d.LossCount)
	assert.True(t, h.hasAlert(notify.Warning, risk.CodeNearDailyLimit))

	_, ok := h.e.Position("AAPL")
	assert.False(t, ok, "selling the whole holding removes the position")

	_, err := h.e.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1, Type: Limit, LimitPrice: price(100)})
	ve := violationErr(t, err)
	assert.True(t, ve.Has(risk.CodeDailyLossLimit))
	assert.Len(t, h.e.Orders(), 2, "a rejected placement creates no order")

	m := h.e.RiskMetrics()
	assert.Equal(t, risk.LevelCritical, m.RiskLevel)
	assert.Equal(t, 0.0, m.RemainingDailyLoss)
	assert.Equal(t, 1, m.DailyTrades)
	assert.Equal(t, 0.0, m.WinRate)

	saved, err := h.store.LoadDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1000.0, saved.RealizedPnL)
}

func TestEmergencyDrawdownBlocksTrading(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.trade("AAPL", market.Buy, 10, 200)
	h.trade("AAPL", market.Sell, 10, 115)
	assert.Equal(t, -850.0, h.e.DailyState().RealizedPnL)

	_, err := h.e.PlaceOrder(ctx, OrderRequest{Symbol: "MSFT", Side: market.Buy, Quantity: 1, Type: Limit, LimitPrice: price(10)})
	ve := violationErr(t, err)
	assert.True(t, ve.Has(risk.CodeEmergencyDrawdown))
	assert.False(t, ve.Has(risk.CodeDailyLossLimit))

	m := h.e.RiskMetrics()
	assert.True(t, m.TradingBlocked)
	assert.Equal(t, risk.LevelCritical, m.RiskLevel)
	assert.True(t, h.hasAlert(notify.Error, risk.CodeEmergencyStop))

	_, err = h.e.PlaceOrder(ctx, OrderRequest{Symbol: "MSFT", Side: market.Buy, Quantity: 1, Type: Limit, LimitPrice: price(10)})
	assert.True(t, violationErr(t, err).Has(risk.CodeEmergencyStop))
}

func TestEmergencyStopAndResume(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})

	assert.True(t, h.e.EmergencyStop(ctx, "operator"))
	assert.False(t, h.e.EmergencyStop(ctx, "again"))

	got, _ := h.e.Order(o.ID)
	assert.Equal(t, Cancelled, got.Status)
	assert.Equal(t, "emergency stop", got.RejectReason)
	assert.Equal(t, 0, h.sched.Pending())

	_, err := h.e.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	ve := violationErr(t, err)
	assert.True(t, ve.Has(risk.CodeEmergencyStop))
	assert.Contains(t, ve.Error(), "operator")

	m := h.e.RiskMetrics()
	assert.True(t, m.TradingBlocked)
	assert.Equal(t, "operator", m.BlockReason)

	assert.True(t, h.e.ResumeTrading(ctx))
	assert.False(t, h.e.ResumeTrading(ctx))
	h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
}

func TestEmergencyStopReportedBeforeInputErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	require.True(t, h.e.EmergencyStop(ctx, "operator"))

	_, err := h.e.PlaceOrder(ctx, OrderRequest{Symbol: "", Side: "hold", Quantity: 1})
	ve := violationErr(t, err)
	assert.True(t, ve.Has(risk.CodeEmergencyStop))
	assert.False(t, ve.Has(risk.CodeBadSide))
	assert.False(t, ve.Has(risk.CodeBadSymbol))
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	require.NoError(t, h.e.CancelOrder(ctx, o.ID))
	assert.Equal(t, 0, h.sched.RunAll(), "cancelled order's fill never runs")

	got, _ := h.e.Order(o.ID)
	assert.Equal(t, Cancelled, got.Status)
	assert.Equal(t, 0.0, got.FilledQuantity)

	err := h.e.CancelOrder(ctx, o.ID)
	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, Cancelled, ise.Status)
	assert.Equal(t, o.ID, ise.OrderID)

	assert.ErrorIs(t, h.e.CancelOrder(ctx, "missing"), ErrOrderNotFound)
	_, err = h.e.Order("missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancelAfterFillLoses(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	h.sched.RunAll()

	err := h.e.CancelOrder(ctx, o.ID)
	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, Filled, ise.Status)

	got, _ := h.e.Order(o.ID)
	assert.Equal(t, Filled, got.Status)
}

func TestSimulatedRejection(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) {
		c.Fills = FillFunc(func(Order, float64) FillResult { return FillResult{Reason: "no liquidity"} })
	})
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	h.sched.RunAll()

	got, _ := h.e.Order(o.ID)
	assert.Equal(t, Rejected, got.Status)
	assert.Equal(t, "no liquidity", got.RejectReason)
	assert.Nil(t, got.AvgFillPrice)
	assert.Empty(t, h.e.Positions())
	assert.True(t, h.hasAlert(notify.Error, ""))

	rec, ok := h.j.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, "rejected", rec.Status)
}

func TestLimitOrderFillsAtLimitPrice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Fills = NewRandomFill(1, 0.05, 42) })
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 2, Type: Limit, LimitPrice: price(99.5)})
	h.sched.RunAll()

	got, _ := h.e.Order(o.ID)
	require.NotNil(t, got.AvgFillPrice)
	assert.Equal(t, 99.5, *got.AvgFillPrice)
}

func TestPlaceOrderInputErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	tests := []struct {
		name string
		req  OrderRequest
		code string
	}{
		{"no price", OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1}, risk.CodeNoPrice},
		{"bad side", OrderRequest{Symbol: "AAPL", Side: "hold", Quantity: 1}, risk.CodeBadSide},
		{"bad symbol", OrderRequest{Symbol: "", Side: market.Buy, Quantity: 1}, risk.CodeBadSymbol},
		{"bad type", OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1, Type: "iceberg"}, risk.CodeBadOrderType},
		{"limit without price", OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1, Type: Limit}, risk.CodeBadPrice},
		{"stop without price", OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1, Type: Stop}, risk.CodeBadPrice},
		{"zero quantity", OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 0, LimitPrice: price(10)}, risk.CodeBadQuantity},
		{"negative price", OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1, StopPrice: price(-1)}, risk.CodeBadPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.e.PlaceOrder(ctx, tt.req)
			assert.True(t, violationErr(t, err).Has(tt.code), "%v", err)
		})
	}
	assert.Empty(t, h.e.Orders())
}

func TestOrdersNewestFirst(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1}).ID)
		h.clk.Advance(time.Second)
	}

	got := h.e.Orders()
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)
	assert.Equal(t, ids[0], got[2].ID)
}

func TestOnTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.tick("MSFT", 400)
	assert.Empty(t, h.e.Positions(), "tick for an unheld symbol creates nothing")
	px, ok := h.e.LastPrice("msft")
	assert.True(t, ok)
	assert.Equal(t, 400.0, px)

	h.trade("MSFT", market.Buy, 2, 400)
	h.tick("MSFT", 410)
	p, ok := h.e.Position("MSFT")
	require.True(t, ok)
	assert.Equal(t, 410.0, p.CurrentPrice)
	assert.InDelta(t, 20.0, p.UnrealizedPnL, 1e-9)

	assert.Error(t, h.e.OnTick(ctx, market.Tick{Symbol: "MSFT", Price: 0}))
	assert.Error(t, h.e.OnTick(ctx, market.Tick{Symbol: "", Price: 1}))
}

func TestAutoStopLossExit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)
	h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 10})
	h.sched.RunAll()

	h.tick("AAPL", 97.5)
	orders := h.e.Orders()
	require.Len(t, orders, 2)
	exit := orders[0]
	assert.Equal(t, "StopLoss", exit.Reason)
	assert.Equal(t, market.Sell, exit.Side)
	assert.Equal(t, 10.0, exit.RequestedQuantity)
	assert.Equal(t, Pending, exit.Status)

	h.tick("AAPL", 97)
	assert.Len(t, h.e.Orders(), 2, "one exit per crossing")

	h.sched.RunAll()
	_, ok := h.e.Position("AAPL")
	assert.False(t, ok)

	d := h.e.DailyState()
	assert.Equal(t, 1, d.TradeCount)
	assert.Equal(t, 1, d.LossCount)
	assert.InDelta(t, -30.0, d.RealizedPnL, 1e-9)
	assert.True(t, h.hasAlert(notify.Warning, ""))
}

func TestAutoTakeProfitExit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)
	h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 10})
	h.sched.RunAll()

	h.tick("AAPL", 105)
	h.sched.RunAll()

	d := h.e.DailyState()
	assert.Equal(t, 1, d.WinCount)
	assert.InDelta(t, 50.0, d.RealizedPnL, 1e-9)
	assert.Equal(t, 100.0, h.e.RiskMetrics().WinRate)
}

func TestAutoStopLossDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(c *Config) { c.Settings.AutoStopLossEnabled = false })
	h.tick("AAPL", 100)
	h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 10})
	h.sched.RunAll()

	h.tick("AAPL", 90)
	assert.Len(t, h.e.Orders(), 1)
	assert.True(t, h.hasAlert(notify.Warning, ""))
	_, ok := h.e.Position("AAPL")
	assert.True(t, ok)
}

func TestExitOrdersBypassTradingBlock(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)
	h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 10})
	h.sched.RunAll()

	h.e.EmergencyStop(ctx, "halt")
	h.tick("AAPL", 95)
	h.sched.RunAll()

	_, ok := h.e.Position("AAPL")
	assert.False(t, ok)
}

func TestUpdateRiskSettings(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.trade("AAPL", market.Buy, 10, 100)

	bad := -5.0
	cur, err := h.e.UpdateRiskSettings(ctx, risk.SettingsPatch{MaxDailyLoss: &bad})
	var ce *risk.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "maxDailyLoss", ce.Field)
	assert.Equal(t, risk.DefaultSettings(), cur)
	assert.Equal(t, risk.DefaultSettings(), h.e.Settings())
	_, err = h.store.LoadSettings(ctx)
	assert.ErrorIs(t, err, risk.ErrNotFound)

	sl := 5.0
	next, err := h.e.UpdateRiskSettings(ctx, risk.SettingsPatch{StopLossPercentage: &sl})
	require.NoError(t, err)
	assert.Equal(t, 5.0, next.StopLossPercentage)
	assert.Equal(t, next, h.e.Settings())

	saved, err := h.store.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, saved)

	p, _ := h.e.Position("AAPL")
	assert.InDelta(t, 95.0, p.StopLoss, 1e-9)
}

func TestRestoreDaily(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	require.NoError(t, h.store.SaveDaily(ctx, risk.DailyState{
		RealizedPnL: -200, TradeCount: 2, LossCount: 2, CurrentDrawdown: 200, MaxDrawdown: 200,
		LastResetDate: "2024-05-06",
	}))
	require.NoError(t, h.e.RestoreDaily(ctx))
	assert.Equal(t, -200.0, h.e.DailyState().RealizedPnL)

	// the next trading day starts clean on the first tick
	h.clk.Advance(24 * time.Hour)
	h.tick("AAPL", 100)
	d := h.e.DailyState()
	assert.Equal(t, 0.0, d.RealizedPnL)
	assert.Equal(t, "2024-05-07", d.LastResetDate)

	saved, err := h.store.LoadDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-07", saved.LastResetDate)
}

func TestRestoreDailyStaleSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	require.NoError(t, h.store.SaveDaily(ctx, risk.DailyState{RealizedPnL: -900, LastResetDate: "2024-05-01"}))
	require.NoError(t, h.e.RestoreDaily(ctx))
	assert.Equal(t, 0.0, h.e.DailyState().RealizedPnL)
}

func TestEventsPublished(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ch, unsubscribe := h.e.Bus().Subscribe(64)
	defer unsubscribe()

	h.tick("AAPL", 100)
	h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	h.sched.RunAll()

	kinds := map[string]int{}
	for {
		select {
		case ev := <-ch:
			kinds[ev.Kind]++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, kinds[events.KindOrder], "placed and filled")
	assert.GreaterOrEqual(t, kinds[events.KindPosition], 1)
	assert.GreaterOrEqual(t, kinds[events.KindPortfolio], 1)
}

func TestCloseStopsTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.tick("AAPL", 100)

	o := h.place(OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	require.NoError(t, h.e.Close())
	assert.Equal(t, 0, h.sched.Pending())

	got, _ := h.e.Order(o.ID)
	assert.Equal(t, Pending, got.Status)

	_, err := h.e.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: market.Buy, Quantity: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewEngineRejectsBadSettings(t *testing.T) {
	t.Parallel()
	s := risk.DefaultSettings()
	s.MaxOpenPositions = 0
	_, err := NewEngine(Config{Settings: s})
	var ce *risk.ConfigurationError
	assert.True(t, errors.As(err, &ce))
}
