package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/tradedesk/events"
	"github.com/rustyeddy/tradedesk/internal/id"
	"github.com/rustyeddy/tradedesk/journal"
	"github.com/rustyeddy/tradedesk/ledger"
	"github.com/rustyeddy/tradedesk/market"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/risk"
	"go.uber.org/zap"
)

// Config wires an Engine. Nil collaborators fall back to in-memory or
// no-op implementations.
type Config struct {
	Settings      risk.Settings
	SettingsStore risk.SettingsStore
	StateStore    risk.StateStore
	Journal       journal.Journal
	Sink          notify.Sink
	Bus           *events.Bus
	Logger        *zap.Logger

	Clock     risk.Clock
	Location  *time.Location
	Scheduler Scheduler
	Fills     FillSimulator

	MinFillDelay time.Duration
	MaxFillDelay time.Duration
}

// Engine owns orders, positions and the daily risk state. Its mutex is the
// single writer: ticks, fills, cancels and settings changes are applied one
// at a time. Journal writes, alerts and events are collected while the lock
// is held and delivered after it is released.
type Engine struct {
	mu       sync.Mutex
	flushMu  sync.Mutex
	settings risk.Settings
	orders   map[string]*Order
	timers   map[string]Timer
	ledger   *ledger.Ledger
	monitor  *risk.Monitor
	prices   *market.TickStore
	rng      *rand.Rand
	seq      uint64
	closed   bool
	inflight sync.WaitGroup

	store    risk.SettingsStore
	state    risk.StateStore
	journal  journal.Journal
	sink     notify.Sink
	bus      *events.Bus
	log      *zap.Logger
	clock    risk.Clock
	sched    Scheduler
	fills    FillSimulator
	minDelay time.Duration
	maxDelay time.Duration
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Settings == (risk.Settings{}) {
		cfg.Settings = risk.DefaultSettings()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.SettingsStore == nil {
		cfg.SettingsStore = risk.NewMemoryStore()
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Nop{}
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.Discard
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = risk.RealClock{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler{}
	}
	if cfg.Fills == nil {
		cfg.Fills = NewRandomFill(DefaultFillProbability, DefaultSlippage, 0)
	}
	if cfg.MinFillDelay <= 0 && cfg.MaxFillDelay <= 0 {
		cfg.MinFillDelay, cfg.MaxFillDelay = DefaultMinFillDelay, DefaultMaxFillDelay
	}
	if cfg.MaxFillDelay < cfg.MinFillDelay {
		cfg.MaxFillDelay = cfg.MinFillDelay
	}

	s := cfg.Settings
	return &Engine{
		settings: s,
		orders:   make(map[string]*Order),
		timers:   make(map[string]Timer),
		ledger:   ledger.New(s.StopLossPercentage, s.TakeProfitPercentage),
		monitor:  risk.NewMonitor(cfg.Clock, cfg.Location, s.MaxDailyLoss),
		prices:   market.NewTickStore(),
		rng:      rand.New(rand.NewSource(cfg.Clock.Now().UnixNano())),
		store:    cfg.SettingsStore,
		state:    cfg.StateStore,
		journal:  cfg.Journal,
		sink:     cfg.Sink,
		bus:      cfg.Bus,
		log:      cfg.Logger.Named("engine"),
		clock:    cfg.Clock,
		sched:    cfg.Scheduler,
		fills:    cfg.Fills,
		minDelay: cfg.MinFillDelay,
		maxDelay: cfg.MaxFillDelay,
	}, nil
}

// RestoreDaily loads the daily snapshot from the state store. A snapshot
// from an earlier trading day is discarded.
func (e *Engine) RestoreDaily(ctx context.Context) error {
	if e.state == nil {
		return nil
	}
	d, err := e.state.LoadDaily(ctx)
	if errors.Is(err, risk.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load daily state: %w", err)
	}
	e.mu.Lock()
	e.monitor.Restore(d)
	e.mu.Unlock()
	return nil
}

func (e *Engine) Bus() *events.Bus { return e.bus }

// outbox collects side effects produced under the lock.
type outbox struct {
	orders []journal.OrderRecord
	fills  []journal.FillRecord
	alerts []notify.Alert
	events []events.Event
	daily  *risk.DailyState
}

func (o *outbox) alert(now time.Time, sev notify.Severity, code, symbol, orderID, msg string) {
	o.alerts = append(o.alerts, notify.Alert{
		Severity: sev,
		Message:  msg,
		Symbol:   symbol,
		OrderID:  orderID,
		Code:     code,
		Time:     now,
	})
}

func (o *outbox) event(now time.Time, kind string, data any) {
	o.events = append(o.events, events.Event{Kind: kind, Time: now, Data: data})
}

func (o *outbox) order(now time.Time, ord *Order) {
	o.orders = append(o.orders, orderRecord(ord))
	o.event(now, events.KindOrder, ord.clone())
}

func orderRecord(o *Order) journal.OrderRecord {
	rec := journal.OrderRecord{
		OrderID:        o.ID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Quantity:       o.RequestedQuantity,
		FilledQuantity: o.FilledQuantity,
		Status:         string(o.Status),
		Reason:         o.Reason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.RejectReason != "" {
		rec.Reason = o.RejectReason
	}
	if o.LimitPrice != nil {
		rec.LimitPrice = *o.LimitPrice
	}
	if o.StopPrice != nil {
		rec.StopPrice = *o.StopPrice
	}
	if o.AvgFillPrice != nil {
		rec.AvgFillPrice = *o.AvgFillPrice
	}
	return rec
}

// unlockAndFlush releases mu and delivers out. The flush lock is taken
// before mu is released so side effects reach the journal and sinks in the
// order the state changes happened.
func (e *Engine) unlockAndFlush(ctx context.Context, out *outbox) {
	e.flushMu.Lock()
	e.mu.Unlock()
	defer e.flushMu.Unlock()
	e.flush(ctx, out)
}

// flush delivers what was collected under the lock. Failures are logged;
// the trading core never waits on or fails because of a sink.
func (e *Engine) flush(ctx context.Context, out *outbox) {
	for _, r := range out.orders {
		if err := e.journal.RecordOrder(r); err != nil {
			e.log.Warn("journal order", zap.String("order_id", r.OrderID), zap.Error(err))
		}
	}
	for _, r := range out.fills {
		if err := e.journal.RecordFill(r); err != nil {
			e.log.Warn("journal fill", zap.String("order_id", r.OrderID), zap.Error(err))
		}
	}
	if out.daily != nil && e.state != nil {
		if err := e.state.SaveDaily(ctx, *out.daily); err != nil {
			e.log.Warn("save daily state", zap.Error(err))
		}
	}
	for _, a := range out.alerts {
		e.sink.Notify(ctx, a)
	}
	for _, ev := range out.events {
		e.bus.Publish(ev)
	}
}

// PlaceOrder validates the request against the risk policy and, when
// allowed, stores it as pending and schedules its simulated fill. It
// returns without waiting for the fill.
func (e *Engine) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if blocked, reason := e.monitor.Blocked(); blocked {
		return Order{}, tradingBlocked(reason)
	}
	req, err := req.normalize()
	if err != nil {
		return Order{}, err
	}

	var out outbox
	e.mu.Lock()
	o, err := e.placeLocked(req, OriginManual, &out)
	e.unlockAndFlush(ctx, &out)
	return o, err
}

func (e *Engine) placeLocked(req OrderRequest, origin string, out *outbox) (Order, error) {
	if e.closed {
		return Order{}, ErrClosed
	}
	now := e.clock.Now()
	exit := origin != OriginManual

	if blocked, reason := e.monitor.Blocked(); blocked && !exit {
		return Order{}, tradingBlocked(reason)
	}

	ref, ok := e.referencePrice(req)
	if !ok {
		return Order{}, &risk.ValidationError{Violations: []risk.Violation{{
			Code: risk.CodeNoPrice,
			Msg:  "no market price for " + req.Symbol,
		}}}
	}

	qty := req.Quantity
	var warnings []risk.Violation

	// Exits reduce risk and are sized to the holding, so they skip the policy.
	if !exit {
		d := risk.Evaluate(e.settings, risk.Intent{
			Symbol:        req.Symbol,
			Side:          req.Side,
			Quantity:      req.Quantity,
			Price:         ref,
			OpenPositions: e.ledger.Len(),
			HoldsSymbol:   e.ledger.Holds(req.Symbol),
		}, e.monitor.State())

		if !d.Allowed {
			if d.Rejected(risk.CodeEmergencyDrawdown) && e.settings.EmergencyStopEnabled {
				e.emergencyStopLocked(now, "daily drawdown exceeded emergency threshold", out)
			}
			e.log.Info("order rejected",
				zap.String("symbol", req.Symbol),
				zap.String("side", string(req.Side)),
				zap.Float64("quantity", req.Quantity),
				zap.Error(d.Err()))
			return Order{}, d.Err()
		}
		qty = d.AdjustedQuantity
		warnings = d.Warnings
	}

	o := &Order{
		ID:                id.NewAt(now),
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		RequestedQuantity: qty,
		LimitPrice:        copyFloat(req.LimitPrice),
		StopPrice:         copyFloat(req.StopPrice),
		Status:            Pending,
		CreatedAt:         now,
		UpdatedAt:         now,
		Reason:            origin,
		Warnings:          warnings,
	}
	e.seq++
	o.seq = e.seq
	e.orders[o.ID] = o

	for _, w := range warnings {
		out.alert(now, notify.Warning, w.Code, o.Symbol, o.ID, w.Msg)
	}
	out.order(now, o)

	orderID := o.ID
	e.timers[orderID] = e.sched.AfterFunc(e.fillDelay(), func() { e.fill(orderID) })

	e.log.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("type", string(o.Type)),
		zap.Float64("quantity", o.RequestedQuantity),
		zap.String("reason", origin))

	return o.clone(), nil
}

func tradingBlocked(reason string) error {
	return &risk.ValidationError{Violations: []risk.Violation{{
		Code: risk.CodeEmergencyStop,
		Msg:  "trading is blocked: " + reason,
	}}}
}

// referencePrice is the limit price, else the stop price, else the last tick.
func (e *Engine) referencePrice(req OrderRequest) (float64, bool) {
	switch {
	case req.LimitPrice != nil:
		return *req.LimitPrice, true
	case req.StopPrice != nil:
		return *req.StopPrice, true
	}
	return e.prices.Price(req.Symbol)
}

func (e *Engine) fillDelay() time.Duration {
	span := e.maxDelay - e.minDelay
	if span <= 0 {
		return e.minDelay
	}
	return e.minDelay + time.Duration(e.rng.Int63n(int64(span)+1))
}

func (e *Engine) fill(orderID string) {
	var out outbox
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.inflight.Add(1)
	defer e.inflight.Done()
	e.fillLocked(orderID, &out)
	e.unlockAndFlush(context.Background(), &out)
}

func (e *Engine) fillLocked(orderID string, out *outbox) {
	delete(e.timers, orderID)
	o, ok := e.orders[orderID]
	if !ok || o.Status != Pending || e.closed {
		return
	}
	now := e.clock.Now()

	px, ok := e.prices.Price(o.Symbol)
	if !ok {
		px, _ = e.referencePrice(OrderRequest{LimitPrice: o.LimitPrice, StopPrice: o.StopPrice})
	}

	res := e.fills.Simulate(o.clone(), px)
	o.UpdatedAt = now

	if !res.Filled || res.Price <= 0 {
		o.Status = Rejected
		o.RejectReason = res.Reason
		if o.RejectReason == "" {
			o.RejectReason = "Order rejected by market"
		}
		if o.Reason != OriginManual {
			e.ledger.ClearExit(o.Symbol)
		}
		out.order(now, o)
		out.alert(now, notify.Error, "", o.Symbol, o.ID,
			fmt.Sprintf("Order rejected: %s %.0f %s (%s)", strings.ToUpper(string(o.Side)), o.RequestedQuantity, o.Symbol, o.RejectReason))
		e.log.Info("order rejected by simulator", zap.String("order_id", o.ID), zap.String("reason", o.RejectReason))
		return
	}

	price := res.Price
	if o.LimitPrice != nil {
		price = *o.LimitPrice
	}
	o.Status = Filled
	o.FilledQuantity = o.RequestedQuantity
	o.AvgFillPrice = &price

	r := e.ledger.ApplyFill(ledger.Fill{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: o.FilledQuantity,
		Price:    price,
		Time:     now,
	})

	out.order(now, o)
	out.fills = append(out.fills, journal.FillRecord{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       string(o.Side),
		Quantity:   o.FilledQuantity,
		Price:      price,
		RealizedPL: r.RealizedPnL,
		Time:       now,
	})
	out.alert(now, notify.Info, "", o.Symbol, o.ID,
		fmt.Sprintf("Order filled: %s %.0f %s @ %.2f", strings.ToUpper(string(o.Side)), o.FilledQuantity, o.Symbol, price))

	if o.Side == market.Sell && r.ClosedQuantity > 0 {
		approaching := e.monitor.OnFill(r.RealizedPnL, r.RealizedPnL > 0)
		d := e.monitor.State()
		out.daily = &d
		if approaching {
			out.alert(now, notify.Warning, risk.CodeNearDailyLimit, o.Symbol, o.ID,
				fmt.Sprintf("Approaching daily loss limit: realized %.2f of -%.2f", d.RealizedPnL, e.settings.MaxDailyLoss))
		}
		out.event(now, events.KindRisk, e.metricsLocked())
	}
	out.event(now, events.KindPosition, e.ledger.Positions())
	out.event(now, events.KindPortfolio, e.portfolioLocked())

	e.log.Info("order filled",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.Float64("quantity", o.FilledQuantity),
		zap.Float64("price", price),
		zap.Float64("realized_pnl", r.RealizedPnL))
}

// CancelOrder cancels a pending order. Orders that already reached a
// terminal status yield an *InvalidStateError.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	var out outbox
	e.mu.Lock()
	err := e.cancelLocked(orderID, "", &out)
	e.unlockAndFlush(ctx, &out)
	return err
}

func (e *Engine) cancelLocked(orderID, why string, out *outbox) error {
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %s: %w", orderID, ErrOrderNotFound)
	}
	if o.Status.Terminal() {
		return &InvalidStateError{OrderID: orderID, Status: o.Status, Op: "cancel"}
	}
	now := e.clock.Now()

	if t, ok := e.timers[orderID]; ok {
		t.Stop()
		delete(e.timers, orderID)
	}
	o.Status = Cancelled
	o.RejectReason = why
	o.UpdatedAt = now
	if o.Reason != OriginManual {
		e.ledger.ClearExit(o.Symbol)
	}

	out.order(now, o)
	out.alert(now, notify.Info, "", o.Symbol, o.ID, fmt.Sprintf("Order cancelled: %s %s", o.Symbol, o.ID))
	e.log.Info("order cancelled", zap.String("order_id", orderID))
	return nil
}

// Orders returns every order, newest first.
func (e *Engine) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func (e *Engine) Order(orderID string) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
	}
	return o.clone(), nil
}

// OnTick records the price, marks held positions to market and, when
// auto stop-loss is on, places a closing order for each position whose
// stop-loss or take-profit was crossed.
func (e *Engine) OnTick(ctx context.Context, t market.Tick) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.Symbol = market.NormalizeSymbol(t.Symbol)

	var out outbox
	e.mu.Lock()
	e.tickLocked(t, &out)
	e.unlockAndFlush(ctx, &out)
	return nil
}

func (e *Engine) tickLocked(t market.Tick, out *outbox) {
	now := e.clock.Now()
	if t.Time.IsZero() {
		t.Time = now
	}
	if !e.prices.Set(t) {
		return
	}

	if e.monitor.ResetIfNewDay() {
		d := e.monitor.State()
		out.daily = &d
		out.event(now, events.KindRisk, e.metricsLocked())
	}

	if len(e.ledger.RefreshPrices(t)) == 0 {
		return
	}

	for _, tr := range e.ledger.Triggered() {
		label := "Stop loss"
		sev := notify.Warning
		if tr.Reason == "TakeProfit" {
			label = "Take profit"
			sev = notify.Info
		}
		out.alert(now, sev, "", tr.Symbol, "",
			fmt.Sprintf("%s hit on %s at %.2f (level %.2f)", label, tr.Symbol, tr.Price, tr.Level))

		if !e.settings.AutoStopLossEnabled || e.closed {
			continue
		}
		_, err := e.placeLocked(OrderRequest{
			Symbol:   tr.Symbol,
			Side:     market.Sell,
			Quantity: tr.Quantity,
			Type:     Market,
		}, tr.Reason, out)
		if err != nil {
			e.ledger.ClearExit(tr.Symbol)
			e.log.Warn("exit order", zap.String("symbol", tr.Symbol), zap.Error(err))
		}
	}

	out.event(now, events.KindPosition, e.ledger.Positions())
	out.event(now, events.KindPortfolio, e.portfolioLocked())
}

// LastPrice is the most recent tick price for symbol.
func (e *Engine) LastPrice(symbol string) (float64, bool) {
	return e.prices.Price(market.NormalizeSymbol(symbol))
}

func (e *Engine) Positions() []ledger.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Positions()
}

func (e *Engine) Position(symbol string) (ledger.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Position(market.NormalizeSymbol(symbol))
}

// Portfolio is the ledger summary plus the number of pending orders.
type Portfolio struct {
	ledger.Summary
	PendingOrders int `json:"pendingOrders"`
}

func (e *Engine) PortfolioSummary() Portfolio {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.portfolioLocked()
}

func (e *Engine) portfolioLocked() Portfolio {
	p := Portfolio{Summary: e.ledger.Summary()}
	for _, o := range e.orders {
		if o.Status == Pending {
			p.PendingOrders++
		}
	}
	return p
}

func (e *Engine) RiskMetrics() risk.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metricsLocked()
}

func (e *Engine) metricsLocked() risk.Metrics {
	blocked, reason := e.monitor.Blocked()
	return risk.ComputeMetrics(e.settings, e.monitor.State(), blocked, reason)
}

func (e *Engine) DailyState() risk.DailyState {
	return e.monitor.State()
}

func (e *Engine) Settings() risk.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateRiskSettings merges p into the current settings. A malformed patch
// returns a *risk.ConfigurationError and leaves the settings untouched.
// Accepted settings are saved before they take effect.
func (e *Engine) UpdateRiskSettings(ctx context.Context, p risk.SettingsPatch) (risk.Settings, error) {
	var out outbox
	e.mu.Lock()

	next, err := e.settings.Apply(p)
	if err != nil {
		cur := e.settings
		e.mu.Unlock()
		return cur, err
	}
	if err := e.store.SaveSettings(ctx, next); err != nil {
		cur := e.settings
		e.mu.Unlock()
		return cur, fmt.Errorf("save risk settings: %w", err)
	}

	now := e.clock.Now()
	e.settings = next
	e.monitor.SetMaxDailyLoss(next.MaxDailyLoss)
	e.ledger.SetLevelPercentages(next.StopLossPercentage, next.TakeProfitPercentage)

	out.alert(now, notify.Info, "", "", "", "Risk settings updated")
	out.event(now, events.KindRisk, e.metricsLocked())
	out.event(now, events.KindPosition, e.ledger.Positions())
	e.log.Info("risk settings updated", zap.Stringer("settings", next))
	e.unlockAndFlush(ctx, &out)
	return next, nil
}

// EmergencyStop blocks new orders and cancels every pending order. It
// reports whether trading was running before the call.
func (e *Engine) EmergencyStop(ctx context.Context, reason string) bool {
	if reason == "" {
		reason = "manual emergency stop"
	}
	var out outbox
	e.mu.Lock()
	changed := e.emergencyStopLocked(e.clock.Now(), reason, &out)
	e.unlockAndFlush(ctx, &out)
	return changed
}

func (e *Engine) emergencyStopLocked(now time.Time, reason string, out *outbox) bool {
	if !e.monitor.EmergencyStop(reason) {
		return false
	}
	for _, oid := range e.pendingIDsLocked() {
		_ = e.cancelLocked(oid, "emergency stop", out)
	}
	out.alert(now, notify.Error, risk.CodeEmergencyStop, "", "", "EMERGENCY STOP: "+reason)
	out.event(now, events.KindRisk, e.metricsLocked())
	out.event(now, events.KindPortfolio, e.portfolioLocked())
	e.log.Warn("emergency stop", zap.String("reason", reason))
	return true
}

func (e *Engine) pendingIDsLocked() []string {
	var ids []string
	for oid, o := range e.orders {
		if o.Status == Pending {
			ids = append(ids, oid)
		}
	}
	sort.Strings(ids)
	return ids
}

// ResumeTrading clears the trading-blocked flag and reports whether it was set.
func (e *Engine) ResumeTrading(ctx context.Context) bool {
	var out outbox
	e.mu.Lock()
	changed := e.monitor.ResumeTrading()
	if changed {
		now := e.clock.Now()
		out.alert(now, notify.Info, "", "", "", "Trading resumed")
		out.event(now, events.KindRisk, e.metricsLocked())
		e.log.Info("trading resumed")
	}
	e.unlockAndFlush(ctx, &out)
	return changed
}

// Close stops outstanding fill timers and waits for fills already running
// to finish delivering. Pending orders stay pending.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for oid, t := range e.timers {
		t.Stop()
		delete(e.timers, oid)
	}
	e.mu.Unlock()

	e.inflight.Wait()
	return nil
}
