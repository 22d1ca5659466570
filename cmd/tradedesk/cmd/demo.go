package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradedesk/feed"
	"github.com/rustyeddy/tradedesk/market"
	"github.com/rustyeddy/tradedesk/notify"
	"github.com/rustyeddy/tradedesk/risk"
	"github.com/rustyeddy/tradedesk/sim"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an in-process trading scenario",
	Long: `Run a short scenario against the random-walk feed to see how the desk
behaves: orders are placed and filled, a risk rule rejects an oversized
order, and an emergency stop blocks trading until it is resumed.

Nothing is persisted: the demo uses an in-memory store and journal.

Examples:
  tradedesk demo
  tradedesk demo --duration 20s --seed 7`,
	RunE: runDemo,
}

var (
	demoDuration time.Duration
	demoSeed     int64
)

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().DurationVar(&demoDuration, "duration", 5*time.Second, "how long to let the market run after the orders")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", 1, "random seed for prices and fills")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Store.DSN = "memory"
	cfg.Journal.DSN = "memory"
	cfg.Notify.KafkaBrokers = nil
	cfg.Simulation.MinFillDelay = "100ms"
	cfg.Simulation.MaxFillDelay = "400ms"
	cfg.Simulation.Seed = demoSeed
	cfg.Feed.Seed = demoSeed
	cfg.Feed.Interval = "200ms"

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	out := log.Sugar().Named("demo")

	alerts := notify.NewRecorder(100)
	d, err := newDesk(cmd.Context(), cfg, log, deskOptions{sinks: []notify.Sink{alerts}})
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	walk := feed.NewRandomWalk(cfg.Feed.Symbols, cfg.Feed.Volatility, 200*time.Millisecond, demoSeed, log)
	done := make(chan error, 1)
	go func() { done <- walk.Run(ctx, d.engine) }()

	fmt.Println("=== Trading Desk Demo ===")
	fmt.Println()
	fmt.Printf("Risk settings: %s\n\n", d.engine.Settings())

	if err := waitForPrices(ctx, d.engine, walk.Symbols(), 5*time.Second); err != nil {
		return err
	}

	// Buy a small position in each symbol.
	for _, sym := range walk.Symbols() {
		px, _ := d.engine.LastPrice(sym)
		qty := float64(int(1000 / px))
		if qty < 1 {
			qty = 1
		}
		o, err := d.engine.PlaceOrder(ctx, sim.OrderRequest{Symbol: sym, Side: market.Buy, Quantity: qty})
		if err != nil {
			out.Warnw("order refused", "symbol", sym, "error", err)
			continue
		}
		out.Infow("order placed", "id", o.ID, "symbol", sym, "quantity", o.RequestedQuantity, "warnings", len(o.Warnings))
	}

	// An order far above the position limit is clamped or rejected.
	big := walk.Symbols()[0]
	if o, err := d.engine.PlaceOrder(ctx, sim.OrderRequest{Symbol: big, Side: market.Buy, Quantity: 1_000_000}); err != nil {
		out.Infow("oversized order rejected", "symbol", big, "error", err)
	} else {
		out.Infow("oversized order clamped", "symbol", big, "quantity", o.RequestedQuantity)
	}

	out.Infow("letting the market run", "duration", demoDuration)
	select {
	case <-time.After(demoDuration):
	case <-ctx.Done():
	}

	fmt.Println()
	fmt.Println("Emergency stop:")
	d.engine.EmergencyStop(ctx, "demo")
	_, err = d.engine.PlaceOrder(ctx, sim.OrderRequest{Symbol: big, Side: market.Buy, Quantity: 1})
	var verr *risk.ValidationError
	if errors.As(err, &verr) && verr.Has(risk.CodeEmergencyStop) {
		fmt.Println("  ✓ new orders are blocked")
	}
	d.engine.ResumeTrading(ctx)
	fmt.Println("  ✓ trading resumed")

	cancel()
	if err := <-done; err != nil {
		return err
	}

	printDesk(d.engine)

	fmt.Printf("\nAlerts (%d):\n", len(alerts.Alerts()))
	for _, a := range alerts.Alerts() {
		fmt.Printf("  [%s] %s\n", a.Severity, a.Message)
	}
	return nil
}

func waitForPrices(ctx context.Context, e *sim.Engine, symbols []string, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ready := true
		for _, s := range symbols {
			if _, ok := e.LastPrice(s); !ok {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("no prices after %s", timeout)
		case <-ticker.C:
		}
	}
}

func printDesk(e *sim.Engine) {
	fmt.Println()
	fmt.Println("Positions:")
	fmt.Printf("  %-6s %8s %10s %10s %10s %10s %10s\n", "SYMBOL", "QTY", "AVG", "LAST", "P/L", "STOP", "TARGET")
	for _, p := range e.Positions() {
		fmt.Printf("  %-6s %8.0f %10.2f %10.2f %10.2f %10.2f %10.2f\n",
			p.Symbol, p.Quantity, p.AvgEntryPrice, p.CurrentPrice, p.UnrealizedPnL, p.StopLoss, p.TakeProfit)
	}

	pf := e.PortfolioSummary()
	fmt.Println()
	fmt.Printf("Portfolio: value $%.2f cost $%.2f P/L $%.2f (%.2f%%) pending %d\n",
		pf.TotalValue, pf.TotalCost, pf.TotalPL, pf.TotalPLPercent, pf.PendingOrders)

	m := e.RiskMetrics()
	fmt.Printf("Risk: daily P/L $%.2f trades %d win rate %.1f%% remaining $%.2f level %s\n",
		m.DailyPnL, m.DailyTrades, m.WinRate, m.RemainingDailyLoss, m.RiskLevel)

	var filled, rejected, cancelled int
	for _, o := range e.Orders() {
		switch o.Status {
		case sim.Filled:
			filled++
		case sim.Rejected:
			rejected++
		case sim.Cancelled:
			cancelled++
		}
	}
	fmt.Printf("Orders: %d filled, %d rejected, %d cancelled\n", filled, rejected, cancelled)
}
