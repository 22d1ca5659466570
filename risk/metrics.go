package risk

// Risk levels reported with the metrics.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// Metrics summarises the day for the dashboard.
type Metrics struct {
	DailyPnL           float64 `json:"dailyPnl"`
	DailyTrades        int     `json:"dailyTrades"`
	WinRate            float64 `json:"winRate"`
	AvgTrade           float64 `json:"avgTrade"`
	MaxDrawdown        float64 `json:"maxDrawdown"`
	RemainingDailyLoss float64 `json:"remainingDailyLoss"`
	RiskLevel          string  `json:"riskLevel"`
	TradingBlocked     bool    `json:"tradingBlocked"`
	BlockReason        string  `json:"blockReason,omitempty"`
}

// ComputeMetrics derives the dashboard metrics from the day's state.
func ComputeMetrics(s Settings, d DailyState, blocked bool, reason string) Metrics {
	m := Metrics{
		DailyPnL:       d.RealizedPnL,
		DailyTrades:    d.TradeCount,
		MaxDrawdown:    d.MaxDrawdown,
		TradingBlocked: blocked,
		BlockReason:    reason,
	}
	if d.TradeCount > 0 {
		m.WinRate = 100 * float64(d.WinCount) / float64(d.TradeCount)
		m.AvgTrade = d.RealizedPnL / float64(d.TradeCount)
	}

	m.RemainingDailyLoss = s.MaxDailyLoss + d.RealizedPnL
	if m.RemainingDailyLoss < 0 {
		m.RemainingDailyLoss = 0
	}
	m.RiskLevel = Level(s, d, blocked)
	return m
}

// Level grades how much of the daily loss budget is used.
func Level(s Settings, d DailyState, blocked bool) string {
	if blocked || s.MaxDailyLoss <= 0 {
		return LevelCritical
	}
	used := -d.RealizedPnL / s.MaxDailyLoss
	switch {
	case used >= 1:
		return LevelCritical
	case used >= EmergencyDrawdownFraction:
		return LevelHigh
	case used >= 0.5:
		return LevelMedium
	}
	return LevelLow
}
