package risk

import (
	"math"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// DailyState accumulates one trading day of realized results.
type DailyState struct {
	RealizedPnL     float64 `json:"realizedPnL"`
	TradeCount      int     `json:"tradeCount"`
	WinCount        int     `json:"winCount"`
	LossCount       int     `json:"lossCount"`
	MaxDrawdown     float64 `json:"maxDrawdown"`
	CurrentDrawdown float64 `json:"currentDrawdown"`
	LastResetDate   string  `json:"lastResetDate"`
}

// Monitor tracks the day's realized P&L and owns the trading-blocked flag.
// Every read and write first rolls the state over if the trading day changed.
type Monitor struct {
	mu       sync.Mutex
	clock    Clock
	loc      *time.Location
	maxLoss  float64
	state    DailyState
	blocked  bool
	blockMsg string
}

// NewMonitor creates a monitor whose trading day is evaluated in loc
// (time.Local when nil).
func NewMonitor(clock Clock, loc *time.Location, maxDailyLoss float64) *Monitor {
	if clock == nil {
		clock = RealClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	m := &Monitor{clock: clock, loc: loc, maxLoss: maxDailyLoss}
	m.state.LastResetDate = m.today()
	return m
}

func (m *Monitor) today() string {
	return m.clock.Now().In(m.loc).Format(dayLayout)
}

// ResetIfNewDay zeroes the counters when the stored day is not today and
// reports whether it did.
func (m *Monitor) ResetIfNewDay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLocked()
}

func (m *Monitor) resetLocked() bool {
	today := m.today()
	if m.state.LastResetDate == today {
		return false
	}
	m.state = DailyState{LastResetDate: today}
	return true
}

// SetMaxDailyLoss updates the limit used for the approaching-limit check.
func (m *Monitor) SetMaxDailyLoss(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxLoss = v
}

// OnFill records a closed trade. It reports whether realized P&L is now at
// or beyond the warning threshold of the daily limit.
func (m *Monitor) OnFill(pnl float64, isWin bool) (approaching bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()

	m.state.TradeCount++
	m.state.RealizedPnL += pnl
	switch {
	case isWin:
		m.state.WinCount++
	case pnl < 0:
		m.state.LossCount++
	}

	m.state.CurrentDrawdown = math.Max(0, -m.state.RealizedPnL)
	m.state.MaxDrawdown = math.Max(m.state.MaxDrawdown, m.state.CurrentDrawdown)

	return m.maxLoss > 0 && m.state.RealizedPnL <= -EmergencyDrawdownFraction*m.maxLoss
}

// State returns a copy of today's state.
func (m *Monitor) State() DailyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return m.state
}

// Restore replaces the state with a snapshot, e.g. one loaded at startup.
// A snapshot from an earlier day is discarded by the rollover.
func (m *Monitor) Restore(s DailyState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.resetLocked()
}

// EmergencyStop blocks new orders until ResumeTrading. It reports whether
// the flag changed.
func (m *Monitor) EmergencyStop(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocked {
		return false
	}
	m.blocked = true
	m.blockMsg = reason
	return true
}

func (m *Monitor) ResumeTrading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.blocked {
		return false
	}
	m.blocked = false
	m.blockMsg = ""
	return true
}

// Blocked reports the trading-blocked flag and the reason it was set.
func (m *Monitor) Blocked() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked, m.blockMsg
}
