package risk

import (
	"fmt"

	"github.com/rustyeddy/tradedesk/market"
)

// Violation codes.
const (
	CodeBadQuantity       = "BAD_QUANTITY"
	CodeBadPrice          = "BAD_PRICE"
	CodeNoPrice           = "NO_PRICE"
	CodeDailyLossLimit    = "DAILY_LOSS_LIMIT"
	CodeEmergencyDrawdown = "EMERGENCY_DRAWDOWN"
	CodeEmergencyStop     = "EMERGENCY_STOP"
	CodePositionTooSmall  = "POSITION_TOO_SMALL"
	CodeBadSymbol         = "BAD_SYMBOL"
	CodeBadSide           = "BAD_SIDE"
	CodeBadOrderType      = "BAD_ORDER_TYPE"

	CodePositionClamped = "POSITION_CLAMPED"
	CodePositionTooBig  = "POSITION_TOO_LARGE"
	CodeRRTooLow        = "RR_TOO_LOW"
	CodeTooManyOpen     = "TOO_MANY_OPEN_POSITIONS"
	CodeNearDailyLimit  = "NEAR_DAILY_LOSS_LIMIT"
)

// EmergencyDrawdownFraction of MaxDailyLoss at which the drawdown check and
// the approaching-limit warning fire.
const EmergencyDrawdownFraction = 0.8

type Violation struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

// Intent is a proposed trade as seen by the policy.
type Intent struct {
	Symbol   string
	Side     market.Side
	Quantity float64
	Price    float64

	// Portfolio context for the exposure warning.
	OpenPositions int
	HoldsSymbol   bool
}

type Decision struct {
	Allowed  bool
	Warnings []Violation
	Errors   []Violation

	AdjustedQuantity    float64
	SuggestedStopLoss   float64
	SuggestedTakeProfit float64
	RiskReward          float64
}

func (d *Decision) reject(code, msg string) {
	d.Errors = append(d.Errors, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

func (d *Decision) warn(code, msg string) {
	d.Warnings = append(d.Warnings, Violation{Code: code, Msg: msg})
}

// Rejected reports whether code is among the errors.
func (d Decision) Rejected(code string) bool {
	for _, v := range d.Errors {
		if v.Code == code {
			return true
		}
	}
	return false
}

// Err returns the rejection as a *ValidationError, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ValidationError{Violations: d.Errors}
}

// Evaluate checks a proposed trade against the settings and the day's
// realized results. It has no side effects.
func Evaluate(s Settings, in Intent, daily DailyState) Decision {
	d := Decision{Allowed: true, AdjustedQuantity: in.Quantity}

	if in.Quantity <= 0 {
		d.reject(CodeBadQuantity, fmt.Sprintf("quantity %.4f must be positive", in.Quantity))
	}
	if in.Price <= 0 {
		d.reject(CodeBadPrice, fmt.Sprintf("price %.4f must be positive", in.Price))
	}

	// Circuit breakers
	if daily.RealizedPnL <= -s.MaxDailyLoss {
		d.reject(CodeDailyLossLimit,
			fmt.Sprintf("daily loss limit reached: realized %.2f <= -%.2f", daily.RealizedPnL, s.MaxDailyLoss))
	}
	if s.EmergencyStopEnabled && daily.CurrentDrawdown > EmergencyDrawdownFraction*s.MaxDailyLoss {
		d.reject(CodeEmergencyDrawdown,
			fmt.Sprintf("drawdown %.2f exceeds %.0f%% of daily loss limit %.2f",
				daily.CurrentDrawdown, 100*EmergencyDrawdownFraction, s.MaxDailyLoss))
	}

	if in.Quantity <= 0 || in.Price <= 0 {
		return d
	}

	// Position size
	value := in.Price * in.Quantity
	if adj, over := ClampQuantity(in.Quantity, in.Price, s.MaxPositionSize); over {
		if s.PositionSizingEnabled {
			d.AdjustedQuantity = adj
			if adj <= 0 {
				d.reject(CodePositionTooSmall,
					fmt.Sprintf("price %.2f exceeds max position size %.2f", in.Price, s.MaxPositionSize))
			} else {
				d.warn(CodePositionClamped,
					fmt.Sprintf("position value %.2f exceeds max %.2f; quantity reduced from %.0f to %.0f",
						value, s.MaxPositionSize, in.Quantity, adj))
			}
		} else {
			d.warn(CodePositionTooBig,
				fmt.Sprintf("position value %.2f exceeds max %.2f", value, s.MaxPositionSize))
		}
	}

	// Suggested exits and RR
	d.SuggestedStopLoss, d.SuggestedTakeProfit = Levels(in.Side, in.Price, s.StopLossPercentage, s.TakeProfitPercentage)
	d.RiskReward = RR(in.Price, d.SuggestedStopLoss, d.SuggestedTakeProfit)
	if d.RiskReward < s.RiskRewardRatio-ratioTolerance {
		d.warn(CodeRRTooLow,
			fmt.Sprintf("risk/reward %.2f below minimum %.2f", d.RiskReward, s.RiskRewardRatio))
	}

	// Exposure
	if in.Side == market.Buy && !in.HoldsSymbol && in.OpenPositions >= s.MaxOpenPositions {
		d.warn(CodeTooManyOpen,
			fmt.Sprintf("open positions %d >= max %d", in.OpenPositions, s.MaxOpenPositions))
	}

	return d
}
