package risk

import "fmt"

// Settings is the process-wide risk configuration. Percentages are in
// percent: StopLossPercentage 2 means a stop 2% away from entry.
type Settings struct {
	MaxDailyLoss          float64 `json:"maxDailyLoss" yaml:"max_daily_loss"`
	MaxPositionSize       float64 `json:"maxPositionSize" yaml:"max_position_size"`
	StopLossPercentage    float64 `json:"stopLossPercentage" yaml:"stop_loss_percentage"`
	TakeProfitPercentage  float64 `json:"takeProfitPercentage" yaml:"take_profit_percentage"`
	MaxOpenPositions      int     `json:"maxOpenPositions" yaml:"max_open_positions"`
	RiskRewardRatio       float64 `json:"riskRewardRatio" yaml:"risk_reward_ratio"`
	EmergencyStopEnabled  bool    `json:"emergencyStopEnabled" yaml:"emergency_stop_enabled"`
	AutoStopLossEnabled   bool    `json:"autoStopLossEnabled" yaml:"auto_stop_loss_enabled"`
	PositionSizingEnabled bool    `json:"positionSizingEnabled" yaml:"position_sizing_enabled"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxDailyLoss:          1000,
		MaxPositionSize:       10000,
		StopLossPercentage:    2,
		TakeProfitPercentage:  4,
		MaxOpenPositions:      10,
		RiskRewardRatio:       2,
		EmergencyStopEnabled:  true,
		AutoStopLossEnabled:   true,
		PositionSizingEnabled: true,
	}
}

// Validate reports the first malformed field as a *ConfigurationError.
func (s Settings) Validate() error {
	switch {
	case s.MaxDailyLoss <= 0:
		return &ConfigurationError{Field: "maxDailyLoss", Msg: "must be positive"}
	case s.MaxPositionSize <= 0:
		return &ConfigurationError{Field: "maxPositionSize", Msg: "must be positive"}
	case s.StopLossPercentage <= 0 || s.StopLossPercentage >= 100:
		return &ConfigurationError{Field: "stopLossPercentage", Msg: "must be between 0 and 100"}
	case s.TakeProfitPercentage <= 0:
		return &ConfigurationError{Field: "takeProfitPercentage", Msg: "must be positive"}
	case s.MaxOpenPositions <= 0:
		return &ConfigurationError{Field: "maxOpenPositions", Msg: "must be positive"}
	case s.RiskRewardRatio < 0:
		return &ConfigurationError{Field: "riskRewardRatio", Msg: "must not be negative"}
	}
	return nil
}

// SettingsPatch is a partial update; nil fields keep their current value.
type SettingsPatch struct {
	MaxDailyLoss          *float64 `json:"maxDailyLoss,omitempty"`
	MaxPositionSize       *float64 `json:"maxPositionSize,omitempty"`
	StopLossPercentage    *float64 `json:"stopLossPercentage,omitempty"`
	TakeProfitPercentage  *float64 `json:"takeProfitPercentage,omitempty"`
	MaxOpenPositions      *int     `json:"maxOpenPositions,omitempty"`
	RiskRewardRatio       *float64 `json:"riskRewardRatio,omitempty"`
	EmergencyStopEnabled  *bool    `json:"emergencyStopEnabled,omitempty"`
	AutoStopLossEnabled   *bool    `json:"autoStopLossEnabled,omitempty"`
	PositionSizingEnabled *bool    `json:"positionSizingEnabled,omitempty"`
}

// Apply merges p into s and validates the result. On error s is returned
// unchanged alongside the error.
func (s Settings) Apply(p SettingsPatch) (Settings, error) {
	out := s
	if p.MaxDailyLoss != nil {
		out.MaxDailyLoss = *p.MaxDailyLoss
	}
	if p.MaxPositionSize != nil {
		out.MaxPositionSize = *p.MaxPositionSize
	}
	if p.StopLossPercentage != nil {
		out.StopLossPercentage = *p.StopLossPercentage
	}
	if p.TakeProfitPercentage != nil {
		out.TakeProfitPercentage = *p.TakeProfitPercentage
	}
	if p.MaxOpenPositions != nil {
		out.MaxOpenPositions = *p.MaxOpenPositions
	}
	if p.RiskRewardRatio != nil {
		out.RiskRewardRatio = *p.RiskRewardRatio
	}
	if p.EmergencyStopEnabled != nil {
		out.EmergencyStopEnabled = *p.EmergencyStopEnabled
	}
	if p.AutoStopLossEnabled != nil {
		out.AutoStopLossEnabled = *p.AutoStopLossEnabled
	}
	if p.PositionSizingEnabled != nil {
		out.PositionSizingEnabled = *p.PositionSizingEnabled
	}

	if err := out.Validate(); err != nil {
		return s, err
	}
	return out, nil
}

func (s Settings) String() string {
	return fmt.Sprintf("maxDailyLoss=%.2f maxPositionSize=%.2f sl=%.2f%% tp=%.2f%% maxOpen=%d rr=%.2f emergency=%t autoSL=%t sizing=%t",
		s.MaxDailyLoss, s.MaxPositionSize, s.StopLossPercentage, s.TakeProfitPercentage,
		s.MaxOpenPositions, s.RiskRewardRatio, s.EmergencyStopEnabled, s.AutoStopLossEnabled,
		s.PositionSizingEnabled)
}
