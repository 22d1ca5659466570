package api

import (
	"github.com/rustyeddy/tradedesk/market"
	"github.com/rustyeddy/tradedesk/risk"
)

// OrderResponse is returned by order placement and cancellation.
type OrderResponse struct {
	Success  bool             `json:"success"`
	OrderID  string           `json:"orderId,omitempty"`
	Warnings []risk.Violation `json:"warnings,omitempty"`
	Error    string           `json:"error,omitempty"`
	Codes    []string         `json:"codes,omitempty"`
}

// ErrorResponse is returned for all other errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// EmergencyStopRequest is the optional body of POST /risk/emergency-stop.
type EmergencyStopRequest struct {
	Reason string `json:"reason"`
}

// TradingStateResponse reports the result of a stop or resume.
type TradingStateResponse struct {
	Changed bool         `json:"changed"`
	Metrics risk.Metrics `json:"metrics"`
}

// TickRequest accepts one tick or a batch.
type TickRequest struct {
	Ticks []market.Tick `json:"ticks"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// WSSubscribeRequest is sent by a websocket client to pick event kinds.
// A client with no subscriptions receives every kind.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["order", "risk", "alert"]
}
