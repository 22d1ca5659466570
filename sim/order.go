package sim

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradedesk/market"
	"github.com/rustyeddy/tradedesk/risk"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrClosed        = errors.New("engine closed")
)

type Status string

const (
	Pending   Status = "pending"
	Filled    Status = "filled"
	Rejected  Status = "rejected"
	Cancelled Status = "cancelled"
)

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == Filled || s == Rejected || s == Cancelled
}

type Type string

const (
	Market Type = "market"
	Limit  Type = "limit"
	Stop   Type = "stop"
)

// Order origins besides the stop-loss and take-profit trigger reasons.
const OriginManual = "manual"

type Order struct {
	ID                string           `json:"id"`
	Symbol            string           `json:"symbol"`
	Side              market.Side      `json:"side"`
	Type              Type             `json:"type"`
	RequestedQuantity float64          `json:"quantity"`
	LimitPrice        *float64         `json:"limitPrice,omitempty"`
	StopPrice         *float64         `json:"stopPrice,omitempty"`
	Status            Status           `json:"status"`
	CreatedAt         time.Time        `json:"timestamp"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	FilledQuantity    float64          `json:"filledQuantity"`
	AvgFillPrice      *float64         `json:"avgFillPrice,omitempty"`
	RejectReason      string           `json:"rejectReason,omitempty"`
	Reason            string           `json:"reason"`
	Warnings          []risk.Violation `json:"warnings,omitempty"`

	seq uint64
}

func (o *Order) clone() Order {
	c := *o
	c.LimitPrice = copyFloat(o.LimitPrice)
	c.StopPrice = copyFloat(o.StopPrice)
	c.AvgFillPrice = copyFloat(o.AvgFillPrice)
	if o.Warnings != nil {
		c.Warnings = append([]risk.Violation(nil), o.Warnings...)
	}
	return c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// OrderRequest is what a caller submits to PlaceOrder.
type OrderRequest struct {
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	Quantity   float64     `json:"quantity"`
	Type       Type        `json:"type"`
	LimitPrice *float64    `json:"limitPrice,omitempty"`
	StopPrice  *float64    `json:"stopPrice,omitempty"`
}

// normalize cleans up the request and reports malformed fields. Quantity
// and price bounds are left to the risk policy.
func (r OrderRequest) normalize() (OrderRequest, error) {
	var vs []risk.Violation

	r.Symbol = market.NormalizeSymbol(r.Symbol)
	if err := market.ValidateSymbol(r.Symbol); err != nil {
		vs = append(vs, risk.Violation{Code: risk.CodeBadSymbol, Msg: err.Error()})
	}

	side, err := market.ParseSide(string(r.Side))
	if err != nil {
		vs = append(vs, risk.Violation{Code: risk.CodeBadSide, Msg: err.Error()})
	}
	r.Side = side

	r.Type = Type(strings.ToLower(strings.TrimSpace(string(r.Type))))
	switch r.Type {
	case "":
		r.Type = Market
	case Market:
	case Limit:
		if r.LimitPrice == nil {
			vs = append(vs, risk.Violation{Code: risk.CodeBadPrice, Msg: "limit order requires a limit price"})
		}
	case Stop:
		if r.StopPrice == nil {
			vs = append(vs, risk.Violation{Code: risk.CodeBadPrice, Msg: "stop order requires a stop price"})
		}
	default:
		vs = append(vs, risk.Violation{Code: risk.CodeBadOrderType, Msg: fmt.Sprintf("unknown order type %q", r.Type)})
	}

	if len(vs) > 0 {
		return r, &risk.ValidationError{Violations: vs}
	}
	return r, nil
}

// InvalidStateError is returned when an operation needs a pending order.
type InvalidStateError struct {
	OrderID string
	Status  Status
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order %s: status is %s", e.Op, e.OrderID, e.Status)
}
