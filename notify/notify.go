// Package notify delivers human-readable desk alerts. Delivery is fire and
// forget: sinks never report failures back to the trading core.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Severity string

const (
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

type Alert struct {
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Symbol   string    `json:"symbol,omitempty"`
	OrderID  string    `json:"orderId,omitempty"`
	Code     string    `json:"code,omitempty"`
	Time     time.Time `json:"timestamp"`
}

type Sink interface {
	Notify(ctx context.Context, a Alert)
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, a Alert)

func (f Func) Notify(ctx context.Context, a Alert) { f(ctx, a) }

// Multi fans an alert out to every sink in order.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, a Alert) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, a)
		}
	}
}

// Discard drops every alert.
var Discard Sink = Func(func(context.Context, Alert) {})

// LogSink writes alerts to a zap logger at the matching level.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSink{log: l.Named("alerts")}
}

func (s *LogSink) Notify(_ context.Context, a Alert) {
	fields := []zap.Field{zap.String("severity", string(a.Severity))}
	if a.Symbol != "" {
		fields = append(fields, zap.String("symbol", a.Symbol))
	}
	if a.OrderID != "" {
		fields = append(fields, zap.String("order_id", a.OrderID))
	}
	if a.Code != "" {
		fields = append(fields, zap.String("code", a.Code))
	}

	switch a.Severity {
	case Error:
		s.log.Error(a.Message, fields...)
	case Warning:
		s.log.Warn(a.Message, fields...)
	default:
		s.log.Info(a.Message, fields...)
	}
}

// Recorder keeps the most recent alerts in memory, newest last.
type Recorder struct {
	mu     sync.Mutex
	max    int
	alerts []Alert
}

// NewRecorder keeps up to max alerts (unbounded when max <= 0).
func NewRecorder(max int) *Recorder {
	return &Recorder{max: max}
}

func (r *Recorder) Notify(_ context.Context, a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	if r.max > 0 && len(r.alerts) > r.max {
		r.alerts = append([]Alert(nil), r.alerts[len(r.alerts)-r.max:]...)
	}
}

func (r *Recorder) Alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Reset forgets every recorded alert.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = nil
}
