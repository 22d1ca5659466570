// Package feed delivers market ticks to the desk.
package feed

import (
	"context"

	"github.com/rustyeddy/tradedesk/market"
)

// Handler consumes ticks. The engine is the usual handler.
type Handler interface {
	OnTick(ctx context.Context, t market.Tick) error
}

type HandlerFunc func(ctx context.Context, t market.Tick) error

func (f HandlerFunc) OnTick(ctx context.Context, t market.Tick) error { return f(ctx, t) }

// Source pushes ticks into a handler until ctx is done.
type Source interface {
	Run(ctx context.Context, h Handler) error
}
