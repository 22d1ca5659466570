package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradedesk/market"
	"go.uber.org/zap"
)

// Replay plays recorded ticks from a CSV file:
//
//	time,symbol,price[,volume]
//	2024-05-06T14:30:00Z,AAPL,190.12,300
//
// The header row is optional. Time is RFC 3339.
type Replay struct {
	path  string
	speed float64
	sleep func(ctx context.Context, d time.Duration) error
	log   *zap.Logger
}

// NewReplay creates a replay of path. With speed 0 rows are delivered as
// fast as the handler accepts them; otherwise the recorded gaps between
// rows are divided by speed (1 = real time, 10 = ten times faster).
func NewReplay(path string, speed float64, log *zap.Logger) *Replay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replay{path: path, speed: speed, sleep: sleepCtx, log: log.Named("feed.replay")}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run delivers every row, then returns. A malformed row stops the replay
// with an error; handler errors are logged and skipped.
func (r *Replay) Run(ctx context.Context, h Handler) error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		line int
		prev time.Time
		n    int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			r.log.Info("replay finished", zap.String("path", r.path), zap.Int("ticks", n))
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", r.path, err)
		}
		line++
		if len(row) == 0 || (line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time")) {
			continue
		}

		t, err := parseReplayRow(row)
		if err != nil {
			return fmt.Errorf("%s line %d: %w", r.path, line, err)
		}

		if r.speed > 0 && !prev.IsZero() && t.Time.After(prev) {
			gap := time.Duration(float64(t.Time.Sub(prev)) / r.speed)
			if err := r.sleep(ctx, gap); err != nil {
				return nil
			}
		}
		prev = t.Time

		if ctx.Err() != nil {
			return nil
		}
		if err := h.OnTick(ctx, t); err != nil {
			r.log.Warn("tick rejected", zap.String("symbol", t.Symbol), zap.Int("line", line), zap.Error(err))
			continue
		}
		n++
	}
}

func parseReplayRow(row []string) (market.Tick, error) {
	// Minimum columns: time,symbol,price
	if len(row) < 3 {
		return market.Tick{}, fmt.Errorf("need at least 3 columns (time,symbol,price), got %d", len(row))
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
	if err != nil {
		return market.Tick{}, fmt.Errorf("bad time %q: %w", row[0], err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("bad price %q: %w", row[2], err)
	}

	t := market.Tick{
		Symbol: market.NormalizeSymbol(row[1]),
		Price:  price,
		Time:   ts,
	}
	if len(row) >= 4 && strings.TrimSpace(row[3]) != "" {
		if t.Volume, err = strconv.ParseFloat(strings.TrimSpace(row[3]), 64); err != nil {
			return market.Tick{}, fmt.Errorf("bad volume %q: %w", row[3], err)
		}
	}
	return t, nil
}
