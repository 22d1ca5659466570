package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rustyeddy/tradedesk/risk"
)

// keys: risk:settings, risk:daily
var (
	kSettings = []byte("risk:settings")
	kDaily    = []byte("risk:daily")
)

type Pebble struct {
	db *pebble.DB
}

func NewPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Pebble{db: db}, nil
}

func (s *Pebble) Close() error { return s.db.Close() }

func (s *Pebble) get(key []byte, out any) error {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return risk.ErrNotFound
		}
		return err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Pebble) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Pebble) LoadSettings(ctx context.Context) (risk.Settings, error) {
	var out risk.Settings
	err := s.get(kSettings, &out)
	return out, err
}

func (s *Pebble) SaveSettings(ctx context.Context, v risk.Settings) error {
	return s.put(kSettings, v)
}

func (s *Pebble) LoadDaily(ctx context.Context) (risk.DailyState, error) {
	var out risk.DailyState
	err := s.get(kDaily, &out)
	return out, err
}

func (s *Pebble) SaveDaily(ctx context.Context, d risk.DailyState) error {
	return s.put(kDaily, d)
}
