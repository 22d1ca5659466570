// Package store persists risk settings and the daily risk state.
package store

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/tradedesk/risk"
)

// Store is implemented by every backend in this package.
type Store interface {
	risk.SettingsStore
	risk.StateStore
	Close() error
}

type memory struct {
	*risk.MemoryStore
}

func (memory) Close() error { return nil }

// Open picks a backend from a DSN:
//
//	memory                 process lifetime only
//	file:<path>            YAML or JSON file by extension
//	pebble:<dir>           embedded key-value store
//	redis://host:port/db   Redis
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return memory{risk.NewMemoryStore()}, nil
	case strings.HasPrefix(dsn, "file:"):
		return NewFile(strings.TrimPrefix(dsn, "file:")), nil
	case strings.HasPrefix(dsn, "pebble:"):
		return NewPebble(strings.TrimPrefix(dsn, "pebble:"))
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return NewRedisURL(dsn)
	}
	return nil, fmt.Errorf("store: unsupported dsn %q", dsn)
}
