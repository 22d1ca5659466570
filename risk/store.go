package risk

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by stores that have nothing saved yet.
var ErrNotFound = errors.New("not found")

// SettingsStore persists Settings across restarts.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// StateStore optionally snapshots the daily state so a restart within the
// same trading day keeps its counters.
type StateStore interface {
	LoadDaily(ctx context.Context) (DailyState, error)
	SaveDaily(ctx context.Context, d DailyState) error
}

// LoadOrDefault returns the stored settings, or def when none were saved.
func LoadOrDefault(ctx context.Context, st SettingsStore, def Settings) (Settings, error) {
	s, err := st.LoadSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	if err := s.Validate(); err != nil {
		return def, err
	}
	return s, nil
}

// MemoryStore keeps settings and daily state for the life of the process.
type MemoryStore struct {
	mu       sync.Mutex
	settings *Settings
	daily    *DailyState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LoadSettings(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return Settings{}, ErrNotFound
	}
	return *m.settings, nil
}

func (m *MemoryStore) SaveSettings(ctx context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *MemoryStore) LoadDaily(ctx context.Context) (DailyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.daily == nil {
		return DailyState{}, ErrNotFound
	}
	return *m.daily, nil
}

func (m *MemoryStore) SaveDaily(ctx context.Context, d DailyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily = &d
	return nil
}
