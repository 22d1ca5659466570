package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyeddy/tradedesk/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the shared contract against a backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.LoadSettings(ctx)
	assert.ErrorIs(t, err, risk.ErrNotFound)
	_, err = s.LoadDaily(ctx)
	assert.ErrorIs(t, err, risk.ErrNotFound)

	settings := risk.DefaultSettings()
	settings.MaxDailyLoss = 750
	settings.AutoStopLossEnabled = false
	require.NoError(t, s.SaveSettings(ctx, settings))

	got, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, got)

	daily := risk.DailyState{
		RealizedPnL:     -120.5,
		TradeCount:      3,
		WinCount:        1,
		LossCount:       2,
		MaxDrawdown:     150,
		CurrentDrawdown: 120.5,
		LastResetDate:   "2024-05-01",
	}
	require.NoError(t, s.SaveDaily(ctx, daily))

	gotDaily, err := s.LoadDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, daily, gotDaily)

	// settings survive a daily write
	got, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, got)
}

func TestFileStoreJSON(t *testing.T) {
	t.Parallel()
	exercise(t, NewFile(filepath.Join(t.TempDir(), "state.json")))
}

func TestFileStoreYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	exercise(t, NewFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_daily_loss: 750")
}

func TestFileStoreCorrupt(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFile(path).LoadSettings(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, risk.ErrNotFound)
}

func TestPebbleStore(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := NewPebble(dir)
	require.NoError(t, err)
	exercise(t, s)
	require.NoError(t, s.Close())

	// reopen keeps data
	s, err = NewPebble(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 750.0, got.MaxDailyLoss)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	s, err := Open("memory")
	require.NoError(t, err)
	exercise(t, s)
	assert.NoError(t, s.Close())
}

func TestOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := Open("file:" + filepath.Join(dir, "s.yaml"))
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open("pebble:" + filepath.Join(dir, "db"))
	require.NoError(t, err)
	assert.IsType(t, &Pebble{}, s)
	assert.NoError(t, s.Close())

	_, err = Open("etcd://x")
	assert.Error(t, err)
}
