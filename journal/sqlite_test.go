package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('orders','fills')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())
	assert.True(t, found["orders"])
	assert.True(t, found["fills"])
}

func TestSQLiteRecordOrderUpserts(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	created := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	rec := OrderRecord{
		OrderID:   "O1",
		Symbol:    "AAPL",
		Side:      "buy",
		Type:      "market",
		Quantity:  10,
		Status:    "pending",
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, j.RecordOrder(rec))

	rec.Status = "filled"
	rec.FilledQuantity = 10
	rec.AvgFillPrice = 101.5
	rec.UpdatedAt = created.Add(2 * time.Second)
	require.NoError(t, j.RecordOrder(rec))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&n))
	assert.Equal(t, 1, n)

	var status string
	var avg float64
	require.NoError(t, db.QueryRow(`SELECT status, avg_fill_price FROM orders WHERE order_id = 'O1'`).Scan(&status, &avg))
	assert.Equal(t, "filled", status)
	assert.Equal(t, 101.5, avg)
}

func TestSQLiteRecordFill(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	at := time.Date(2024, 5, 1, 14, 0, 3, 0, time.UTC)
	require.NoError(t, j.RecordFill(FillRecord{
		OrderID:    "O2",
		Symbol:     "AAPL",
		Side:       "sell",
		Quantity:   10,
		Price:      110,
		RealizedPL: 85,
		Time:       at,
	}))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var orderID string
	var pl float64
	require.NoError(t, db.QueryRow(`SELECT order_id, realized_pl FROM fills`).Scan(&orderID, &pl))
	assert.Equal(t, "O2", orderID)
	assert.Equal(t, 85.0, pl)
}
