package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO orders
		(order_id, symbol, side, order_type, quantity, filled_quantity, limit_price, stop_price,
		 avg_fill_price, status, reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.FilledQuantity, o.LimitPrice,
		o.StopPrice, o.AvgFillPrice, o.Status, o.Reason, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	return err
}

// Times are stored in UTC so range queries compare like with like.
func (j *SQLite) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(order_id, symbol, side, quantity, price, realized_pl, time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Symbol, f.Side, f.Quantity, f.Price, f.RealizedPL, f.Time.UTC(),
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
