package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Querier is implemented by the SQL journals.
type Querier interface {
	GetOrder(orderID string) (OrderRecord, error)
	ListFillsBetween(start, end time.Time) ([]FillRecord, error)
}

const orderColumns = `order_id, symbol, side, order_type, quantity, filled_quantity, limit_price,
	stop_price, avg_fill_price, status, reason, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (OrderRecord, error) {
	var rec OrderRecord
	err := row.Scan(
		&rec.OrderID,
		&rec.Symbol,
		&rec.Side,
		&rec.Type,
		&rec.Quantity,
		&rec.FilledQuantity,
		&rec.LimitPrice,
		&rec.StopPrice,
		&rec.AvgFillPrice,
		&rec.Status,
		&rec.Reason,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}

func scanFills(rows *sql.Rows) ([]FillRecord, error) {
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var rec FillRecord
		if err := rows.Scan(
			&rec.OrderID,
			&rec.Symbol,
			&rec.Side,
			&rec.Quantity,
			&rec.Price,
			&rec.RealizedPL,
			&rec.Time,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder returns the latest record for an order.
func (j *SQLite) GetOrder(orderID string) (OrderRecord, error) {
	row := j.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)

	rec, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OrderRecord{}, fmt.Errorf("order %q: %w", orderID, ErrNotFound)
		}
		return OrderRecord{}, err
	}
	return rec, nil
}

// ListFillsBetween returns fills whose time is within [start, end).
func (j *SQLite) ListFillsBetween(start, end time.Time) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT order_id, symbol, side, quantity, price, realized_pl, time
		FROM fills
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanFills(rows)
}

// Realized sums realized P&L over fills and counts wins and losses.
func Realized(fills []FillRecord) (pnl float64, wins, losses int) {
	for _, f := range fills {
		pnl += f.RealizedPL
		switch {
		case f.RealizedPL > 0:
			wins++
		case f.RealizedPL < 0:
			losses++
		}
	}
	return pnl, wins, losses
}
