// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

var (
	orderHeader = []string{"order_id", "symbol", "side", "type", "quantity", "filled_quantity", "limit_price",
		"stop_price", "avg_fill_price", "status", "reason", "created_at", "updated_at"}
	fillHeader = []string{"order_id", "symbol", "side", "quantity", "price", "realized_pl", "time"}
)

// CSVJournal appends every order write as a new row; the last row for an
// order id is its current state.
type CSVJournal struct {
	orders *csv.Writer
	fills  *csv.Writer
	of, ff *os.File
}

func NewCSV(ordersPath, fillsPath string) (*CSVJournal, error) {
	of, err := os.Create(ordersPath)
	if err != nil {
		return nil, err
	}
	ff, err := os.Create(fillsPath)
	if err != nil {
		of.Close()
		return nil, err
	}

	ow := csv.NewWriter(of)
	fw := csv.NewWriter(ff)

	if err := ow.Write(orderHeader); err != nil {
		return nil, err
	}
	if err := fw.Write(fillHeader); err != nil {
		return nil, err
	}

	ow.Flush()
	if err := ow.Error(); err != nil {
		return nil, err
	}
	fw.Flush()
	if err := fw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{ow, fw, of, ff}, nil
}

func (j *CSVJournal) RecordOrder(o OrderRecord) error {
	err := j.orders.Write([]string{
		o.OrderID,
		o.Symbol,
		o.Side,
		o.Type,
		f(o.Quantity),
		f(o.FilledQuantity),
		f(o.LimitPrice),
		f(o.StopPrice),
		f(o.AvgFillPrice),
		o.Status,
		o.Reason,
		o.CreatedAt.Format(time.RFC3339),
		o.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.orders.Flush()
	return j.orders.Error()
}

func (j *CSVJournal) RecordFill(r FillRecord) error {
	err := j.fills.Write([]string{
		r.OrderID,
		r.Symbol,
		r.Side,
		f(r.Quantity),
		f(r.Price),
		f(r.RealizedPL),
		r.Time.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	j.fills.Flush()
	return j.fills.Error()
}

func (j *CSVJournal) Close() error {
	j.orders.Flush()
	if err := j.orders.Error(); err != nil {
		return err
	}
	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}

	if err := j.of.Close(); err != nil {
		return err
	}
	if err := j.ff.Close(); err != nil {
		return err
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
