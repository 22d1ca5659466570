package journal

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is a journal backed by a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn and applies pending migrations.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (j *Postgres) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(order_id, symbol, side, order_type, quantity, filled_quantity, limit_price, stop_price,
		 avg_fill_price, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO UPDATE SET
			filled_quantity = EXCLUDED.filled_quantity,
			avg_fill_price = EXCLUDED.avg_fill_price,
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at`,
		o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity, o.FilledQuantity, o.LimitPrice,
		o.StopPrice, o.AvgFillPrice, o.Status, o.Reason, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (j *Postgres) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(order_id, symbol, side, quantity, price, realized_pl, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.OrderID, f.Symbol, f.Side, f.Quantity, f.Price, f.RealizedPL, f.Time,
	)
	return err
}

func (j *Postgres) GetOrder(orderID string) (OrderRecord, error) {
	row := j.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)

	rec, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OrderRecord{}, fmt.Errorf("order %q: %w", orderID, ErrNotFound)
		}
		return OrderRecord{}, err
	}
	return rec, nil
}

func (j *Postgres) ListFillsBetween(start, end time.Time) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT order_id, symbol, side, quantity, price, realized_pl, time
		FROM fills
		WHERE time >= $1 AND time < $2
		ORDER BY time ASC, id ASC`, start, end)
	if err != nil {
		return nil, err
	}
	return scanFills(rows)
}

func (j *Postgres) Close() error {
	return j.db.Close()
}
