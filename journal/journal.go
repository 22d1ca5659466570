// journal/journal.go
package journal

import (
	"sync"
	"time"
)

// OrderRecord is written when an order is placed and again when it reaches
// a terminal status; later writes replace earlier ones.
type OrderRecord struct {
	OrderID        string
	Symbol         string
	Side           string
	Type           string
	Quantity       float64
	FilledQuantity float64
	LimitPrice     float64
	StopPrice      float64
	AvgFillPrice   float64
	Status         string
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FillRecord is one execution applied to the ledger.
type FillRecord struct {
	OrderID    string
	Symbol     string
	Side       string
	Quantity   float64
	Price      float64
	RealizedPL float64
	Time       time.Time
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordFill(FillRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordOrder(OrderRecord) error { return nil }
func (Nop) RecordFill(FillRecord) error   { return nil }
func (Nop) Close() error                  { return nil }

// Memory keeps records in process, mostly for tests and the demo command.
type Memory struct {
	mu     sync.Mutex
	orders map[string]OrderRecord
	fills  []FillRecord
	closed bool
}

func NewMemory() *Memory {
	return &Memory{orders: make(map[string]OrderRecord)}
}

func (m *Memory) RecordOrder(r OrderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[r.OrderID] = r
	return nil
}

func (m *Memory) RecordFill(r FillRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, r)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Order(id string) (OrderRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.orders[id]
	return r, ok
}

func (m *Memory) Fills() []FillRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FillRecord(nil), m.fills...)
}
