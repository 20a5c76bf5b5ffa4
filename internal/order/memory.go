package order

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps orders in process memory. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	notes  map[string][]Note
	nextID int64
	now    func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*Order),
		notes:  make(map[string][]Note),
		now:    time.Now,
	}
}

// Put inserts or replaces an order.
func (m *MemoryStore) Put(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyOrder(o)
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	cp.UpdatedAt = m.now()
	m.orders[o.ID] = &cp
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return copyOrder(*o), nil
}

// FindByMeta implements Store.
func (m *MemoryStore) FindByMeta(_ context.Context, key, value string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == "" {
		return Order{}, ErrNotFound
	}
	for _, o := range m.orders {
		if o.Meta[key] == value {
			return copyOrder(*o), nil
		}
	}
	return Order{}, ErrNotFound
}

// SetMeta implements Store.
func (m *MemoryStore) SetMeta(_ context.Context, id string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Meta == nil {
		o.Meta = make(map[string]string, len(values))
	}
	for k, v := range values {
		o.Meta[k] = v
	}
	o.UpdatedAt = m.now()
	return nil
}

// MarkPaid implements Store.
func (m *MemoryStore) MarkPaid(_ context.Context, id, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Paid = true
	o.TransactionID = transactionID
	o.UpdatedAt = m.now()
	return nil
}

// SetStatus implements Store.
func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = m.now()
	return nil
}

// AddNote implements Store.
func (m *MemoryStore) AddNote(_ context.Context, id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	m.nextID++
	m.notes[id] = append(m.notes[id], Note{ID: m.nextID, OrderID: id, Body: body, CreatedAt: m.now()})
	return nil
}

// Notes implements Store.
func (m *MemoryStore) Notes(_ context.Context, id string) ([]Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Note, len(m.notes[id]))
	copy(out, m.notes[id])
	return out, nil
}

// ListByStatus implements Store. Results are ordered by creation time.
func (m *MemoryStore) ListByStatus(_ context.Context, statuses []Status, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	var out []Order
	for _, o := range m.orders {
		if _, ok := want[o.Status]; ok {
			out = append(out, copyOrder(*o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyOrder(o Order) Order {
	cp := o
	if o.Meta != nil {
		cp.Meta = make(map[string]string, len(o.Meta))
		for k, v := range o.Meta {
			cp.Meta[k] = v
		}
	}
	if o.Shipping != nil {
		ship := *o.Shipping
		cp.Shipping = &ship
	}
	return cp
}
