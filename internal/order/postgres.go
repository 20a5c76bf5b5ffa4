package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PGStore persists orders, metadata and notes in Postgres.
type PGStore struct {
	DB DB
}

// NewPGStore wires a store over the given pool.
func NewPGStore(db DB) *PGStore {
	return &PGStore{DB: db}
}

const selectOrder = `SELECT id, status, paid, transaction_id, total::text, currency, billing, shipping, created_at, updated_at FROM orders`

// Create inserts a new order row together with any metadata it carries.
func (s *PGStore) Create(ctx context.Context, o Order) error {
	billing, err := json.Marshal(o.Billing)
	if err != nil {
		return fmt.Errorf("encode billing: %w", err)
	}
	var shipping []byte
	if o.Shipping != nil {
		if shipping, err = json.Marshal(o.Shipping); err != nil {
			return fmt.Errorf("encode shipping: %w", err)
		}
	}
	status := o.Status
	if status == "" {
		status = StatusPending
	}
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO orders (id, status, paid, transaction_id, total, currency, billing, shipping)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`,
			o.ID, string(status), o.Paid, o.TransactionID, o.Total.String(), o.Currency, billing, shipping,
		); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return upsertMeta(ctx, tx, o.ID, o.Meta)
	})
}

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	if o.Meta, err = s.loadMeta(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// FindByMeta implements Store.
func (s *PGStore) FindByMeta(ctx context.Context, key, value string) (Order, error) {
	if value == "" {
		return Order{}, ErrNotFound
	}
	var id string
	err := s.DB.QueryRow(ctx,
		`SELECT order_id FROM order_meta WHERE meta_key = $1 AND meta_value = $2 LIMIT 1`,
		key, value,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("find order by meta: %w", err)
	}
	return s.Get(ctx, id)
}

// SetMeta implements Store. All values are written in one transaction.
func (s *PGStore) SetMeta(ctx context.Context, id string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE orders SET updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("touch order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return upsertMeta(ctx, tx, id, values)
	})
}

// MarkPaid implements Store.
func (s *PGStore) MarkPaid(ctx context.Context, id, transactionID string) error {
	return s.exec(ctx, "mark paid",
		`UPDATE orders SET paid = TRUE, transaction_id = $2, paid_at = now(), updated_at = now() WHERE id = $1`,
		id, transactionID)
}

// SetStatus implements Store.
func (s *PGStore) SetStatus(ctx context.Context, id string, status Status) error {
	return s.exec(ctx, "set status",
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
}

// AddNote implements Store.
func (s *PGStore) AddNote(ctx context.Context, id, body string) error {
	tag, err := s.DB.Exec(ctx,
		`INSERT INTO order_notes (order_id, body) SELECT id, $2 FROM orders WHERE id = $1`,
		id, body)
	if err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Notes implements Store.
func (s *PGStore) Notes(ctx context.Context, id string) ([]Note, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT id, order_id, body, created_at FROM order_notes WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ListByStatus implements Store.
func (s *PGStore) ListByStatus(ctx context.Context, statuses []Status, limit int) ([]Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	raw := make([]string, len(statuses))
	for i, st := range statuses {
		raw[i] = string(st)
	}
	rows, err := s.DB.Query(ctx,
		selectOrder+` WHERE status = ANY($1) ORDER BY created_at LIMIT $2`, raw, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	for i := range out {
		if out[i].Meta, err = s.loadMeta(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) exec(ctx context.Context, op, sql string, args ...any) error {
	tag, err := s.DB.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) loadMeta(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT meta_key, meta_value FROM order_meta WHERE order_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func upsertMeta(ctx context.Context, tx pgx.Tx, id string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for k, v := range values {
		batch.Queue(
			`INSERT INTO order_meta (order_id, meta_key, meta_value) VALUES ($1, $2, $3)
			 ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
			id, k, v)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert meta: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o        Order
		status   string
		total    string
		billing  []byte
		shipping []byte
	)
	err := row.Scan(&o.ID, &status, &o.Paid, &o.TransactionID, &total, &o.Currency, &billing, &shipping, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = Status(status)
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &o.Billing); err != nil {
			return Order{}, fmt.Errorf("decode billing: %w", err)
		}
	}
	if len(shipping) > 0 && string(shipping) != "null" {
		var addr Address
		if err := json.Unmarshal(shipping, &addr); err != nil {
			return Order{}, fmt.Errorf("decode shipping: %w", err)
		}
		o.Shipping = &addr
	}
	return o, nil
}
