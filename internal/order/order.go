package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = errors.New("order: not found")

// Status enumerates the lifecycle states owned by the order system.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on-hold"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether the status is one the store understands.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusOnHold, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Address is a billing or shipping address as captured at checkout.
type Address struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Line1     string `json:"line1,omitempty"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// IsZero reports whether no address line has been filled in.
func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line1) == "" &&
		strings.TrimSpace(a.Line2) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.Postcode) == ""
}

// Order is the subset of an order record the payment integration reads and writes.
type Order struct {
	ID            string
	Status        Status
	Paid          bool
	TransactionID string
	Total         decimal.Decimal
	Currency      string
	Billing       Address
	Shipping      *Address
	Meta          map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MetaValue returns the metadata value stored under key, or "".
func (o Order) MetaValue(key string) string {
	if o.Meta == nil {
		return ""
	}
	return o.Meta[key]
}

// HasShippingAddress reports whether a distinct shipping address was captured.
func (o Order) HasShippingAddress() bool {
	return o.Shipping != nil && !o.Shipping.IsZero()
}

// Note is an audit entry appended to an order.
type Note struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"orderId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the contract the payment integration needs from the order system.
// Implementations must make each individual write atomic.
type Store interface {
	Get(ctx context.Context, id string) (Order, error)
	// FindByMeta returns the order whose metadata key holds value.
	FindByMeta(ctx context.Context, key, value string) (Order, error)
	SetMeta(ctx context.Context, id string, values map[string]string) error
	MarkPaid(ctx context.Context, id, transactionID string) error
	SetStatus(ctx context.Context, id string, status Status) error
	AddNote(ctx context.Context, id, body string) error
	Notes(ctx context.Context, id string) ([]Note, error)
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]Order, error)
}
