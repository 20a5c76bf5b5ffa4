package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/trustflowpay/internal/order"
)

// Background task types.
const (
	TypeStatusEnquiry = "trustflowpay:status_enquiry"
	TypeEnquirySweep  = "trustflowpay:enquiry_sweep"
)

// EnquiryPayload names the order a status enquiry task polls for.
type EnquiryPayload struct {
	OrderID string `json:"orderId"`
}

// NewStatusEnquiryTask builds the task that runs one enquiry for orderID.
func NewStatusEnquiryTask(orderID string) (*asynq.Task, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("payment: order id required")
	}
	raw, err := json.Marshal(EnquiryPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStatusEnquiry, raw), nil
}

// NewEnquirySweepTask builds the periodic task that schedules enquiries for
// orders still waiting on the gateway.
func NewEnquirySweepTask() *asynq.Task {
	return asynq.NewTask(TypeEnquirySweep, nil)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// TaskEnqueuer publishes a task unless one with the same key is still queued.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, key string) error
}

// Tasks runs status enquiries off the request path.
type Tasks struct {
	Enquirer  *StatusEnquirer
	Store     order.Store
	Locker    Locker
	LockTTL   time.Duration
	Queue     TaskEnqueuer
	BatchSize int
	// MinAge skips orders touched more recently than this.
	MinAge time.Duration
	Logger zerolog.Logger
	Now    func() time.Time
}

// Register binds the task handlers to mux.
func (t *Tasks) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeStatusEnquiry, t.HandleStatusEnquiry)
	mux.HandleFunc(TypeEnquirySweep, t.HandleSweep)
}

// HandleStatusEnquiry polls the gateway for one order while holding the
// order's enquiry lock.
func (t *Tasks) HandleStatusEnquiry(ctx context.Context, task *asynq.Task) error {
	var payload EnquiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || strings.TrimSpace(payload.OrderID) == "" {
		return fmt.Errorf("decode enquiry payload: %w", asynq.SkipRetry)
	}
	log := t.Logger.With().Str("order_id", payload.OrderID).Str("task", TypeStatusEnquiry).Logger()

	return t.Locker.WithLock(ctx, enquiryLockKey(payload.OrderID), t.lockTTL(), func(ctx context.Context) error {
		o, err := t.Store.Get(ctx, payload.OrderID)
		if errors.Is(err, order.ErrNotFound) {
			log.Warn().Msg("order vanished before enquiry")
			return fmt.Errorf("order %s: %w", payload.OrderID, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		if !EnquiryAllowed(o) {
			log.Debug().Str("status", string(o.Status)).Msg("order no longer awaiting payment, skipping enquiry")
			return nil
		}
		res, err := t.Enquirer.Enquire(ctx, o.ID)
		if err != nil {
			return err
		}
		log.Info().Bool("success", res.Success).Str("decision", string(res.Decision)).Msg(Summary(res))
		return nil
	})
}

// HandleSweep enqueues an enquiry for each pending or on-hold order that has
// a payment attempt and has been idle for at least MinAge.
func (t *Tasks) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	orders, err := t.Store.ListByStatus(ctx, []order.Status{order.StatusPending, order.StatusOnHold}, t.batchSize())
	if err != nil {
		return fmt.Errorf("list awaiting orders: %w", err)
	}
	cutoff := t.now().Add(-t.MinAge)
	queued := 0
	for _, o := range orders {
		if o.MetaValue(MetaReference) == "" || o.UpdatedAt.After(cutoff) {
			continue
		}
		task, err := NewStatusEnquiryTask(o.ID)
		if err != nil {
			return err
		}
		if err := t.Queue.Enqueue(ctx, task, EnquiryTaskKey(o)); err != nil {
			return fmt.Errorf("enqueue enquiry for %s: %w", o.ID, err)
		}
		queued++
	}
	t.Logger.Info().Int("candidates", len(orders)).Int("queued", queued).Msg("status enquiry sweep")
	return nil
}

func enquiryLockKey(orderID string) string {
	return "lock:trustflowpay:enquiry:" + orderID
}

// EnquiryTaskKey changes with every new payment attempt so a fresh reference
// is always polled.
func EnquiryTaskKey(o order.Order) string {
	return "enquiry:" + o.ID + ":" + o.MetaValue(MetaReference)
}

func (t *Tasks) lockTTL() time.Duration {
	if t.LockTTL <= 0 {
		return time.Minute
	}
	return t.LockTTL
}

func (t *Tasks) batchSize() int {
	if t.BatchSize <= 0 {
		return 50
	}
	return t.BatchSize
}

func (t *Tasks) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
