package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MariamAlaa-8/realstate-backend/metrics"
)

// Outbox is the slice of a store transaction the dispatcher writes through.
// Implementations run the write in a savepoint so a failure leaves the
// enclosing transaction usable.
type Outbox interface {
	EnqueueOutbox(ctx context.Context, msg Message) error
}

// Dispatcher turns intents into outbox rows inside the caller's transaction.
// Write failures are logged and counted, never returned.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

type DispatcherOption func(*Dispatcher)

func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func WithDispatcherIDs(gen func() string) DispatcherOption {
	return func(d *Dispatcher) { d.newID = gen }
}

func NewDispatcher(logger *slog.Logger, m *metrics.Metrics, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue writes one intent. It reports whether the row was written.
func (d *Dispatcher) Enqueue(ctx context.Context, out Outbox, in Intent) bool {
	if in.UserID == "" || !in.Type.Valid() {
		d.logger.WarnContext(ctx, "notification: dropping malformed intent",
			"user_id", in.UserID, "type", in.Type)
		d.metrics.IncNotificationDropped(string(in.Type))
		return false
	}

	msg := Message{
		ID:        d.newID(),
		Topic:     in.Type.Topic(),
		Intent:    in,
		Status:    OutboxPending,
		CreatedAt: d.now().UTC(),
	}
	if err := out.EnqueueOutbox(ctx, msg); err != nil {
		d.logger.ErrorContext(ctx, "notification: outbox write failed",
			"user_id", in.UserID, "type", in.Type, "contract_id", in.ContractID, "error", err)
		d.metrics.IncNotificationDropped(string(in.Type))
		return false
	}
	return true
}

// EnqueueEach sends the same intent to every recipient, skipping duplicates.
func (d *Dispatcher) EnqueueEach(ctx context.Context, out Outbox, recipients []string, in Intent) int {
	sent := 0
	seen := make(map[string]struct{}, len(recipients))
	for _, id := range recipients {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		in.UserID = id
		if d.Enqueue(ctx, out, in) {
			sent++
		}
	}
	return sent
}
