// Package relay drains the notification outbox into the inbox table and the
// message broker.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/metrics"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

// Config tunes the drain loop.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Relay delivers outbox rows. A row is delivered at least once; the inbox
// entry reuses the outbox id so redelivery does not duplicate it.
type Relay struct {
	store     store.Store
	validator *Validator
	publisher Publisher
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Relay)

// WithPublisher forwards every delivered message to the broker.
func WithPublisher(p Publisher) Option {
	return func(r *Relay) { r.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

func New(st store.Store, v *Validator, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		store:     st,
		validator: v,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains until ctx is cancelled. Full batches are followed immediately by
// another drain; otherwise the relay waits one interval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "relay started", "interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "relay stopped")
			return nil
		default:
		}

		n, err := r.DrainOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "relay: drain failed", "error", err)
		}
		if err == nil && n == r.cfg.BatchSize {
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

type outcome struct {
	msg    notification.Message
	result string
	err    error
}

// DrainOnce processes one batch and reports how many rows it claimed.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	var outcomes []outcome
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		outcomes = outcomes[:0]
		msgs, err := tx.ClaimOutbox(ctx, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("relay: claim outbox: %w", err)
		}

		for _, msg := range msgs {
			if err := r.deliver(ctx, tx, msg); err != nil {
				dead := permanent(err) || msg.Attempts+1 >= r.cfg.MaxAttempts
				if markErr := tx.MarkOutboxFailed(ctx, msg.ID, err.Error(), dead); markErr != nil {
					return fmt.Errorf("relay: mark %s failed: %w", msg.ID, markErr)
				}
				result := "retry"
				if dead {
					result = "dead"
				}
				outcomes = append(outcomes, outcome{msg: msg, result: result, err: err})
				continue
			}
			if err := tx.MarkOutboxDelivered(ctx, msg.ID, r.now().UTC()); err != nil {
				return fmt.Errorf("relay: mark %s delivered: %w", msg.ID, err)
			}
			outcomes = append(outcomes, outcome{msg: msg, result: "delivered"})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, o := range outcomes {
		r.metrics.IncRelay(o.result)
		switch o.result {
		case "delivered":
			r.logger.DebugContext(ctx, "notification delivered", "outbox_id", o.msg.ID, "topic", o.msg.Topic, "user_id", o.msg.Intent.UserID)
		case "dead":
			r.logger.ErrorContext(ctx, "notification parked", "outbox_id", o.msg.ID, "topic", o.msg.Topic, "attempts", o.msg.Attempts+1, "error", o.err)
		default:
			r.logger.WarnContext(ctx, "notification delivery failed", "outbox_id", o.msg.ID, "topic", o.msg.Topic, "attempts", o.msg.Attempts+1, "error", o.err)
		}
	}
	return len(outcomes), nil
}

func (r *Relay) deliver(ctx context.Context, tx store.Tx, msg notification.Message) error {
	body, err := r.validator.Validate(msg.Intent)
	if err != nil {
		return err
	}
	if err := tx.InsertNotification(ctx, notification.FromMessage(msg, msg.CreatedAt)); err != nil {
		return fmt.Errorf("relay: write inbox: %w", err)
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, msg.Topic, msg.ID, body); err != nil {
			return err
		}
	}
	return nil
}

// permanent reports failures that no retry can fix.
func permanent(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errs.HasCode(err, errs.CodeNotFound) ||
		errs.HasCode(err, errs.CodeValidation)
}
