// Package lifecycle owns the status transitions of ownership records:
// submission, administrative review and listing for sale.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/metrics"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/registry"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

var (
	// ErrNotAdmin signals a review attempted by a non-administrator.
	ErrNotAdmin = errs.New(errs.CodeAuthorization, "lifecycle: administrator role required")
	// ErrNotOwner signals an owner-only operation attempted by someone else.
	ErrNotOwner = errs.New(errs.CodeAuthorization, "lifecycle: caller does not own the record")
	// ErrReasonRequired signals a rejection without a reason.
	ErrReasonRequired = errs.New(errs.CodeValidation, "lifecycle: rejection reason is required")
)

// DefaultApprovalNotes is stored when an administrator approves without notes.
const DefaultApprovalNotes = "Contract approved"

// NumberSource yields candidate record numbers.
type NumberSource interface {
	Next() (string, error)
}

// Controller drives records through pending, approved, rejected and for_sale.
type Controller struct {
	store      store.Store
	dispatcher *notification.Dispatcher
	admins     notification.AdminRegistry
	registry   registry.Verifier
	numbers    NumberSource
	formatter  *notification.Formatter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDs(gen func() string) Option {
	return func(c *Controller) { c.newID = gen }
}

func WithNumbers(src NumberSource) Option {
	return func(c *Controller) { c.numbers = src }
}

func WithFormatter(f *notification.Formatter) Option {
	return func(c *Controller) { c.formatter = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(st store.Store, d *notification.Dispatcher, admins notification.AdminRegistry, reg registry.Verifier, opts ...Option) *Controller {
	c := &Controller{
		store:      st,
		dispatcher: d,
		admins:     admins,
		registry:   reg,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.numbers == nil {
		c.numbers = contract.NewNumberGenerator(c.now)
	}
	if c.formatter == nil {
		c.formatter = notification.NewFormatter("ar-EG")
	}
	return c
}

// SubmitParams is a new ownership claim.
type SubmitParams struct {
	OwnerID             string
	Owner               contract.Owner
	Property            contract.Property
	OwnershipPercentage float64
	Notes               string
	ContractDate        time.Time
}

// Submit registers a claim in pending and tells every administrator about it.
func (c *Controller) Submit(ctx context.Context, p SubmitParams) (contract.Record, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return contract.Record{}, errs.New(errs.CodeValidation, "lifecycle: owner id is required")
	}
	if p.OwnershipPercentage == 0 {
		p.OwnershipPercentage = 100
	}
	if err := contract.ValidateOwner(p.Owner, p.OwnershipPercentage); err != nil {
		return contract.Record{}, err
	}
	if err := p.Property.Validate(); err != nil {
		return contract.Record{}, err
	}
	if err := registry.Require(ctx, c.registry, p.Owner.NationalID); err != nil {
		return contract.Record{}, err
	}
	admins := c.adminIDs(ctx)

	now := c.now().UTC()
	contractDate := p.ContractDate
	if contractDate.IsZero() {
		contractDate = now
	}
	rec := contract.Record{
		ID:                  c.newID(),
		OwnerID:             p.OwnerID,
		Owner:               p.Owner,
		Property:            p.Property,
		OwnershipPercentage: p.OwnershipPercentage,
		Status:              contract.StatusPending,
		Notes:               strings.TrimSpace(p.Notes),
		ContractDate:        contractDate,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := c.store.InTx(ctx, func(tx store.Tx) error {
		saved, err := store.InsertNumbered(ctx, tx, rec, c.numbers.Next)
		if err != nil {
			return fmt.Errorf("lifecycle: insert record: %w", err)
		}
		rec = saved
		if err := tx.TouchUser(ctx, p.OwnerID, now); err != nil {
			return fmt.Errorf("lifecycle: touch owner: %w", err)
		}

		c.dispatcher.EnqueueEach(ctx, tx, admins, notification.Intent{
			Type:       notification.TypeGeneral,
			Title:      "طلب إثبات ملكية جديد",
			Message:    fmt.Sprintf("تم تقديم طلب جديد من %s - نوع العقار: %s", p.Owner.FullName, p.Property.Type),
			ContractID: rec.ID,
			Data: map[string]any{
				"userName":       p.Owner.FullName,
				"propertyType":   p.Property.Type,
				"propertyNumber": p.Property.Number,
			},
		})
		return nil
	})
	if err != nil {
		return contract.Record{}, err
	}

	c.metrics.IncTransition("none", string(contract.StatusPending))
	c.logger.InfoContext(ctx, "record submitted", "record_id", rec.ID, "number", rec.Number, "owner_id", rec.OwnerID)
	return rec, nil
}

// Approve moves a pending record to approved and notifies its owner.
func (c *Controller) Approve(ctx context.Context, recordID, adminID, notes string) (contract.Record, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = DefaultApprovalNotes
	}
	return c.review(ctx, recordID, adminID, contract.StatusApproved, func(rec *contract.Record, at time.Time) notification.Intent {
		rec.AdminNotes = notes
		rec.ApprovedBy = adminID
		rec.ApprovedAt = &at
		return notification.Intent{
			Type:    notification.TypeContractApproved,
			Title:   "تم الموافقة على العقد",
			Message: fmt.Sprintf("تمت الموافقة على العقد رقم %s بنجاح", rec.Number),
		}
	})
}

// Reject moves a pending record to rejected. A blank reason is refused.
func (c *Controller) Reject(ctx context.Context, recordID, adminID, reason string) (contract.Record, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return contract.Record{}, ErrReasonRequired
	}
	return c.review(ctx, recordID, adminID, contract.StatusRejected, func(rec *contract.Record, at time.Time) notification.Intent {
		rec.AdminNotes = reason
		rec.RejectedBy = adminID
		rec.RejectedAt = &at
		return notification.Intent{
			Type:    notification.TypeContractRejected,
			Title:   "تم رفض العقد",
			Message: fmt.Sprintf("تم رفض العقد رقم %s - سبب الرفض: %s", rec.Number, reason),
		}
	})
}

func (c *Controller) review(ctx context.Context, recordID, adminID string, next contract.Status, stamp func(*contract.Record, time.Time) notification.Intent) (contract.Record, error) {
	var (
		rec  contract.Record
		from contract.Status
	)
	now := c.now().UTC()

	err := c.store.InTx(ctx, func(tx store.Tx) error {
		admin, err := tx.GetUserByID(ctx, adminID)
		if err != nil {
			return fmt.Errorf("lifecycle: load reviewer: %w", err)
		}
		if admin.Role != auth.RoleAdmin {
			return ErrNotAdmin
		}

		rec, err = tx.LockContract(ctx, recordID)
		if err != nil {
			return fmt.Errorf("lifecycle: load record %s: %w", recordID, err)
		}
		from = rec.Status
		if err := rec.TransitionTo(next); err != nil {
			return err
		}
		intent := stamp(&rec, now)
		rec.UpdatedAt = now

		if err := tx.UpdateContract(ctx, rec, from); err != nil {
			return fmt.Errorf("lifecycle: update record %s: %w", recordID, err)
		}
		if err := tx.TouchUser(ctx, rec.OwnerID, now); err != nil {
			return fmt.Errorf("lifecycle: touch owner: %w", err)
		}

		intent.UserID = rec.OwnerID
		intent.ContractID = rec.ID
		c.dispatcher.Enqueue(ctx, tx, intent)
		return nil
	})
	if err != nil {
		return contract.Record{}, err
	}

	c.metrics.IncTransition(string(from), string(next))
	c.logger.InfoContext(ctx, "record reviewed", "record_id", rec.ID, "status", rec.Status, "admin_id", adminID)
	return rec, nil
}

// ListForSale puts an approved record on the market. salePrice defaults to
// the record's base price.
func (c *Controller) ListForSale(ctx context.Context, recordID, ownerID string, salePrice *int64) (contract.Record, error) {
	if salePrice != nil && *salePrice <= 0 {
		return contract.Record{}, errs.New(errs.CodeValidation, "lifecycle: sale price must be positive")
	}
	admins := c.adminIDs(ctx)
	now := c.now().UTC()

	var rec contract.Record
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.LockContract(ctx, recordID)
		if err != nil {
			return fmt.Errorf("lifecycle: load record %s: %w", recordID, err)
		}
		if rec.OwnerID != ownerID {
			return ErrNotOwner
		}
		if err := rec.TransitionTo(contract.StatusForSale); err != nil {
			return err
		}
		price := rec.Property.Price
		if salePrice != nil {
			price = *salePrice
		}
		rec.SalePrice = &price
		rec.UpdatedAt = now

		if err := tx.UpdateContract(ctx, rec, contract.StatusApproved); err != nil {
			return fmt.Errorf("lifecycle: update record %s: %w", recordID, err)
		}
		if err := tx.TouchUser(ctx, ownerID, now); err != nil {
			return fmt.Errorf("lifecycle: touch owner: %w", err)
		}

		c.dispatcher.EnqueueEach(ctx, tx, admins, notification.Intent{
			Type:       notification.TypeGeneral,
			Title:      "عرض جديد للبيع",
			Message:    fmt.Sprintf("تم عرض عقار %s للبيع بسعر %s جنيه", rec.Property.Type, c.formatter.Amount(price)),
			ContractID: rec.ID,
			Data:       map[string]any{"sellerName": rec.Owner.FullName, "salePrice": price},
		})
		return nil
	})
	if err != nil {
		return contract.Record{}, err
	}

	c.metrics.IncTransition(string(contract.StatusApproved), string(contract.StatusForSale))
	c.logger.InfoContext(ctx, "record listed for sale", "record_id", rec.ID, "sale_price", *rec.SalePrice)
	return rec, nil
}

// adminIDs resolves recipients before the unit of work opens. A lookup
// failure only costs the notification.
func (c *Controller) adminIDs(ctx context.Context) []string {
	if c.admins == nil {
		return nil
	}
	ids, err := c.admins.Admins(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "lifecycle: admin lookup failed", "error", err)
		return nil
	}
	return ids
}
