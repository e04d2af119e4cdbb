// Package settlement moves transactions through payment and confirmation and
// is the only place that changes two ownership records as one unit.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/metrics"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

var (
	// ErrNotBuyer signals a payment by someone other than the buyer.
	ErrNotBuyer = errs.New(errs.CodeAuthorization, "settlement: caller is not the buyer")
	// ErrNotSeller signals a confirmation or rejection by someone other than the seller.
	ErrNotSeller = errs.New(errs.CodeAuthorization, "settlement: caller is not the seller")
	// ErrNotParty signals a read by someone outside the transaction.
	ErrNotParty = errs.New(errs.CodeAuthorization, "settlement: caller is not a party to the transaction")
	// ErrInvalidMethod signals an unknown payment method.
	ErrInvalidMethod = errs.New(errs.CodeValidation, "settlement: unknown payment method")
)

// ConfirmScope namespaces confirmation keys in the idempotency table.
const ConfirmScope = "settlement.confirm"

// Operation labels for the settlement outcome counter.
const (
	opPay     = "pay"
	opConfirm = "confirm"
	opReject  = "reject"
)

// Engine settles transactions.
type Engine struct {
	store      store.Store
	dispatcher *notification.Dispatcher
	formatter  *notification.Formatter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithFormatter(f *notification.Formatter) Option {
	return func(e *Engine) { e.formatter = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(st store.Store, d *notification.Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		dispatcher: d,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.formatter == nil {
		e.formatter = notification.NewFormatter("ar-EG")
	}
	return e
}

// PayParams records the buyer's payment.
type PayParams struct {
	TransactionID string
	BuyerID       string
	Method        payment.Method
	Details       payment.DetailsInput
}

// Pay marks a pending transaction paid and mirrors the flag onto the
// buyer-side record.
func (e *Engine) Pay(ctx context.Context, p PayParams) (payment.Transaction, error) {
	if !p.Method.Valid() {
		return payment.Transaction{}, ErrInvalidMethod
	}
	now := e.now().UTC()

	var tr payment.Transaction
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		tr, err = tx.LockTransaction(ctx, p.TransactionID)
		if err != nil {
			return fmt.Errorf("settlement: load transaction %s: %w", p.TransactionID, err)
		}
		if tr.BuyerID != p.BuyerID {
			return ErrNotBuyer
		}
		if tr.Status != payment.StatusPending {
			return errs.Newf(errs.CodeStateConflict, "settlement: transaction is %s, not pending", tr.Status)
		}

		tr.Status = payment.StatusPaid
		tr.Method = p.Method
		tr.Details = p.Details.Sanitize()
		tr.PaidAt = &now
		tr.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, tr, payment.StatusPending); err != nil {
			return fmt.Errorf("settlement: update transaction %s: %w", tr.ID, err)
		}

		derived, err := tx.LockContract(ctx, tr.ContractID)
		switch {
		case err == nil:
			derived.PaymentStatus = contract.PaymentPaid
			derived.PaymentMethod = string(p.Method)
			derived.UpdatedAt = now
			if err := tx.UpdateContract(ctx, derived, derived.Status); err != nil {
				return fmt.Errorf("settlement: mirror payment on %s: %w", derived.ID, err)
			}
		case errors.Is(err, store.ErrNotFound):
			e.logger.WarnContext(ctx, "settlement: buyer record missing on payment", "transaction_id", tr.ID, "contract_id", tr.ContractID)
		default:
			return fmt.Errorf("settlement: load buyer record: %w", err)
		}

		if err := tx.TouchUser(ctx, tr.BuyerID, now); err != nil {
			return fmt.Errorf("settlement: touch buyer: %w", err)
		}

		buyerName := ""
		if buyer, err := tx.GetUserByID(ctx, tr.BuyerID); err == nil {
			buyerName = buyer.FullName
		}
		e.dispatcher.Enqueue(ctx, tx, notification.Intent{
			UserID:     tr.SellerID,
			Type:       notification.TypeGeneral,
			Title:      "تم الدفع",
			Message:    fmt.Sprintf("قام المشتري %s بدفع مبلغ %s جنيه", buyerName, e.formatter.Amount(tr.TotalAmount)),
			ContractID: tr.ContractID,
			Data:       map[string]any{"transactionId": tr.ID},
		})
		return nil
	})
	e.metrics.IncSettlement(opPay, outcome(err))
	if err != nil {
		return payment.Transaction{}, err
	}

	e.logger.InfoContext(ctx, "transaction paid", "transaction_id", tr.ID, "method", tr.Method)
	return tr, nil
}

// ConfirmParams records the seller's confirmation that funds arrived.
type ConfirmParams struct {
	TransactionID  string
	SellerID       string
	IdempotencyKey string
}

// ConfirmResult carries both sides of a completed transfer. SellerRecord is
// nil when no seller-side record could be located.
type ConfirmResult struct {
	Transaction  payment.Transaction
	BuyerRecord  contract.Record
	SellerRecord *contract.Record
	Replayed     bool
}

// Confirm completes a paid transaction, the buyer-side record and, when it
// can be found, the seller's original record, all in one unit of work.
func (e *Engine) Confirm(ctx context.Context, p ConfirmParams) (ConfirmResult, error) {
	now := e.now().UTC()

	var (
		res        ConfirmResult
		sellerFrom contract.Status
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if p.IdempotencyKey != "" {
			existing, err := tx.ReserveIdempotencyKey(ctx, ConfirmScope, p.IdempotencyKey)
			if errors.Is(err, store.ErrDuplicate) {
				res, err = e.replayConfirm(ctx, tx, existing, p.SellerID)
				return err
			}
			if err != nil {
				return fmt.Errorf("settlement: reserve idempotency key: %w", err)
			}
		}

		tr, err := tx.LockTransaction(ctx, p.TransactionID)
		if err != nil {
			return fmt.Errorf("settlement: load transaction %s: %w", p.TransactionID, err)
		}
		if tr.SellerID != p.SellerID {
			return ErrNotSeller
		}
		if tr.Status != payment.StatusPaid {
			return errs.Newf(errs.CodeStateConflict, "settlement: transaction is %s, not paid", tr.Status)
		}

		tr.Status = payment.StatusCompleted
		tr.CompletedAt = &now
		tr.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, tr, payment.StatusPaid); err != nil {
			return fmt.Errorf("settlement: update transaction %s: %w", tr.ID, err)
		}

		derived, err := tx.LockContract(ctx, tr.ContractID)
		if err != nil {
			return fmt.Errorf("settlement: load buyer record %s: %w", tr.ContractID, err)
		}
		if err := derived.TransitionTo(contract.StatusCompleted); err != nil {
			return err
		}
		derived.PaymentStatus = contract.PaymentConfirmed
		derived.SellerID = tr.SellerID
		derived.CompletedAt = &now
		derived.PendingTransactionID = ""
		derived.UpdatedAt = now
		if err := tx.UpdateContract(ctx, derived, contract.StatusSalePending); err != nil {
			return fmt.Errorf("settlement: complete buyer record %s: %w", derived.ID, err)
		}

		seller, from, err := e.settleSeller(ctx, tx, derived.Property.Number, tr, now)
		if err != nil {
			return err
		}
		sellerFrom = from

		if p.IdempotencyKey != "" {
			if err := tx.CompleteIdempotencyKey(ctx, ConfirmScope, p.IdempotencyKey, tr.ID); err != nil {
				return fmt.Errorf("settlement: complete idempotency key: %w", err)
			}
		}
		if err := tx.TouchUser(ctx, tr.SellerID, now); err != nil {
			return fmt.Errorf("settlement: touch seller: %w", err)
		}

		e.dispatcher.Enqueue(ctx, tx, notification.Intent{
			UserID:     tr.BuyerID,
			Type:       notification.TypeContractApproved,
			Title:      "تم اكتمال عملية الشراء",
			Message:    "تم تأكيد استلام المبلغ وأصبح العقار ملكك الآن",
			ContractID: derived.ID,
			Data:       map[string]any{"transactionId": tr.ID},
		})

		res = ConfirmResult{Transaction: tr, BuyerRecord: derived, SellerRecord: seller}
		return nil
	})
	e.metrics.IncSettlement(opConfirm, outcome(err))
	if err != nil {
		return ConfirmResult{}, err
	}
	if res.Replayed {
		return res, nil
	}

	e.metrics.IncTransition(string(contract.StatusSalePending), string(contract.StatusCompleted))
	if res.SellerRecord != nil {
		e.metrics.IncTransition(string(sellerFrom), string(contract.StatusSold))
	}
	e.logger.InfoContext(ctx, "transaction confirmed",
		"transaction_id", res.Transaction.ID,
		"buyer_record_id", res.BuyerRecord.ID,
		"seller_record_found", res.SellerRecord != nil)
	return res, nil
}

// settleSeller marks the seller's original record sold and reports the
// status it left. It tries the property lookup first, preferring the record
// that holds this transaction's offer, then the pending markers. When neither finds an unsold record the seller side is skipped.
func (e *Engine) settleSeller(ctx context.Context, tx store.Tx, propertyNumber string, tr payment.Transaction, now time.Time) (*contract.Record, contract.Status, error) {
	seller, err := tx.FindSellerRecord(ctx, propertyNumber, tr.SellerID, tr.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, "", fmt.Errorf("settlement: find seller record: %w", err)
	}
	if err != nil || seller.Status == contract.StatusSold {
		seller, err = tx.FindByPendingTransaction(ctx, tr.ID)
		if errors.Is(err, store.ErrNotFound) {
			e.logger.WarnContext(ctx, "settlement: seller record not found, seller side skipped",
				"transaction_id", tr.ID, "property_number", propertyNumber, "seller_id", tr.SellerID)
			e.metrics.IncSellerRecordMissing()
			return nil, "", nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("settlement: find seller record by transaction: %w", err)
		}
	}

	from := seller.Status
	if err := seller.TransitionTo(contract.StatusSold); err != nil {
		e.logger.WarnContext(ctx, "settlement: seller record cannot be sold, seller side skipped",
			"transaction_id", tr.ID, "record_id", seller.ID, "status", from)
		e.metrics.IncSellerRecordMissing()
		return nil, "", nil
	}
	seller.SoldAt = &now
	seller.BuyerID = tr.BuyerID
	seller.ClearPendingSale()
	seller.UpdatedAt = now
	if err := tx.UpdateContract(ctx, seller, from); err != nil {
		return nil, "", fmt.Errorf("settlement: sell record %s: %w", seller.ID, err)
	}
	return &seller, from, nil
}

func (e *Engine) replayConfirm(ctx context.Context, tx store.Tx, transactionID, sellerID string) (ConfirmResult, error) {
	if transactionID == "" {
		return ConfirmResult{}, errs.New(errs.CodeStateConflict, "settlement: idempotency key is in use")
	}
	tr, err := tx.GetTransaction(ctx, transactionID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("settlement: replay transaction %s: %w", transactionID, err)
	}
	if tr.SellerID != sellerID {
		return ConfirmResult{}, errs.New(errs.CodeStateConflict, "settlement: idempotency key belongs to another seller")
	}
	res := ConfirmResult{Transaction: tr, Replayed: true}
	if derived, err := tx.GetContract(ctx, tr.ContractID); err == nil {
		res.BuyerRecord = derived
	}
	return res, nil
}

// RejectPayment cancels an open transaction, removes the buyer-side record and
// frees the seller's record for another offer.
func (e *Engine) RejectPayment(ctx context.Context, transactionID, sellerID, reason string) (payment.Transaction, error) {
	reason = strings.TrimSpace(reason)
	now := e.now().UTC()

	var tr payment.Transaction
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		tr, err = tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("settlement: load transaction %s: %w", transactionID, err)
		}
		if tr.SellerID != sellerID {
			return ErrNotSeller
		}
		if !tr.Status.Open() {
			return errs.Newf(errs.CodeStateConflict, "settlement: transaction is %s and can no longer be rejected", tr.Status)
		}

		from := tr.Status
		tr.Status = payment.StatusCancelled
		tr.Notes = reason
		tr.CancelledAt = &now
		tr.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, tr, from); err != nil {
			return fmt.Errorf("settlement: cancel transaction %s: %w", tr.ID, err)
		}

		derived, err := tx.LockContract(ctx, tr.ContractID)
		switch {
		case err == nil && derived.Status == contract.StatusSalePending:
			if err := tx.DeleteContract(ctx, derived.ID, contract.StatusSalePending); err != nil {
				return fmt.Errorf("settlement: delete buyer record %s: %w", derived.ID, err)
			}
		case err == nil, errors.Is(err, store.ErrNotFound):
		default:
			return fmt.Errorf("settlement: load buyer record: %w", err)
		}

		original, err := tx.FindByPendingTransaction(ctx, tr.ID)
		switch {
		case err == nil:
			original.ClearPendingSale()
			original.UpdatedAt = now
			if err := tx.UpdateContract(ctx, original, original.Status); err != nil {
				return fmt.Errorf("settlement: release record %s: %w", original.ID, err)
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return fmt.Errorf("settlement: find seller record by transaction: %w", err)
		}

		message := "تم رفض عملية الدفع."
		if reason != "" {
			message += " السبب: " + reason
		}
		e.dispatcher.Enqueue(ctx, tx, notification.Intent{
			UserID:     tr.BuyerID,
			Type:       notification.TypeContractRejected,
			Title:      "تم رفض الدفع",
			Message:    message,
			ContractID: tr.ContractID,
			Data:       map[string]any{"transactionId": tr.ID},
		})
		return nil
	})
	e.metrics.IncSettlement(opReject, outcome(err))
	if err != nil {
		return payment.Transaction{}, err
	}

	e.logger.InfoContext(ctx, "payment rejected", "transaction_id", tr.ID, "seller_id", sellerID)
	return tr, nil
}

// Get returns a transaction to one of its parties.
func (e *Engine) Get(ctx context.Context, transactionID, actorID string) (payment.Transaction, error) {
	var tr payment.Transaction
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		tr, err = tx.GetTransaction(ctx, transactionID)
		return err
	})
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("settlement: get transaction %s: %w", transactionID, err)
	}
	if tr.BuyerID != actorID && tr.SellerID != actorID {
		return payment.Transaction{}, ErrNotParty
	}
	return tr, nil
}

// ListForUser returns every transaction the user buys or sells in, newest first.
func (e *Engine) ListForUser(ctx context.Context, userID string) ([]payment.Transaction, error) {
	var out []payment.Transaction
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("settlement: list transactions: %w", err)
	}
	return out, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errs.HasCode(err, errs.CodeStateConflict):
		return "conflict"
	case errs.HasCode(err, errs.CodeAuthorization):
		return "denied"
	default:
		return "error"
	}
}
