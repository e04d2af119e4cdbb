// Package sale negotiates transfers: it opens an offer from a seller to a
// buyer and lets the buyer walk away before settlement.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/metrics"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

var (
	// ErrNotOwner signals a sale initiated by someone other than the owner.
	ErrNotOwner = errs.New(errs.CodeAuthorization, "sale: caller does not own the record")
	// ErrNotBuyer signals a cancellation by someone other than the buyer.
	ErrNotBuyer = errs.New(errs.CodeAuthorization, "sale: caller is not the buyer")
	// ErrNotEligible signals a record whose status does not allow a sale.
	ErrNotEligible = errs.New(errs.CodeStateConflict, "sale: record is not available for sale")
	// ErrOfferOutstanding signals a second offer on a record that already has one.
	ErrOfferOutstanding = errs.New(errs.CodeStateConflict, "sale: record already has an outstanding offer")
	// ErrSelfSale signals a buyer phone that resolves to the seller.
	ErrSelfSale = errs.New(errs.CodeValidation, "sale: seller cannot buy their own record")
)

// IdempotencyScope namespaces initiate keys in the idempotency table.
const IdempotencyScope = "sale.initiate"

// DefaultPaymentPage is the client route buyers pay on.
const DefaultPaymentPage = "/paymentPage"

// CancelNotes is stored on transactions the buyer abandons.
const CancelNotes = "cancelled by buyer"

// CredentialSender delivers the one-time credential of a provisioned buyer.
type CredentialSender interface {
	SendTemporaryCredential(ctx context.Context, phone, password string) error
}

// LogCredentialSender records that a credential was issued without revealing it.
type LogCredentialSender struct {
	Logger *slog.Logger
}

func (s LogCredentialSender) SendTemporaryCredential(ctx context.Context, phone, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "temporary credential issued", "phone", maskPhone(phone))
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// Manager opens and cancels offers.
type Manager struct {
	store       store.Store
	dispatcher  *notification.Dispatcher
	credentials CredentialSender
	numbers     func() (string, error)
	formatter   *notification.Formatter
	metrics     *metrics.Metrics
	logger      *slog.Logger
	paymentPage string
	now         func() time.Time
	newID       func() string
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDs(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func WithNumbers(next func() (string, error)) Option {
	return func(m *Manager) { m.numbers = next }
}

func WithCredentialSender(s CredentialSender) Option {
	return func(m *Manager) { m.credentials = s }
}

func WithPaymentPage(path string) Option {
	return func(m *Manager) { m.paymentPage = path }
}

func WithFormatter(f *notification.Formatter) Option {
	return func(m *Manager) { m.formatter = f }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(st store.Store, d *notification.Dispatcher, opts ...Option) *Manager {
	m := &Manager{
		store:       st,
		dispatcher:  d,
		logger:      slog.Default(),
		paymentPage: DefaultPaymentPage,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.numbers == nil {
		m.numbers = contract.NewNumberGenerator(m.now).Next
	}
	if m.credentials == nil {
		m.credentials = LogCredentialSender{Logger: m.logger}
	}
	if m.formatter == nil {
		m.formatter = notification.NewFormatter("ar-EG")
	}
	return m
}

// PaymentLink is the deep link a buyer follows to pay transactionID.
func PaymentLink(page, transactionID string) string {
	return page + "?transactionId=" + url.QueryEscape(transactionID)
}

// InitiateParams opens an offer on RecordID. Amount defaults to the record's
// base price.
type InitiateParams struct {
	RecordID       string
	SellerID       string
	BuyerName      string
	BuyerPhone     string
	Amount         *int64
	IdempotencyKey string
}

// InitiateResult describes the opened offer.
type InitiateResult struct {
	Transaction payment.Transaction
	BuyerRecord contract.Record
	BuyerID     string
	NewBuyer    bool
	PaymentLink string
	// Replayed is set when the idempotency key matched an earlier call.
	Replayed bool
}

// InitiateSale creates the buyer-side record, its transaction and the
// seller's pending markers in one unit of work.
func (m *Manager) InitiateSale(ctx context.Context, p InitiateParams) (InitiateResult, error) {
	p.BuyerName = strings.TrimSpace(p.BuyerName)
	p.BuyerPhone = strings.TrimSpace(p.BuyerPhone)
	switch {
	case p.RecordID == "" || p.SellerID == "":
		return InitiateResult{}, errs.New(errs.CodeValidation, "sale: record and seller are required")
	case p.BuyerName == "":
		return InitiateResult{}, errs.New(errs.CodeValidation, "sale: buyer name is required")
	case p.BuyerPhone == "":
		return InitiateResult{}, errs.New(errs.CodeValidation, "sale: buyer phone is required")
	case p.Amount != nil && *p.Amount <= 0:
		return InitiateResult{}, errs.New(errs.CodeValidation, "sale: amount must be positive")
	}

	var (
		res      InitiateResult
		password string
	)
	now := m.now().UTC()

	err := m.store.InTx(ctx, func(tx store.Tx) error {
		if p.IdempotencyKey != "" {
			existing, err := tx.ReserveIdempotencyKey(ctx, IdempotencyScope, recordKey(p))
			if errors.Is(err, store.ErrDuplicate) {
				res, err = m.replay(ctx, tx, existing, p.SellerID)
				return err
			}
			if err != nil {
				return fmt.Errorf("sale: reserve idempotency key: %w", err)
			}
		}

		seller, err := tx.LockContract(ctx, p.RecordID)
		if err != nil {
			return fmt.Errorf("sale: load record %s: %w", p.RecordID, err)
		}
		switch {
		case seller.OwnerID != p.SellerID:
			return ErrNotOwner
		case !contract.ForSaleEligible(seller.Status):
			return ErrNotEligible
		case seller.PendingSale:
			return ErrOfferOutstanding
		}

		buyer, created, pw, err := m.resolveBuyer(ctx, tx, p.BuyerName, p.BuyerPhone, now)
		if err != nil {
			return err
		}
		if buyer.ID == p.SellerID {
			return ErrSelfSale
		}
		password = pw

		amount := seller.Property.Price
		if p.Amount != nil {
			amount = *p.Amount
		}
		txID := m.newID()

		derived := contract.Record{
			ID:      m.newID(),
			OwnerID: buyer.ID,
			Owner: contract.Owner{
				FullName:   p.BuyerName,
				NationalID: buyer.NationalID,
				Phone:      p.BuyerPhone,
			},
			Property:             seller.Property,
			OwnershipPercentage:  seller.OwnershipPercentage,
			Status:               contract.StatusSalePending,
			SalePrice:            &amount,
			BuyerID:              buyer.ID,
			SellerID:             p.SellerID,
			PaymentStatus:        contract.PaymentPending,
			PendingTransactionID: txID,
			ContractDate:         now,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		derived.Property.Price = amount
		derived, err = store.InsertNumbered(ctx, tx, derived, m.numbers)
		if err != nil {
			return fmt.Errorf("sale: insert buyer record: %w", err)
		}

		tr, err := payment.New(txID, derived.ID, p.SellerID, buyer.ID, amount, now)
		if err != nil {
			return err
		}
		tr.Method = payment.MethodBankTransfer
		if err := tx.InsertTransaction(ctx, tr); err != nil {
			return fmt.Errorf("sale: insert transaction: %w", err)
		}

		seller.MarkPendingSale(buyer.ID, tr.ID)
		seller.UpdatedAt = now
		if err := tx.UpdateContract(ctx, seller, seller.Status); err != nil {
			return fmt.Errorf("sale: mark record %s: %w", seller.ID, err)
		}
		if err := tx.TouchUser(ctx, p.SellerID, now); err != nil {
			return fmt.Errorf("sale: touch seller: %w", err)
		}
		if p.IdempotencyKey != "" {
			if err := tx.CompleteIdempotencyKey(ctx, IdempotencyScope, recordKey(p), tr.ID); err != nil {
				return fmt.Errorf("sale: complete idempotency key: %w", err)
			}
		}

		link := PaymentLink(m.paymentPage, tr.ID)
		m.dispatcher.Enqueue(ctx, tx, notification.Intent{
			UserID:     buyer.ID,
			Type:       notification.TypeGeneral,
			Title:      "طلب شراء عقار",
			Message:    fmt.Sprintf("قام البائع %s بإرسال طلب شراء عقار %s إليك. يرجى إتمام الدفع", seller.Owner.FullName, seller.Property.Type),
			ContractID: derived.ID,
			Data: map[string]any{
				"transactionId": tr.ID,
				"amount":        tr.TotalAmount,
				"paymentLink":   link,
				"sellerName":    seller.Owner.FullName,
			},
		})

		res = InitiateResult{
			Transaction: tr,
			BuyerRecord: derived,
			BuyerID:     buyer.ID,
			NewBuyer:    created,
			PaymentLink: link,
		}
		return nil
	})
	if err != nil {
		return InitiateResult{}, err
	}
	if res.Replayed {
		m.logger.InfoContext(ctx, "sale replayed", "transaction_id", res.Transaction.ID, "idempotency_key", p.IdempotencyKey)
		return res, nil
	}

	m.metrics.IncTransition("none", string(contract.StatusSalePending))
	m.logger.InfoContext(ctx, "sale initiated",
		"record_id", p.RecordID, "transaction_id", res.Transaction.ID,
		"buyer_id", res.BuyerID, "new_buyer", res.NewBuyer,
		"total", m.formatter.Amount(res.Transaction.TotalAmount))

	if res.NewBuyer {
		if err := m.credentials.SendTemporaryCredential(ctx, p.BuyerPhone, password); err != nil {
			m.logger.ErrorContext(ctx, "sale: temporary credential delivery failed", "buyer_id", res.BuyerID, "error", err)
		}
	}
	return res, nil
}

// resolveBuyer finds the buyer by phone or provisions a temporary account.
func (m *Manager) resolveBuyer(ctx context.Context, tx store.Tx, name, phone string, now time.Time) (auth.User, bool, string, error) {
	buyer, err := tx.GetUserByPhone(ctx, phone)
	if err == nil {
		return buyer, false, "", nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return auth.User{}, false, "", fmt.Errorf("sale: look up buyer: %w", err)
	}

	acct, err := auth.NewTemporaryAccount(name, phone, now)
	if err != nil {
		return auth.User{}, false, "", err
	}
	buyer, err = tx.CreateUser(ctx, acct.User)
	if err != nil {
		return auth.User{}, false, "", fmt.Errorf("sale: provision buyer: %w", err)
	}
	return buyer, true, acct.Password, nil
}

// recordKey scopes an idempotency key to the record it opens an offer on.
func recordKey(p InitiateParams) string {
	return p.RecordID + "/" + p.IdempotencyKey
}

func (m *Manager) replay(ctx context.Context, tx store.Tx, transactionID, sellerID string) (InitiateResult, error) {
	if transactionID == "" {
		return InitiateResult{}, errs.New(errs.CodeStateConflict, "sale: idempotency key is in use")
	}
	tr, err := tx.GetTransaction(ctx, transactionID)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("sale: replay transaction %s: %w", transactionID, err)
	}
	if tr.SellerID != sellerID {
		return InitiateResult{}, errs.New(errs.CodeStateConflict, "sale: idempotency key belongs to another seller")
	}
	res := InitiateResult{
		Transaction: tr,
		BuyerID:     tr.BuyerID,
		PaymentLink: PaymentLink(m.paymentPage, tr.ID),
		Replayed:    true,
	}
	derived, err := tx.GetContract(ctx, tr.ContractID)
	switch {
	case err == nil:
		res.BuyerRecord = derived
	case !errors.Is(err, store.ErrNotFound):
		return InitiateResult{}, fmt.Errorf("sale: replay buyer record: %w", err)
	}
	return res, nil
}

// CancelPendingPayment lets the buyer abandon an unsettled offer. The
// buyer-side record is deleted, its transaction cancelled and the seller's
// record freed for a new offer.
func (m *Manager) CancelPendingPayment(ctx context.Context, recordID, buyerID string) error {
	now := m.now().UTC()
	var (
		derived contract.Record
		txID    string
	)

	err := m.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		derived, err = tx.LockContract(ctx, recordID)
		if err != nil {
			return fmt.Errorf("sale: load record %s: %w", recordID, err)
		}
		if derived.OwnerID != buyerID {
			return ErrNotBuyer
		}
		if derived.Status != contract.StatusSalePending {
			return errs.Newf(errs.CodeStateConflict, "sale: record is %s, not awaiting payment", derived.Status)
		}
		if err := tx.DeleteContract(ctx, derived.ID, contract.StatusSalePending); err != nil {
			return fmt.Errorf("sale: delete record %s: %w", derived.ID, err)
		}

		txID = derived.PendingTransactionID
		if txID != "" {
			if err := m.cancelTransaction(ctx, tx, txID, now); err != nil {
				return err
			}
			if err := m.releaseSeller(ctx, tx, txID, now); err != nil {
				return err
			}
		}

		m.dispatcher.Enqueue(ctx, tx, notification.Intent{
			UserID:     derived.SellerID,
			Type:       notification.TypeAlert,
			Title:      "تم إلغاء عملية الدفع",
			Message:    fmt.Sprintf("قام المشتري بإلغاء عملية دفع العقار %s", derived.Property.Type),
			ContractID: derived.ID,
			Data:       map[string]any{"transactionId": txID},
		})
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "pending payment cancelled", "record_id", recordID, "transaction_id", txID, "buyer_id", buyerID)
	return nil
}

func (m *Manager) cancelTransaction(ctx context.Context, tx store.Tx, txID string, now time.Time) error {
	tr, err := tx.LockTransaction(ctx, txID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sale: load transaction %s: %w", txID, err)
	}
	if !tr.Status.Open() {
		return nil
	}
	from := tr.Status
	tr.Status = payment.StatusCancelled
	tr.Notes = CancelNotes
	tr.CancelledAt = &now
	tr.UpdatedAt = now
	if err := tx.UpdateTransaction(ctx, tr, from); err != nil {
		return fmt.Errorf("sale: cancel transaction %s: %w", txID, err)
	}
	return nil
}

func (m *Manager) releaseSeller(ctx context.Context, tx store.Tx, txID string, now time.Time) error {
	seller, err := tx.FindByPendingTransaction(ctx, txID)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.WarnContext(ctx, "sale: no seller record carries the offer", "transaction_id", txID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sale: find seller record: %w", err)
	}
	seller.ClearPendingSale()
	seller.UpdatedAt = now
	if err := tx.UpdateContract(ctx, seller, seller.Status); err != nil {
		return fmt.Errorf("sale: release record %s: %w", seller.ID, err)
	}
	return nil
}
