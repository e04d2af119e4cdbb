// Package store defines the persistence boundary of the registry. Every
// multi-record mutation runs inside Store.InTx as one atomic unit.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
)

var (
	// ErrNotFound signals a missing row.
	ErrNotFound = errs.New(errs.CodeNotFound, "store: not found")
	// ErrConflict signals a compare-and-swap whose expected status no longer holds.
	ErrConflict = errs.New(errs.CodeStateConflict, "store: status changed concurrently")
	// ErrDuplicate signals a unique key violation.
	ErrDuplicate = errs.New(errs.CodeStateConflict, "store: duplicate key")
)

// Store opens atomic units of work and serves account reads and writes that
// need no surrounding transaction.
type Store interface {
	auth.Repository
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is one atomic unit of work. Reads named Lock* hold the row until commit.
type Tx interface {
	ContractTx
	TransactionTx
	UserTx
	OutboxTx
	IdempotencyTx
}

// ContractFilter narrows ListContracts. Empty fields match everything.
type ContractFilter struct {
	OwnerID  string
	Statuses []contract.Status
	Limit    int
}

type ContractTx interface {
	// InsertContract fails with ErrDuplicate when the number is taken and
	// leaves the transaction usable.
	InsertContract(ctx context.Context, rec contract.Record) error
	GetContract(ctx context.Context, id string) (contract.Record, error)
	LockContract(ctx context.Context, id string) (contract.Record, error)
	GetContractByNumber(ctx context.Context, number string) (contract.Record, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]contract.Record, error)
	// UpdateContract writes rec only while the stored status equals expected.
	UpdateContract(ctx context.Context, rec contract.Record, expected contract.Status) error
	// DeleteContract removes the record only while its status equals expected.
	DeleteContract(ctx context.Context, id string, expected contract.Status) error
	// FindSellerRecord returns the best seller-side candidate for a property
	// settling transactionID: the record holding that offer, then for_sale
	// before approved before sold, newest first, lowest id on ties. Records
	// holding a different offer are never returned.
	FindSellerRecord(ctx context.Context, propertyNumber, ownerID, transactionID string) (contract.Record, error)
	// FindByPendingTransaction returns the seller-side record whose pending
	// markers name transactionID. Buyer-side records are never returned.
	FindByPendingTransaction(ctx context.Context, transactionID string) (contract.Record, error)
}

type TransactionTx interface {
	InsertTransaction(ctx context.Context, t payment.Transaction) error
	GetTransaction(ctx context.Context, id string) (payment.Transaction, error)
	LockTransaction(ctx context.Context, id string) (payment.Transaction, error)
	// UpdateTransaction writes t only while the stored status equals expected.
	UpdateTransaction(ctx context.Context, t payment.Transaction, expected payment.Status) error
	ListTransactions(ctx context.Context, userID string) ([]payment.Transaction, error)
}

type UserTx interface {
	auth.Repository
	TouchUser(ctx context.Context, userID string, at time.Time) error
}

// NotificationFilter narrows ListNotifications. An empty UserID lists every user.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}

type OutboxTx interface {
	notification.Outbox
	ClaimOutbox(ctx context.Context, limit int) ([]notification.Message, error)
	MarkOutboxDelivered(ctx context.Context, id string, at time.Time) error
	MarkOutboxFailed(ctx context.Context, id, lastErr string, dead bool) error

	// InsertNotification is a no-op when the id already exists.
	InsertNotification(ctx context.Context, n notification.Notification) error
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]notification.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, id string) error
}

type IdempotencyTx interface {
	// ReserveIdempotencyKey claims key within scope. When the key was already
	// used it returns the recorded resource id and ErrDuplicate.
	ReserveIdempotencyKey(ctx context.Context, scope, key string) (string, error)
	CompleteIdempotencyKey(ctx context.Context, scope, key, resourceID string) error
}

// InsertNumbered assigns a fresh record number and inserts rec, retrying on
// number collisions.
func InsertNumbered(ctx context.Context, tx ContractTx, rec contract.Record, next func() (string, error)) (contract.Record, error) {
	for attempt := 0; attempt < contract.MaxNumberAttempts; attempt++ {
		number, err := next()
		if err != nil {
			return contract.Record{}, err
		}
		rec.Number = number
		err = tx.InsertContract(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return contract.Record{}, err
		}
	}
	return contract.Record{}, errs.Newf(errs.CodeStoreUnavailable, "store: no free record number after %d attempts", contract.MaxNumberAttempts)
}

// SellerCandidateRank ranks rec as a seller-side candidate for
// transactionID. Lower ranks win; -1 means not a candidate.
func SellerCandidateRank(rec contract.Record, transactionID string) int {
	rank := SellerSideRank(rec.Status)
	if rank < 0 {
		return -1
	}
	if rec.PendingSale || rec.PendingTransactionID != "" {
		if transactionID == "" || rec.PendingTransactionID != transactionID {
			return -1
		}
		return 0
	}
	return rank + 1
}

// SellerSideRank orders seller-side candidates: lower ranks win.
func SellerSideRank(s contract.Status) int {
	switch s {
	case contract.StatusForSale:
		return 0
	case contract.StatusApproved:
		return 1
	case contract.StatusSold:
		return 2
	default:
		return -1
	}
}
