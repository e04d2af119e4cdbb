// Package storetest holds behaviour checks shared by every store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

// Factory returns an empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// User builds an activated ordinary account.
func User(id string) auth.User {
	activated := base
	return auth.User{
		ID:           id,
		FullName:     "User " + id,
		NationalID:   "NID-" + id,
		Phone:        "PH-" + id,
		PasswordHash: "hash",
		Role:         auth.RoleUser,
		IsActive:     true,
		ActivatedAt:  &activated,
		LastActivity: base,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func numberFor(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return fmt.Sprintf("CON-2503-%06d", h.Sum32()%1_000_000)
}

// Record builds a record owned by ownerID.
func Record(id, ownerID, propertyNumber string, status contract.Status, createdAt time.Time) contract.Record {
	floor := 2
	return contract.Record{
		ID:      id,
		Number:  numberFor(id),
		OwnerID: ownerID,
		Owner:   contract.Owner{FullName: "Owner " + ownerID, NationalID: "NID-" + ownerID, Phone: "PH-" + ownerID},
		Property: contract.Property{
			Number:      propertyNumber,
			Address:     "12 Nile St",
			Governorate: contract.Cairo,
			Category:    contract.CategoryResidential,
			Type:        contract.TypeApartment,
			Floor:       &floor,
			Area:        120,
			Price:       500000,
		},
		OwnershipPercentage: 100,
		Status:              status,
		ContractDate:        createdAt,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
}

func seedUsers(t *testing.T, s store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := s.CreateUser(context.Background(), User(id))
		require.NoError(t, err, "seed user %s", id)
	}
}

func insert(t *testing.T, s store.Store, recs ...contract.Record) {
	t.Helper()
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		for _, rec := range recs {
			if err := tx.InsertContract(context.Background(), rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func getContract(t *testing.T, s store.Store, id string) (contract.Record, error) {
	t.Helper()
	var rec contract.Record
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		rec, err = tx.GetContract(context.Background(), id)
		return err
	})
	return rec, err
}

// Run executes the shared checks against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("failed unit leaves nothing behind", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("contract compare and swap", func(t *testing.T) { testContractCAS(t, open(t)) })
	t.Run("duplicate number keeps unit usable", func(t *testing.T) { testDuplicateNumber(t, open(t)) })
	t.Run("seller record tie break", func(t *testing.T) { testSellerRecordTieBreak(t, open(t)) })
	t.Run("seller record holding the offer wins", func(t *testing.T) { testSellerRecordHoldingOffer(t, open(t)) })
	t.Run("transaction amounts are fixed", func(t *testing.T) { testTransactionCAS(t, open(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("purge inactive users", func(t *testing.T) { testPurge(t, open(t)) })
	t.Run("outbox lifecycle", func(t *testing.T) { testOutbox(t, open(t)) })
	t.Run("notifications inbox", func(t *testing.T) { testNotifications(t, open(t)) })
	t.Run("idempotency keys", func(t *testing.T) { testIdempotency(t, open(t)) })
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "owner")
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertContract(ctx, Record("c-1", "owner", "P-1", contract.StatusPending, base)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = getContract(t, s, "c-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testContractCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "owner")
	rec := Record("c-1", "owner", "P-1", contract.StatusPending, base)
	insert(t, s, rec)

	rec.Status = contract.StatusApproved
	rec.AdminNotes = "ok"
	rec.Number = "CON-9999-999999"
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdateContract(ctx, rec, contract.StatusPending)
	}))

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdateContract(ctx, rec, contract.StatusPending)
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := getContract(t, s, "c-1")
	require.NoError(t, err)
	assert.Equal(t, contract.StatusApproved, got.Status)
	assert.Equal(t, "ok", got.AdminNotes)
	assert.NotEqual(t, "CON-9999-999999", got.Number, "number must never change")

	err = s.InTx(ctx, func(tx store.Tx) error { return tx.DeleteContract(ctx, "c-1", contract.StatusSalePending) })
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testDuplicateNumber(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "owner")
	first := Record("c-1", "owner", "P-1", contract.StatusPending, base)
	first.Number = "CON-2503-000001"
	insert(t, s, first)

	candidates := []string{"CON-2503-000001", "CON-2503-000001", "CON-2503-000002"}
	var saved contract.Record
	err := s.InTx(ctx, func(tx store.Tx) error {
		next := func() (string, error) {
			n := candidates[0]
			candidates = candidates[1:]
			return n, nil
		}
		var err error
		saved, err = store.InsertNumbered(ctx, tx, Record("c-2", "owner", "P-2", contract.StatusPending, base), next)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "CON-2503-000002", saved.Number)

	got, err := getContract(t, s, "c-2")
	require.NoError(t, err)
	assert.Equal(t, "CON-2503-000002", got.Number)

	err = s.InTx(ctx, func(tx store.Tx) error {
		_, err := store.InsertNumbered(ctx, tx, Record("c-3", "owner", "P-3", contract.StatusPending, base), func() (string, error) {
			return "CON-2503-000001", nil
		})
		return err
	})
	assert.Error(t, err)
}

func testSellerRecordTieBreak(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "seller", "other")

	oldSold := Record("sold-old", "seller", "P-1", contract.StatusSold, base)
	approved := Record("approved", "seller", "P-1", contract.StatusApproved, base.Add(time.Hour))
	forSaleOld := Record("forsale-old", "seller", "P-1", contract.StatusForSale, base.Add(2*time.Hour))
	forSaleNew := Record("forsale-new", "seller", "P-1", contract.StatusForSale, base.Add(3*time.Hour))
	foreign := Record("foreign", "other", "P-1", contract.StatusForSale, base.Add(4*time.Hour))
	pendingTx := Record("marked", "other", "P-1", contract.StatusForSale, base.Add(5*time.Hour))
	insert(t, s, oldSold, approved, forSaleOld, forSaleNew, foreign)

	find := func(property, owner string) (contract.Record, error) {
		var rec contract.Record
		err := s.InTx(ctx, func(tx store.Tx) error {
			var err error
			rec, err = tx.FindSellerRecord(ctx, property, owner, "")
			return err
		})
		return rec, err
	}

	rec, err := find("P-1", "seller")
	require.NoError(t, err)
	assert.Equal(t, "forsale-new", rec.ID)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.DeleteContract(ctx, "forsale-new", contract.StatusForSale); err != nil {
			return err
		}
		return tx.DeleteContract(ctx, "forsale-old", contract.StatusForSale)
	}))
	rec, err = find("P-1", "seller")
	require.NoError(t, err)
	assert.Equal(t, "approved", rec.ID)

	_, err = find("P-404", "seller")
	assert.ErrorIs(t, err, store.ErrNotFound)

	pendingTx.PendingTransactionID = "tx-1"
	buyerSide := Record("buyer-side", "other", "P-1", contract.StatusSalePending, base.Add(6*time.Hour))
	buyerSide.SellerID = "seller"
	buyerSide.PendingTransactionID = "tx-1"
	insert(t, s, pendingTx, buyerSide)
	err = s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.FindByPendingTransaction(ctx, "tx-1")
		if err != nil {
			return err
		}
		assert.Equal(t, "marked", got.ID)
		_, err = tx.FindByPendingTransaction(ctx, "tx-unknown")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func testSellerRecordHoldingOffer(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "seller")

	offered := Record("listing-a", "seller", "P-7", contract.StatusForSale, base)
	offered.MarkPendingSale("buyer", "tx-9")
	newer := Record("listing-b", "seller", "P-7", contract.StatusForSale, base.Add(time.Hour))
	twinA := Record("twin-a", "seller", "P-8", contract.StatusForSale, base)
	twinB := Record("twin-b", "seller", "P-8", contract.StatusForSale, base)
	insert(t, s, offered, newer, twinA, twinB)

	find := func(property, transactionID string) (contract.Record, error) {
		var rec contract.Record
		err := s.InTx(ctx, func(tx store.Tx) error {
			var err error
			rec, err = tx.FindSellerRecord(ctx, property, "seller", transactionID)
			return err
		})
		return rec, err
	}

	rec, err := find("P-7", "tx-9")
	require.NoError(t, err)
	assert.Equal(t, "listing-a", rec.ID, "the record holding the offer wins over a newer listing")

	rec, err = find("P-7", "tx-other")
	require.NoError(t, err)
	assert.Equal(t, "listing-b", rec.ID, "a record holding another offer is skipped")

	for i := 0; i < 5; i++ {
		rec, err = find("P-8", "")
		require.NoError(t, err)
		assert.Equal(t, "twin-a", rec.ID, "equal creation times break on id")
	}

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.DeleteContract(ctx, "listing-b", contract.StatusForSale)
	}))
	_, err = find("P-7", "tx-other")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTransactionCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	tr, err := payment.New("tx-1", "c-1", "seller", "buyer", 550000, base)
	require.NoError(t, err)
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.InsertTransaction(ctx, tr) }))

	paid := tr
	paid.Status = payment.StatusPaid
	paid.Method = payment.MethodBankTransfer
	paid.Amount = 1
	paid.TotalAmount = 1
	paidAt := base.Add(time.Minute)
	paid.PaidAt = &paidAt
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.UpdateTransaction(ctx, paid, payment.StatusPending) }))

	err = s.InTx(ctx, func(tx store.Tx) error { return tx.UpdateTransaction(ctx, paid, payment.StatusPending) })
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		got, err := tx.LockTransaction(ctx, "tx-1")
		if err != nil {
			return err
		}
		assert.Equal(t, payment.StatusPaid, got.Status)
		assert.Equal(t, int64(550000), got.Amount)
		assert.Equal(t, int64(550300), got.TotalAmount)

		list, err := tx.ListTransactions(ctx, "buyer")
		if err != nil {
			return err
		}
		assert.Len(t, list, 1)
		return nil
	}))
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "a")

	dup := User("b")
	dup.Phone = User("a").Phone
	_, err := s.CreateUser(ctx, dup)
	assert.ErrorIs(t, err, auth.ErrDuplicateUser)

	got, err := s.GetUserByPhone(ctx, "PH-a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	admin := User("root")
	admin.Role = auth.RoleAdmin
	_, err = s.CreateUser(ctx, admin)
	require.NoError(t, err)
	admins, err := s.ListUsersByRole(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "root", admins[0].ID)

	later := base.Add(48 * time.Hour)
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.TouchUser(ctx, "a", later) }))
	got, err = s.GetUserByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(later))
}

func testPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "idle", "busy", "fresh")
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		return tx.TouchUser(ctx, "fresh", base.Add(60*24*time.Hour))
	}))
	insert(t, s, Record("idle-rec", "idle", "P-1", contract.StatusApproved, base))

	open, err := payment.New("tx-open", "c-x", "busy", "someone", 1000, base)
	require.NoError(t, err)
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error { return tx.InsertTransaction(ctx, open) }))

	ids, err := s.PurgeInactiveUsers(ctx, base.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, ids)

	_, err = getContract(t, s, "idle-rec")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByID(ctx, "busy")
	assert.NoError(t, err)
}

func testOutbox(t *testing.T, s store.Store) {
	ctx := context.Background()
	msgs := []notification.Message{
		{ID: "m-1", Topic: "notification.alert", Intent: notification.Intent{UserID: "u", Type: notification.TypeAlert, Title: "t", Message: "m"}, CreatedAt: base},
		{ID: "m-2", Topic: "notification.general", Intent: notification.Intent{UserID: "u", Type: notification.TypeGeneral, Title: "t", Message: "m", Data: map[string]any{"k": "v"}}, CreatedAt: base.Add(time.Second)},
		{ID: "m-3", Topic: "notification.general", Intent: notification.Intent{UserID: "u", Type: notification.TypeGeneral, Title: "t", Message: "m"}, CreatedAt: base.Add(2 * time.Second)},
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		for _, m := range msgs {
			if err := tx.EnqueueOutbox(ctx, m); err != nil {
				return err
			}
		}
		assert.Error(t, tx.EnqueueOutbox(ctx, msgs[0]), "duplicate id must fail")
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		claimed, err := tx.ClaimOutbox(ctx, 2)
		if err != nil {
			return err
		}
		require.Len(t, claimed, 2)
		assert.Equal(t, "m-1", claimed[0].ID)
		assert.Equal(t, "m-2", claimed[1].ID)
		assert.Equal(t, "v", claimed[1].Intent.Data["k"])
		if err := tx.MarkOutboxDelivered(ctx, "m-1", base.Add(time.Minute)); err != nil {
			return err
		}
		return tx.MarkOutboxFailed(ctx, "m-2", "broker down", true)
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		claimed, err := tx.ClaimOutbox(ctx, 10)
		if err != nil {
			return err
		}
		require.Len(t, claimed, 1)
		assert.Equal(t, "m-3", claimed[0].ID)
		return nil
	}))
}

func testNotifications(t *testing.T, s store.Store) {
	ctx := context.Background()
	seedUsers(t, s, "u", "v")

	items := []notification.Notification{
		{ID: "n-1", UserID: "u", Type: notification.TypeAlert, Title: "a", Message: "a", CreatedAt: base},
		{ID: "n-2", UserID: "u", Type: notification.TypeGeneral, Title: "b", Message: "b", ContractID: "c-1", Data: map[string]any{"paymentLink": "/paymentPage?transactionId=tx-1"}, CreatedAt: base.Add(time.Minute)},
		{ID: "n-3", UserID: "v", Type: notification.TypeGeneral, Title: "c", Message: "c", CreatedAt: base},
	}
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		for _, n := range items {
			if err := tx.InsertNotification(ctx, n); err != nil {
				return err
			}
		}
		return tx.InsertNotification(ctx, items[0])
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListNotifications(ctx, store.NotificationFilter{UserID: "u"})
		if err != nil {
			return err
		}
		require.Len(t, list, 2)
		assert.Equal(t, "n-2", list[0].ID)
		assert.Equal(t, "/paymentPage?transactionId=tx-1", list[0].Data["paymentLink"])

		all, err := tx.ListNotifications(ctx, store.NotificationFilter{})
		if err != nil {
			return err
		}
		assert.Len(t, all, 3)

		assert.ErrorIs(t, tx.MarkNotificationRead(ctx, "n-1", "v", base), store.ErrNotFound)
		if err := tx.MarkNotificationRead(ctx, "n-1", "u", base); err != nil {
			return err
		}
		unread, err := tx.CountUnread(ctx, "u")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, unread)

		changed, err := tx.MarkAllNotificationsRead(ctx, "u", base)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, changed)

		if err := tx.DeleteNotification(ctx, "n-3"); err != nil {
			return err
		}
		assert.ErrorIs(t, tx.DeleteNotification(ctx, "n-3"), store.ErrNotFound)
		return nil
	}))
}

func testIdempotency(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.ReserveIdempotencyKey(ctx, "sale.initiate", "k-1")
		if err != nil {
			return err
		}
		assert.Empty(t, existing)
		return tx.CompleteIdempotencyKey(ctx, "sale.initiate", "k-1", "tx-1")
	}))

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.ReserveIdempotencyKey(ctx, "sale.initiate", "k-1")
		assert.ErrorIs(t, err, store.ErrDuplicate)
		assert.Equal(t, "tx-1", existing)

		_, err = tx.ReserveIdempotencyKey(ctx, "settlement.confirm", "k-1")
		return err
	}))
}
