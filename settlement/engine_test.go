package settlement_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/lifecycle"
	"github.com/MariamAlaa-8/realstate-backend/logging"
	"github.com/MariamAlaa-8/realstate-backend/metrics"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/registry"
	"github.com/MariamAlaa-8/realstate-backend/sale"
	"github.com/MariamAlaa-8/realstate-backend/settlement"
	"github.com/MariamAlaa-8/realstate-backend/store"
	"github.com/MariamAlaa-8/realstate-backend/store/memory"
	"github.com/MariamAlaa-8/realstate-backend/store/storetest"
)

var clock = time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)

type fixture struct {
	mem       *memory.Store
	lifecycle *lifecycle.Controller
	sales     *sale.Manager
	engine    *settlement.Engine
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := memory.New()
	mem.SeedUser(storetest.User("owner"))
	mem.SeedUser(storetest.User("stranger"))
	admin := storetest.User("admin")
	admin.Role = auth.RoleAdmin
	mem.SeedUser(admin)

	var seq atomic.Int64
	ids := func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }
	now := func() time.Time { return clock }
	m := metrics.New(prometheus.NewRegistry())
	log := logging.Discard()
	en := notification.NewFormatter("en")
	d := notification.NewDispatcher(log, m,
		notification.WithDispatcherClock(now),
		notification.WithDispatcherIDs(func() string { return "msg-" + ids() }))

	return &fixture{
		mem: mem,
		lifecycle: lifecycle.NewController(mem, d, notification.StaticAdmins{"admin"}, registry.NewStatic("NID-owner"),
			lifecycle.WithClock(now), lifecycle.WithIDs(ids), lifecycle.WithMetrics(m),
			lifecycle.WithLogger(log), lifecycle.WithFormatter(en)),
		sales: sale.NewManager(mem, d,
			sale.WithClock(now), sale.WithIDs(ids), sale.WithMetrics(m), sale.WithLogger(log),
			sale.WithFormatter(en), sale.WithCredentialSender(sale.LogCredentialSender{Logger: log})),
		engine: settlement.NewEngine(mem, d,
			settlement.WithClock(now), settlement.WithMetrics(m),
			settlement.WithLogger(log), settlement.WithFormatter(en)),
		metrics: m,
	}
}

func submitParams(propertyNumber string) lifecycle.SubmitParams {
	floor := 4
	return lifecycle.SubmitParams{
		OwnerID: "owner",
		Owner:   contract.Owner{FullName: "Hany Samir", NationalID: "NID-owner", Phone: "PH-owner"},
		Property: contract.Property{
			Number:      propertyNumber,
			Address:     "9 Corniche Rd",
			Governorate: contract.Alexandria,
			Category:    contract.CategoryResidential,
			Type:        contract.TypeApartment,
			Floor:       &floor,
			Area:        110,
			Price:       500000,
		},
	}
}

// listed submits, approves and lists a record at salePrice.
func (f *fixture) listed(t *testing.T, propertyNumber string, salePrice int64) contract.Record {
	t.Helper()
	ctx := context.Background()
	rec, err := f.lifecycle.Submit(ctx, submitParams(propertyNumber))
	require.NoError(t, err)
	_, err = f.lifecycle.Approve(ctx, rec.ID, "admin", "")
	require.NoError(t, err)
	rec, err = f.lifecycle.ListForSale(ctx, rec.ID, "owner", &salePrice)
	require.NoError(t, err)
	return rec
}

func (f *fixture) offer(t *testing.T, recordID, phone string, amount int64) sale.InitiateResult {
	t.Helper()
	res, err := f.sales.InitiateSale(context.Background(), sale.InitiateParams{
		RecordID:   recordID,
		SellerID:   "owner",
		BuyerName:  "Salma Nabil",
		BuyerPhone: phone,
		Amount:     &amount,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) pay(t *testing.T, res sale.InitiateResult) payment.Transaction {
	t.Helper()
	tr, err := f.engine.Pay(context.Background(), settlement.PayParams{
		TransactionID: res.Transaction.ID,
		BuyerID:       res.BuyerID,
		Method:        payment.MethodBankTransfer,
		Details:       payment.DetailsInput{BankName: "NBE", AccountNumber: "100200300"},
	})
	require.NoError(t, err)
	return tr
}

func (f *fixture) record(t *testing.T, id string) (contract.Record, error) {
	t.Helper()
	var rec contract.Record
	err := f.mem.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		rec, err = tx.GetContract(context.Background(), id)
		return err
	})
	return rec, err
}

func (f *fixture) outboxFor(userID string) []notification.Message {
	_, _, msgs := f.mem.Snapshot()
	var out []notification.Message
	for _, m := range msgs {
		if m.Intent.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

func TestEndToEndSale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seller := f.listed(t, "P-1001", 550000)
	res := f.offer(t, seller.ID, "01122334455", 550000)
	assert.True(t, res.NewBuyer)
	f.pay(t, res)

	confirmed, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	require.NoError(t, err)

	buyerSide, err := f.record(t, res.BuyerRecord.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusCompleted, buyerSide.Status)
	assert.Equal(t, contract.PaymentConfirmed, buyerSide.PaymentStatus)
	assert.Equal(t, "owner", buyerSide.SellerID)
	assert.Equal(t, res.BuyerRecord.Number, buyerSide.Number)

	sellerSide, err := f.record(t, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusSold, sellerSide.Status)
	assert.Equal(t, res.BuyerID, sellerSide.BuyerID)
	assert.False(t, sellerSide.PendingSale)
	assert.Empty(t, sellerSide.PendingBuyerID)
	assert.Empty(t, sellerSide.PendingTransactionID)
	require.NotNil(t, sellerSide.SoldAt)
	require.NotNil(t, confirmed.SellerRecord)
	assert.Equal(t, seller.ID, confirmed.SellerRecord.ID)

	tr, err := f.engine.Get(ctx, res.Transaction.ID, res.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, tr.Status)
	assert.Equal(t, int64(550300), tr.TotalAmount)
	require.NotNil(t, tr.CompletedAt)

	buyerMsgs := f.outboxFor(res.BuyerID)
	require.Len(t, buyerMsgs, 2, "offer and completion")
	assert.Equal(t, notification.TypeContractApproved, buyerMsgs[1].Intent.Type)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SettlementOutcomes.WithLabelValues("confirm", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("for_sale", "sold")))
	assert.Zero(t, testutil.ToFloat64(f.metrics.SellerRecordMissing))
}

func TestPay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-1", 300000)
	res := f.offer(t, seller.ID, "0100", 300000)

	_, err := f.engine.Pay(ctx, settlement.PayParams{TransactionID: res.Transaction.ID, BuyerID: "stranger", Method: payment.MethodCash})
	assert.ErrorIs(t, err, settlement.ErrNotBuyer)

	_, err = f.engine.Pay(ctx, settlement.PayParams{TransactionID: res.Transaction.ID, BuyerID: res.BuyerID, Method: "bitcoin"})
	assert.ErrorIs(t, err, settlement.ErrInvalidMethod)

	tr, err := f.engine.Pay(ctx, settlement.PayParams{
		TransactionID: res.Transaction.ID,
		BuyerID:       res.BuyerID,
		Method:        payment.MethodCash,
		Details:       payment.DetailsInput{CardHolderName: "S N", CardNumber: "4111 1111 1111 1234", SecurityCode: "999"},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, tr.Status)
	assert.Equal(t, "1234", tr.Details.CardLast4)
	require.NotNil(t, tr.PaidAt)
	assert.Equal(t, int64(300300), tr.TotalAmount)

	derived, err := f.record(t, res.BuyerRecord.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.PaymentPaid, derived.PaymentStatus)
	assert.Equal(t, "cash", derived.PaymentMethod)
	assert.Equal(t, contract.StatusSalePending, derived.Status)

	sellerMsgs := f.outboxFor("owner")
	require.NotEmpty(t, sellerMsgs)
	last := sellerMsgs[len(sellerMsgs)-1]
	assert.Contains(t, last.Intent.Message, "300,300")
	assert.Equal(t, res.Transaction.ID, last.Intent.Data["transactionId"])

	_, err = f.engine.Pay(ctx, settlement.PayParams{TransactionID: res.Transaction.ID, BuyerID: res.BuyerID, Method: payment.MethodCash})
	assert.True(t, errs.HasCode(err, errs.CodeStateConflict), "got %v", err)

	_, err = f.engine.Pay(ctx, settlement.PayParams{TransactionID: "missing", BuyerID: res.BuyerID, Method: payment.MethodCash})
	assert.True(t, errs.HasCode(err, errs.CodeNotFound))
}

func TestConcurrentPaymentsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	seller := f.listed(t, "P-2", 400000)
	res := f.offer(t, seller.ID, "0101", 400000)

	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			_, err := f.engine.Pay(context.Background(), settlement.PayParams{
				TransactionID: res.Transaction.ID,
				BuyerID:       res.BuyerID,
				Method:        payment.MethodBankTransfer,
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errs.HasCode(err, errs.CodeStateConflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(11), conflicts.Load())
	assert.Equal(t, float64(11), testutil.ToFloat64(f.metrics.SettlementOutcomes.WithLabelValues("pay", "conflict")))
}

func TestConfirmPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-3", 200000)
	res := f.offer(t, seller.ID, "0102", 200000)

	_, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	assert.True(t, errs.HasCode(err, errs.CodeStateConflict), "pending transaction cannot be confirmed: %v", err)

	f.pay(t, res)
	_, err = f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: res.BuyerID})
	assert.ErrorIs(t, err, settlement.ErrNotSeller)

	derived, err := f.record(t, res.BuyerRecord.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusSalePending, derived.Status)
}

func TestConfirmFallsBackToPendingMarkers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-4", 250000)
	res := f.offer(t, seller.ID, "0103", 250000)
	f.pay(t, res)

	// The seller's record no longer matches the copied property number.
	require.NoError(t, f.mem.InTx(ctx, func(tx store.Tx) error {
		rec, err := tx.LockContract(ctx, seller.ID)
		if err != nil {
			return err
		}
		rec.Property.Number = "P-4-renumbered"
		return tx.UpdateContract(ctx, rec, rec.Status)
	}))

	confirmed, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	require.NoError(t, err)
	require.NotNil(t, confirmed.SellerRecord)
	assert.Equal(t, seller.ID, confirmed.SellerRecord.ID)
	assert.Equal(t, contract.StatusSold, confirmed.SellerRecord.Status)
}

func TestConfirmSkipsMissingSellerRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-5", 250000)
	res := f.offer(t, seller.ID, "0104", 250000)
	f.pay(t, res)

	require.NoError(t, f.mem.InTx(ctx, func(tx store.Tx) error {
		return tx.DeleteContract(ctx, seller.ID, contract.StatusForSale)
	}))

	confirmed, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	require.NoError(t, err)
	assert.Nil(t, confirmed.SellerRecord)
	assert.Equal(t, contract.StatusCompleted, confirmed.BuyerRecord.Status)
	assert.Equal(t, payment.StatusCompleted, confirmed.Transaction.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SellerRecordMissing))
}

func TestConfirmPrefersNewestForSaleRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// An older approved claim on the same property stays untouched.
	older, err := f.lifecycle.Submit(ctx, submitParams("P-6"))
	require.NoError(t, err)
	_, err = f.lifecycle.Approve(ctx, older.ID, "admin", "")
	require.NoError(t, err)

	seller := f.listed(t, "P-6", 260000)
	res := f.offer(t, seller.ID, "0105", 260000)
	f.pay(t, res)

	confirmed, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	require.NoError(t, err)
	require.NotNil(t, confirmed.SellerRecord)
	assert.Equal(t, seller.ID, confirmed.SellerRecord.ID)

	untouched, err := f.record(t, older.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusApproved, untouched.Status)
}

func TestConfirmSellsTheRecordHoldingTheOffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Two listings of the same property share a creation time.
	offered := f.listed(t, "P-7", 270000)
	other := f.listed(t, "P-7", 270000)
	res := f.offer(t, offered.ID, "0106", 270000)
	f.pay(t, res)

	confirmed, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	require.NoError(t, err)
	require.NotNil(t, confirmed.SellerRecord)
	assert.Equal(t, offered.ID, confirmed.SellerRecord.ID)

	sold, err := f.record(t, offered.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusSold, sold.Status)
	assert.False(t, sold.PendingSale)
	assert.Empty(t, sold.PendingTransactionID)

	untouched, err := f.record(t, other.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusForSale, untouched.Status)
	assert.False(t, untouched.PendingSale)

	// The other listing can still take an offer.
	f.offer(t, other.ID, "0107", 270000)
}

func TestConfirmReplaysIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-7", 270000)
	res := f.offer(t, seller.ID, "0106", 270000)
	f.pay(t, res)

	p := settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner", IdempotencyKey: "confirm-1"}
	first, err := f.engine.Confirm(ctx, p)
	require.NoError(t, err)
	second, err := f.engine.Confirm(ctx, p)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, payment.StatusCompleted, second.Transaction.Status)
	assert.Equal(t, contract.StatusCompleted, second.BuyerRecord.Status)
	assert.Len(t, f.outboxFor(res.BuyerID), 2)

	p.IdempotencyKey = ""
	_, err = f.engine.Confirm(ctx, p)
	assert.True(t, errs.HasCode(err, errs.CodeStateConflict))
}

func TestRejectPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-8", 280000)
	res := f.offer(t, seller.ID, "0107", 280000)
	f.pay(t, res)

	_, err := f.engine.RejectPayment(ctx, res.Transaction.ID, res.BuyerID, "nope")
	assert.ErrorIs(t, err, settlement.ErrNotSeller)

	tr, err := f.engine.RejectPayment(ctx, res.Transaction.ID, "owner", "funds not received")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCancelled, tr.Status)
	assert.Equal(t, "funds not received", tr.Notes)
	assert.Equal(t, int64(280300), tr.TotalAmount)

	_, err = f.record(t, res.BuyerRecord.ID)
	assert.True(t, errs.HasCode(err, errs.CodeNotFound), "buyer-side record is deleted")

	original, err := f.record(t, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusForSale, original.Status)
	assert.False(t, original.PendingSale)
	assert.Empty(t, original.PendingBuyerID)
	assert.Empty(t, original.PendingTransactionID)

	msgs := f.outboxFor(res.BuyerID)
	require.Len(t, msgs, 2)
	assert.Equal(t, notification.TypeContractRejected, msgs[1].Intent.Type)
	assert.Contains(t, msgs[1].Intent.Message, "funds not received")

	_, err = f.engine.RejectPayment(ctx, res.Transaction.ID, "owner", "")
	assert.True(t, errs.HasCode(err, errs.CodeStateConflict))
	_, err = f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	assert.True(t, errs.HasCode(err, errs.CodeStateConflict))

	again := f.offer(t, seller.ID, "0108", 280000)
	assert.NotEqual(t, res.Transaction.ID, again.Transaction.ID)
}

func TestRejectCompletedTransactionFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-9", 290000)
	res := f.offer(t, seller.ID, "0109", 290000)
	f.pay(t, res)
	_, err := f.engine.Confirm(ctx, settlement.ConfirmParams{TransactionID: res.Transaction.ID, SellerID: "owner"})
	require.NoError(t, err)

	_, err = f.engine.RejectPayment(ctx, res.Transaction.ID, "owner", "too late")
	assert.True(t, errs.HasCode(err, errs.CodeStateConflict))

	derived, err := f.record(t, res.BuyerRecord.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusCompleted, derived.Status)
}

func TestReadHelpers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := f.listed(t, "P-10", 310000)
	res := f.offer(t, seller.ID, "0110", 310000)

	_, err := f.engine.Get(ctx, res.Transaction.ID, "owner")
	assert.NoError(t, err)
	_, err = f.engine.Get(ctx, res.Transaction.ID, "stranger")
	assert.ErrorIs(t, err, settlement.ErrNotParty)

	mine, err := f.engine.ListForUser(ctx, res.BuyerID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, res.Transaction.ID, mine[0].ID)

	none, err := f.engine.ListForUser(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}
