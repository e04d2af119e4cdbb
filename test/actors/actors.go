// Package actors drives concurrent registry traffic for the stress test.
package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/sale"
	"github.com/MariamAlaa-8/realstate-backend/settlement"
)

// Buyer is a pre-registered account that receives offers.
type Buyer struct {
	ID    string
	Name  string
	Phone string
}

// Expected reports whether err is an outcome of contention rather than a bug.
// Losing a race surfaces as a state conflict or a vanished row, and killed
// connections surface as store unavailability.
func Expected(err error) bool {
	return err == nil ||
		errs.HasCode(err, errs.CodeStateConflict) ||
		errs.HasCode(err, errs.CodeNotFound) ||
		errs.Retryable(err)
}

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(minMS, spreadMS int) {
	time.Sleep(time.Duration(minMS+rand.Intn(spreadMS)) * time.Millisecond)
}

// Offerer keeps opening offers on the seller's listings for random buyers.
func Offerer(ctx context.Context, m *sale.Manager, sellerID string, listings []string, buyers []Buyer, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		listing := listings[rand.Intn(len(listings))]
		buyer := buyers[rand.Intn(len(buyers))]
		amount := int64(400_000 + rand.Intn(200_000))
		_, err := m.InitiateSale(ctx, sale.InitiateParams{
			RecordID:   listing,
			SellerID:   sellerID,
			BuyerName:  buyer.Name,
			BuyerPhone: buyer.Phone,
			Amount:     &amount,
		})
		if !Expected(err) {
			return fmt.Errorf("offerer: initiate on %s: %w", listing, err)
		}
		pause(10, 20)
	}
}

// Payer pays whatever is pending for the buyer.
func Payer(ctx context.Context, e *settlement.Engine, buyerID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		txs, err := e.ListForUser(ctx, buyerID)
		if !Expected(err) {
			return fmt.Errorf("payer: list: %w", err)
		}
		for _, tr := range txs {
			if tr.Status != payment.StatusPending || tr.BuyerID != buyerID {
				continue
			}
			_, err := e.Pay(ctx, settlement.PayParams{
				TransactionID: tr.ID,
				BuyerID:       buyerID,
				Method:        payment.MethodBankTransfer,
				Details:       payment.DetailsInput{BankName: "NBE", AccountNumber: "0011223344"},
			})
			if !Expected(err) {
				return fmt.Errorf("payer: pay %s: %w", tr.ID, err)
			}
		}
		pause(20, 40)
	}
}

// Canceller withdraws a pending offer now and then.
func Canceller(ctx context.Context, m *sale.Manager, e *settlement.Engine, buyerID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		txs, err := e.ListForUser(ctx, buyerID)
		if !Expected(err) {
			return fmt.Errorf("canceller: list: %w", err)
		}
		for _, tr := range txs {
			if tr.Status != payment.StatusPending || tr.BuyerID != buyerID || rand.Intn(4) != 0 {
				continue
			}
			if err := m.CancelPendingPayment(ctx, tr.ContractID, buyerID); !Expected(err) {
				return fmt.Errorf("canceller: cancel %s: %w", tr.ContractID, err)
			}
		}
		pause(40, 60)
	}
}

// Settler confirms or rejects the seller's paid transactions. Roughly one in
// rejectOneIn is rejected.
func Settler(ctx context.Context, e *settlement.Engine, sellerID string, rejectOneIn int, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		txs, err := e.ListForUser(ctx, sellerID)
		if !Expected(err) {
			return fmt.Errorf("settler: list: %w", err)
		}
		for _, tr := range txs {
			if tr.SellerID != sellerID || tr.Status != payment.StatusPaid {
				continue
			}
			if rejectOneIn > 0 && rand.Intn(rejectOneIn) == 0 {
				_, err = e.RejectPayment(ctx, tr.ID, sellerID, "funds not received")
			} else {
				_, err = e.Confirm(ctx, settlement.ConfirmParams{TransactionID: tr.ID, SellerID: sellerID})
			}
			if !Expected(err) {
				return fmt.Errorf("settler: settle %s: %w", tr.ID, err)
			}
		}
		pause(30, 50)
	}
}
