package payment

import (
	"math"
	"testing"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/errs"
)

func TestNewComputesTotalOnce(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	tx, err := New("tx-1", "c-1", "seller", "buyer", 550000, now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tx.Fees != 300 || tx.TotalAmount != 550300 {
		t.Fatalf("expected fees 300 total 550300, got %d/%d", tx.Fees, tx.TotalAmount)
	}
	if tx.Status != StatusPending {
		t.Fatalf("expected pending got %s", tx.Status)
	}

	if _, err := New("tx-2", "c-1", "seller", "buyer", 0, now); !errs.HasCode(err, errs.CodeValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
}

func TestNewRejectsAmountThatOverflowsTotal(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, err := New("tx-1", "c-1", "seller", "buyer", math.MaxInt64-100, now); !errs.HasCode(err, errs.CodeValidation) {
		t.Fatalf("expected validation error for overflowing amount, got %v", err)
	}

	tx, err := New("tx-2", "c-1", "seller", "buyer", math.MaxInt64-DefaultFees, now)
	if err != nil {
		t.Fatalf("new at the limit: %v", err)
	}
	if tx.TotalAmount != math.MaxInt64 {
		t.Fatalf("expected total %d, got %d", int64(math.MaxInt64), tx.TotalAmount)
	}
}

func TestSanitizeDropsSensitiveFields(t *testing.T) {
	in := DetailsInput{
		CardHolderName: "  Omar Khaled ",
		CardNumber:     "4111 1111 1111 1234",
		SecurityCode:   "999",
		BankName:       "NBE",
		ExpiryDate:     "12/29",
	}
	got := in.Sanitize()
	if got.CardLast4 != "1234" {
		t.Fatalf("expected last four 1234 got %q", got.CardLast4)
	}
	if got.CardHolderName != "Omar Khaled" {
		t.Fatalf("expected trimmed holder name got %q", got.CardHolderName)
	}
	if (DetailsInput{CardNumber: "12"}).Sanitize().CardLast4 != "12" {
		t.Fatal("short card numbers should be kept as is")
	}
}

func TestStatusOpenAndMethods(t *testing.T) {
	if !StatusPending.Open() || !StatusPaid.Open() {
		t.Fatal("pending and paid must be open")
	}
	if StatusCompleted.Open() || StatusCancelled.Open() {
		t.Fatal("completed and cancelled must be closed")
	}
	if !MethodCash.Valid() || Method("crypto").Valid() {
		t.Fatal("unexpected method validity")
	}
}
