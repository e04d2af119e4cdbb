package payment

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/MariamAlaa-8/realstate-backend/errs"
)

// DefaultFees is the fixed registration surcharge added to every sale.
const DefaultFees int64 = 300

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Open reports whether the transaction may still be paid, confirmed or rejected.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusPaid
}

type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCash         Method = "cash"
)

func (m Method) Valid() bool {
	return m == MethodBankTransfer || m == MethodCash
}

// Details is the payment metadata kept after a buyer pays. Only the last four
// digits of a card number are retained and the security code is never stored.
type Details struct {
	CardHolderName string
	CardLast4      string
	BankName       string
	AccountNumber  string
	ExpiryDate     string
}

// DetailsInput is what the buyer submits.
type DetailsInput struct {
	CardHolderName string
	CardNumber     string
	BankName       string
	AccountNumber  string
	SecurityCode   string
	ExpiryDate     string
}

// Sanitize reduces submitted details to the stored form.
func (in DetailsInput) Sanitize() Details {
	return Details{
		CardHolderName: strings.TrimSpace(in.CardHolderName),
		CardLast4:      lastDigits(in.CardNumber, 4),
		BankName:       strings.TrimSpace(in.BankName),
		AccountNumber:  strings.TrimSpace(in.AccountNumber),
		ExpiryDate:     strings.TrimSpace(in.ExpiryDate),
	}
}

func lastDigits(s string, n int) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) <= n {
		return string(digits)
	}
	return string(digits[len(digits)-n:])
}

// Transaction settles one sale. It references the buyer-side record.
type Transaction struct {
	ID          string
	ContractID  string
	SellerID    string
	BuyerID     string
	Amount      int64
	Fees        int64
	TotalAmount int64
	Status      Status
	Method      Method
	Details     Details
	Notes       string
	PaidAt      *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New builds a pending transaction with the default fees. TotalAmount is fixed
// here and never recomputed.
func New(id, contractID, sellerID, buyerID string, amount int64, now time.Time) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, errs.New(errs.CodeValidation, "payment: amount must be positive")
	}
	if amount > math.MaxInt64-DefaultFees {
		return Transaction{}, errs.New(errs.CodeValidation, "payment: amount too large")
	}
	return Transaction{
		ID:          id,
		ContractID:  contractID,
		SellerID:    sellerID,
		BuyerID:     buyerID,
		Amount:      amount,
		Fees:        DefaultFees,
		TotalAmount: amount + DefaultFees,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
