package contract

import "time"

// Owner identifies the person a record is registered to.
type Owner struct {
	FullName   string
	NationalID string
	Phone      string
}

// Record is an ownership record ("contract"): one claimed or transferred title.
// A buyer-side record derived from a sale carries SellerID; the seller's
// original record carries the pending sale markers while an offer is open.
type Record struct {
	ID                  string
	Number              string
	OwnerID             string
	Owner               Owner
	Property            Property
	OwnershipPercentage float64
	Status              Status
	Notes               string
	AdminNotes          string

	ApprovedBy string
	ApprovedAt *time.Time
	RejectedBy string
	RejectedAt *time.Time

	SalePrice     *int64
	BuyerID       string
	SellerID      string
	PaymentStatus PaymentStatus
	PaymentMethod string
	SoldAt        *time.Time
	CompletedAt   *time.Time

	PendingSale          bool
	PendingBuyerID       string
	PendingTransactionID string

	ContractDate time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaymentStatus mirrors the state of the linked transaction on a buyer-side record.
type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// MarkPendingSale annotates the record with an outstanding offer.
func (r *Record) MarkPendingSale(buyerID, transactionID string) {
	r.PendingSale = true
	r.PendingBuyerID = buyerID
	r.PendingTransactionID = transactionID
}

// ClearPendingSale drops the outstanding offer markers.
func (r *Record) ClearPendingSale() {
	r.PendingSale = false
	r.PendingBuyerID = ""
	r.PendingTransactionID = ""
}

// AskingPrice is the sale price when set, else the base price.
func (r Record) AskingPrice() int64 {
	if r.SalePrice != nil {
		return *r.SalePrice
	}
	return r.Property.Price
}

// IsDerived reports whether the record was created by a sale for its buyer.
func (r Record) IsDerived() bool {
	return r.SellerID != ""
}
