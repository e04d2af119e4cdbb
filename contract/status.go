package contract

import "github.com/MariamAlaa-8/realstate-backend/errs"

type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusForSale     Status = "for_sale"
	StatusSalePending Status = "sale_pending"
	StatusSold        Status = "sold"
	StatusCompleted   Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusApproved, StatusRejected},
	StatusApproved:    {StatusForSale, StatusSold},
	StatusForSale:     {StatusSold},
	StatusSalePending: {StatusCompleted},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusForSale,
		StatusSalePending, StatusSold, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusSold || s == StatusCompleted
}

// CanTransition reports whether from -> to is an edge of the title lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the record to next or fails with a state conflict,
// leaving the record untouched.
func (r *Record) TransitionTo(next Status) error {
	if !CanTransition(r.Status, next) {
		return errs.Newf(errs.CodeStateConflict, "contract: cannot move %s record to %s", r.Status, next)
	}
	r.Status = next
	return nil
}

// ForSaleEligible reports whether a sale may be initiated from s.
func ForSaleEligible(s Status) bool {
	return s == StatusApproved || s == StatusForSale
}
