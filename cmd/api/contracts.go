package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/lifecycle"
	"github.com/MariamAlaa-8/realstate-backend/sale"
)

type contractResponse struct {
	ID                  string   `json:"id"`
	Number              string   `json:"contractNumber"`
	OwnerID             string   `json:"ownerId"`
	OwnerName           string   `json:"ownerName"`
	OwnerPhone          string   `json:"ownerPhone"`
	PropertyNumber      string   `json:"propertyNumber"`
	Address             string   `json:"address"`
	Governorate         string   `json:"governorate"`
	Category            string   `json:"category"`
	PropertyType        string   `json:"propertyType"`
	Floor               *int     `json:"floor,omitempty"`
	Area                float64  `json:"area"`
	Price               int64    `json:"price"`
	SalePrice           *int64   `json:"salePrice,omitempty"`
	OwnershipPercentage float64  `json:"ownershipPercentage"`
	Status              string   `json:"status"`
	Notes               string   `json:"notes,omitempty"`
	AdminNotes          string   `json:"adminNotes,omitempty"`
	SellerID            string   `json:"sellerId,omitempty"`
	BuyerID             string   `json:"buyerId,omitempty"`
	PaymentStatus       string   `json:"paymentStatus,omitempty"`
	PaymentMethod       string   `json:"paymentMethod,omitempty"`
	PendingSale         bool     `json:"pendingSale"`
	PendingTransaction  string   `json:"pendingTransactionId,omitempty"`
	ApprovedAt          string   `json:"approvedAt,omitempty"`
	RejectedAt          string   `json:"rejectedAt,omitempty"`
	SoldAt              string   `json:"soldAt,omitempty"`
	CompletedAt         string   `json:"completedAt,omitempty"`
	ContractDate        string   `json:"contractDate"`
	CreatedAt           string   `json:"createdAt"`
	Actions             []string `json:"actions,omitempty"`
}

func toContractResponse(rec contract.Record) contractResponse {
	return contractResponse{
		ID:                  rec.ID,
		Number:              rec.Number,
		OwnerID:             rec.OwnerID,
		OwnerName:           rec.Owner.FullName,
		OwnerPhone:          rec.Owner.Phone,
		PropertyNumber:      rec.Property.Number,
		Address:             rec.Property.Address,
		Governorate:         string(rec.Property.Governorate),
		Category:            string(rec.Property.Category),
		PropertyType:        rec.Property.Type,
		Floor:               rec.Property.Floor,
		Area:                rec.Property.Area,
		Price:               rec.Property.Price,
		SalePrice:           rec.SalePrice,
		OwnershipPercentage: rec.OwnershipPercentage,
		Status:              string(rec.Status),
		Notes:               rec.Notes,
		AdminNotes:          rec.AdminNotes,
		SellerID:            rec.SellerID,
		BuyerID:             rec.BuyerID,
		PaymentStatus:       string(rec.PaymentStatus),
		PaymentMethod:       rec.PaymentMethod,
		PendingSale:         rec.PendingSale,
		PendingTransaction:  rec.PendingTransactionID,
		ApprovedAt:          formatTimePtr(rec.ApprovedAt),
		RejectedAt:          formatTimePtr(rec.RejectedAt),
		SoldAt:              formatTimePtr(rec.SoldAt),
		CompletedAt:         formatTimePtr(rec.CompletedAt),
		ContractDate:        formatTime(rec.ContractDate),
		CreatedAt:           formatTime(rec.CreatedAt),
	}
}

// withActions annotates a record with what userID may do next.
func withActions(rec contract.Record, userID string) contractResponse {
	resp := toContractResponse(rec)
	if rec.OwnerID == userID && !rec.PendingSale {
		if rec.Status == contract.StatusApproved {
			resp.Actions = append(resp.Actions, "list_for_sale")
		}
		if contract.ForSaleEligible(rec.Status) {
			resp.Actions = append(resp.Actions, "initiate_sale")
		}
	}
	if rec.OwnerID == userID && rec.Status == contract.StatusSalePending {
		resp.Actions = append(resp.Actions, "cancel_sale")
	}
	return resp
}

func contractList(recs []contract.Record, userID string) map[string]any {
	items := make([]contractResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, withActions(rec, userID))
	}
	return map[string]any{"items": items, "total": len(items)}
}

// canView reports whether a caller may read rec. Market listings are public
// to every authenticated user.
func canView(rec contract.Record, userID string, role auth.Role) bool {
	switch {
	case role == auth.RoleAdmin:
		return true
	case rec.Status == contract.StatusForSale:
		return true
	}
	return userID != "" && (rec.OwnerID == userID || rec.SellerID == userID || rec.BuyerID == userID || rec.PendingBuyerID == userID)
}

type submitContractRequest struct {
	OwnerName           string  `json:"ownerName"`
	NationalID          string  `json:"nationalId"`
	Phone               string  `json:"phone"`
	PropertyNumber      string  `json:"propertyNumber"`
	Address             string  `json:"address"`
	Governorate         string  `json:"governorate"`
	Category            string  `json:"category"`
	PropertyType        string  `json:"propertyType"`
	Floor               *int    `json:"floor"`
	Area                float64 `json:"area"`
	Price               int64   `json:"price"`
	OwnershipPercentage float64 `json:"ownershipPercentage"`
	Notes               string  `json:"notes"`
	ContractDate        string  `json:"contractDate"`
}

func parseContractDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.Newf(errs.CodeValidation, "contractDate %q is not a date", raw)
	}
	return t, nil
}

func (s *Server) handleSubmitContract(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var req submitContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	contractDate, err := parseContractDate(req.ContractDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.authService.GetUserByID(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner := contract.Owner{
		FullName:   firstNonEmpty(req.OwnerName, user.FullName),
		NationalID: firstNonEmpty(req.NationalID, user.NationalID),
		Phone:      firstNonEmpty(req.Phone, user.Phone),
	}

	rec, err := s.contracts.Submit(r.Context(), lifecycle.SubmitParams{
		OwnerID: userID,
		Owner:   owner,
		Property: contract.Property{
			Number:      req.PropertyNumber,
			Address:     req.Address,
			Governorate: contract.Governorate(req.Governorate),
			Category:    contract.Category(req.Category),
			Type:        req.PropertyType,
			Floor:       req.Floor,
			Area:        req.Area,
			Price:       req.Price,
		},
		OwnershipPercentage: req.OwnershipPercentage,
		Notes:               req.Notes,
		ContractDate:        contractDate,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractResponse(rec))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) handleMyContracts(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	recs, err := s.contracts.ListByOwner(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractList(recs, userID))
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	recs, err := s.contracts.ListMarket(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractList(recs, userIDFromContext(r.Context())))
}

func (s *Server) handleContract(w http.ResponseWriter, r *http.Request) {
	rec, err := s.contracts.Get(r.Context(), chi.URLParam(r, "contractID"))
	s.writeVisibleContract(w, r, rec, err)
}

func (s *Server) handleContractByNumber(w http.ResponseWriter, r *http.Request) {
	rec, err := s.contracts.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	s.writeVisibleContract(w, r, rec, err)
}

func (s *Server) writeVisibleContract(w http.ResponseWriter, r *http.Request, rec contract.Record, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	userID := userIDFromContext(r.Context())
	if !canView(rec, userID, roleFromContext(r.Context())) {
		writeErrorMessage(w, http.StatusForbidden, "not a party to this record")
		return
	}
	writeJSON(w, http.StatusOK, withActions(rec, userID))
}

type listForSaleRequest struct {
	SalePrice *int64 `json:"salePrice"`
}

func (s *Server) handleListForSale(w http.ResponseWriter, r *http.Request) {
	var req listForSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.contracts.ListForSale(r.Context(), chi.URLParam(r, "contractID"), userIDFromContext(r.Context()), req.SalePrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(rec))
}

type initiateSaleRequest struct {
	BuyerName  string `json:"buyerName"`
	BuyerPhone string `json:"buyerPhone"`
	Amount     *int64 `json:"amount"`
}

type initiateSaleResponse struct {
	Transaction transactionResponse `json:"transaction"`
	BuyerRecord contractResponse    `json:"buyerContract"`
	BuyerID     string              `json:"buyerId"`
	NewBuyer    bool                `json:"newBuyer"`
	PaymentLink string              `json:"paymentLink"`
	Replayed    bool                `json:"replayed"`
}

func (s *Server) handleInitiateSale(w http.ResponseWriter, r *http.Request) {
	var req initiateSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.sales.InitiateSale(r.Context(), sale.InitiateParams{
		RecordID:       chi.URLParam(r, "contractID"),
		SellerID:       userIDFromContext(r.Context()),
		BuyerName:      req.BuyerName,
		BuyerPhone:     req.BuyerPhone,
		Amount:         req.Amount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, initiateSaleResponse{
		Transaction: toTransactionResponse(res.Transaction),
		BuyerRecord: toContractResponse(res.BuyerRecord),
		BuyerID:     res.BuyerID,
		NewBuyer:    res.NewBuyer,
		PaymentLink: res.PaymentLink,
		Replayed:    res.Replayed,
	})
}

func (s *Server) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	if err := s.sales.CancelPendingPayment(r.Context(), chi.URLParam(r, "contractID"), userIDFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingContracts(w http.ResponseWriter, r *http.Request) {
	recs, err := s.contracts.ListPending(r.Context(), queryLimit(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contractList(recs, userIDFromContext(r.Context())))
}

type reviewRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.contracts.Approve(r.Context(), chi.URLParam(r, "contractID"), userIDFromContext(r.Context()), req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(rec))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.contracts.Reject(r.Context(), chi.URLParam(r, "contractID"), userIDFromContext(r.Context()), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(rec))
}
