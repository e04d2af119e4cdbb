package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/settlement"
)

type paymentDetailsResponse struct {
	CardHolderName string `json:"cardHolderName,omitempty"`
	CardLast4      string `json:"cardLast4,omitempty"`
	BankName       string `json:"bankName,omitempty"`
	AccountNumber  string `json:"accountNumber,omitempty"`
	ExpiryDate     string `json:"expiryDate,omitempty"`
}

type transactionResponse struct {
	ID             string                 `json:"id"`
	ContractID     string                 `json:"contractId"`
	SellerID       string                 `json:"sellerId"`
	BuyerID        string                 `json:"buyerId"`
	Amount         int64                  `json:"amount"`
	Fees           int64                  `json:"fees"`
	TotalAmount    int64                  `json:"totalAmount"`
	Status         string                 `json:"status"`
	PaymentMethod  string                 `json:"paymentMethod"`
	PaymentDetails paymentDetailsResponse `json:"paymentDetails"`
	Notes          string                 `json:"notes,omitempty"`
	PaidAt         string                 `json:"paidAt,omitempty"`
	CompletedAt    string                 `json:"completedAt,omitempty"`
	CancelledAt    string                 `json:"cancelledAt,omitempty"`
	CreatedAt      string                 `json:"createdAt"`
}

func toTransactionResponse(tr payment.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tr.ID,
		ContractID:    tr.ContractID,
		SellerID:      tr.SellerID,
		BuyerID:       tr.BuyerID,
		Amount:        tr.Amount,
		Fees:          tr.Fees,
		TotalAmount:   tr.TotalAmount,
		Status:        string(tr.Status),
		PaymentMethod: string(tr.Method),
		PaymentDetails: paymentDetailsResponse{
			CardHolderName: tr.Details.CardHolderName,
			CardLast4:      tr.Details.CardLast4,
			BankName:       tr.Details.BankName,
			AccountNumber:  tr.Details.AccountNumber,
			ExpiryDate:     tr.Details.ExpiryDate,
		},
		Notes:       tr.Notes,
		PaidAt:      formatTimePtr(tr.PaidAt),
		CompletedAt: formatTimePtr(tr.CompletedAt),
		CancelledAt: formatTimePtr(tr.CancelledAt),
		CreatedAt:   formatTime(tr.CreatedAt),
	}
}

func (s *Server) handleMyTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.settlement.ListForUser(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]transactionResponse, 0, len(txs))
	for _, tr := range txs {
		items = append(items, toTransactionResponse(tr))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	tr, err := s.settlement.Get(r.Context(), chi.URLParam(r, "transactionID"), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tr))
}

type payRequest struct {
	PaymentMethod  string `json:"paymentMethod"`
	CardHolderName string `json:"cardHolderName"`
	CardNumber     string `json:"cardNumber"`
	BankName       string `json:"bankName"`
	AccountNumber  string `json:"accountNumber"`
	SecurityCode   string `json:"cvv"`
	ExpiryDate     string `json:"expiryDate"`
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tr, err := s.settlement.Pay(r.Context(), settlement.PayParams{
		TransactionID: chi.URLParam(r, "transactionID"),
		BuyerID:       userIDFromContext(r.Context()),
		Method:        payment.Method(req.PaymentMethod),
		Details: payment.DetailsInput{
			CardHolderName: req.CardHolderName,
			CardNumber:     req.CardNumber,
			BankName:       req.BankName,
			AccountNumber:  req.AccountNumber,
			SecurityCode:   req.SecurityCode,
			ExpiryDate:     req.ExpiryDate,
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tr))
}

type confirmResponse struct {
	Transaction  transactionResponse `json:"transaction"`
	BuyerRecord  contractResponse    `json:"buyerContract"`
	SellerRecord *contractResponse   `json:"sellerContract,omitempty"`
	Replayed     bool                `json:"replayed"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	res, err := s.settlement.Confirm(r.Context(), settlement.ConfirmParams{
		TransactionID:  chi.URLParam(r, "transactionID"),
		SellerID:       userIDFromContext(r.Context()),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := confirmResponse{
		Transaction: toTransactionResponse(res.Transaction),
		BuyerRecord: toContractResponse(res.BuyerRecord),
		Replayed:    res.Replayed,
	}
	if res.SellerRecord != nil {
		seller := toContractResponse(*res.SellerRecord)
		resp.SellerRecord = &seller
	}
	writeJSON(w, http.StatusOK, resp)
}

type rejectPaymentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	var req rejectPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tr, err := s.settlement.RejectPayment(r.Context(), chi.URLParam(r, "transactionID"), userIDFromContext(r.Context()), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tr))
}
