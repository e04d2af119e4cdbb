package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

const transactionColumns = `
    id, contract_id, seller_id, buyer_id, amount, fees, total_amount, status, method,
    card_holder_name, card_last4, bank_name, account_number, expiry_date, notes,
    paid_at, completed_at, cancelled_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (payment.Transaction, error) {
	var t payment.Transaction
	err := row.Scan(
		&t.ID,
		&t.ContractID,
		&t.SellerID,
		&t.BuyerID,
		&t.Amount,
		&t.Fees,
		&t.TotalAmount,
		&t.Status,
		&t.Method,
		&t.Details.CardHolderName,
		&t.Details.CardLast4,
		&t.Details.BankName,
		&t.Details.AccountNumber,
		&t.Details.ExpiryDate,
		&t.Notes,
		&t.PaidAt,
		&t.CompletedAt,
		&t.CancelledAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

func (t *Tx) InsertTransaction(ctx context.Context, tr payment.Transaction) error {
	const insertSQL = `
INSERT INTO transactions (
    id, contract_id, seller_id, buyer_id, amount, fees, total_amount, status, method,
    card_holder_name, card_last4, bank_name, account_number, expiry_date, notes,
    paid_at, completed_at, cancelled_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := t.tx.Exec(ctx, insertSQL,
		tr.ID, tr.ContractID, tr.SellerID, tr.BuyerID, tr.Amount, tr.Fees, tr.TotalAmount, tr.Status, tr.Method,
		tr.Details.CardHolderName, tr.Details.CardLast4, tr.Details.BankName, tr.Details.AccountNumber, tr.Details.ExpiryDate, tr.Notes,
		tr.PaidAt, tr.CompletedAt, tr.CancelledAt, tr.CreatedAt, tr.UpdatedAt,
	)
	if err != nil {
		return translate(err, "insert transaction")
	}
	return nil
}

func (t *Tx) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return payment.Transaction{}, translate(err, "get transaction")
	}
	return tr, nil
}

func (t *Tx) LockTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return payment.Transaction{}, translate(err, "lock transaction")
	}
	return tr, nil
}

// UpdateTransaction never touches amount, fees or total_amount.
func (t *Tx) UpdateTransaction(ctx context.Context, tr payment.Transaction, expected payment.Status) error {
	const updateSQL = `
UPDATE transactions SET
    status = $3, method = $4,
    card_holder_name = $5, card_last4 = $6, bank_name = $7, account_number = $8, expiry_date = $9,
    notes = $10, paid_at = $11, completed_at = $12, cancelled_at = $13, updated_at = $14
WHERE id = $1 AND status = $2`

	tag, err := t.tx.Exec(ctx, updateSQL,
		tr.ID, expected,
		tr.Status, tr.Method,
		tr.Details.CardHolderName, tr.Details.CardLast4, tr.Details.BankName, tr.Details.AccountNumber, tr.Details.ExpiryDate,
		tr.Notes, tr.PaidAt, tr.CompletedAt, tr.CancelledAt, tr.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update transaction")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (t *Tx) ListTransactions(ctx context.Context, userID string) ([]payment.Transaction, error) {
	rows, err := t.tx.Query(ctx, `
SELECT `+transactionColumns+`
FROM transactions
WHERE buyer_id = $1 OR seller_id = $1
ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, translate(err, "list transactions")
	}
	defer rows.Close()

	var out []payment.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, translate(err, "scan transaction")
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list transactions")
	}
	return out, nil
}
