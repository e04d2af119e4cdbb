package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

const contractColumns = `
    id, number, owner_id, owner_full_name, owner_national_id, owner_phone,
    property_number, address, governorate, category, property_type, floor, area, price,
    ownership_percentage, status, notes, admin_notes,
    COALESCE(approved_by, ''), approved_at, COALESCE(rejected_by, ''), rejected_at,
    sale_price, COALESCE(buyer_id, ''), COALESCE(seller_id, ''), payment_status, payment_method,
    sold_at, completed_at, pending_sale, COALESCE(pending_buyer_id, ''), COALESCE(pending_transaction_id, ''),
    contract_date, created_at, updated_at`

func scanContract(row pgx.Row) (contract.Record, error) {
	var rec contract.Record
	err := row.Scan(
		&rec.ID,
		&rec.Number,
		&rec.OwnerID,
		&rec.Owner.FullName,
		&rec.Owner.NationalID,
		&rec.Owner.Phone,
		&rec.Property.Number,
		&rec.Property.Address,
		&rec.Property.Governorate,
		&rec.Property.Category,
		&rec.Property.Type,
		&rec.Property.Floor,
		&rec.Property.Area,
		&rec.Property.Price,
		&rec.OwnershipPercentage,
		&rec.Status,
		&rec.Notes,
		&rec.AdminNotes,
		&rec.ApprovedBy,
		&rec.ApprovedAt,
		&rec.RejectedBy,
		&rec.RejectedAt,
		&rec.SalePrice,
		&rec.BuyerID,
		&rec.SellerID,
		&rec.PaymentStatus,
		&rec.PaymentMethod,
		&rec.SoldAt,
		&rec.CompletedAt,
		&rec.PendingSale,
		&rec.PendingBuyerID,
		&rec.PendingTransactionID,
		&rec.ContractDate,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}

func collectContracts(rows pgx.Rows) ([]contract.Record, error) {
	defer rows.Close()
	var out []contract.Record
	for rows.Next() {
		rec, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *Tx) InsertContract(ctx context.Context, rec contract.Record) error {
	const insertSQL = `
INSERT INTO contracts (
    id, number, owner_id, owner_full_name, owner_national_id, owner_phone,
    property_number, address, governorate, category, property_type, floor, area, price,
    ownership_percentage, status, notes, admin_notes,
    approved_by, approved_at, rejected_by, rejected_at,
    sale_price, buyer_id, seller_id, payment_status, payment_method,
    sold_at, completed_at, pending_sale, pending_buyer_id, pending_transaction_id,
    contract_date, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10, $11, $12, $13, $14,
    $15, $16, $17, $18,
    $19, $20, $21, $22,
    $23, $24, $25, $26, $27,
    $28, $29, $30, $31, $32,
    $33, $34, $35
)`

	err := t.savepoint(ctx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, insertSQL,
			rec.ID, rec.Number, rec.OwnerID, rec.Owner.FullName, rec.Owner.NationalID, rec.Owner.Phone,
			rec.Property.Number, rec.Property.Address, rec.Property.Governorate, rec.Property.Category, rec.Property.Type,
			rec.Property.Floor, rec.Property.Area, rec.Property.Price,
			rec.OwnershipPercentage, rec.Status, rec.Notes, rec.AdminNotes,
			nullable(rec.ApprovedBy), rec.ApprovedAt, nullable(rec.RejectedBy), rec.RejectedAt,
			rec.SalePrice, nullable(rec.BuyerID), nullable(rec.SellerID), rec.PaymentStatus, rec.PaymentMethod,
			rec.SoldAt, rec.CompletedAt, rec.PendingSale, nullable(rec.PendingBuyerID), nullable(rec.PendingTransactionID),
			rec.ContractDate, rec.CreatedAt, rec.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return translate(err, "insert contract")
	}
	return nil
}

func (t *Tx) GetContract(ctx context.Context, id string) (contract.Record, error) {
	rec, err := scanContract(t.tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
	if err != nil {
		return contract.Record{}, translate(err, "get contract")
	}
	return rec, nil
}

func (t *Tx) LockContract(ctx context.Context, id string) (contract.Record, error) {
	rec, err := scanContract(t.tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return contract.Record{}, translate(err, "lock contract")
	}
	return rec, nil
}

func (t *Tx) GetContractByNumber(ctx context.Context, number string) (contract.Record, error) {
	rec, err := scanContract(t.tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE number = $1`, number))
	if err != nil {
		return contract.Record{}, translate(err, "get contract by number")
	}
	return rec, nil
}

func (t *Tx) ListContracts(ctx context.Context, filter store.ContractFilter) ([]contract.Record, error) {
	var statuses []string
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.tx.Query(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE ($1::text = '' OR owner_id = $1::text)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
ORDER BY created_at DESC
LIMIT $3`, filter.OwnerID, statuses, limit)
	if err != nil {
		return nil, translate(err, "list contracts")
	}
	out, err := collectContracts(rows)
	if err != nil {
		return nil, translate(err, "scan contracts")
	}
	return out, nil
}

func (t *Tx) UpdateContract(ctx context.Context, rec contract.Record, expected contract.Status) error {
	const updateSQL = `
UPDATE contracts SET
    owner_id = $3, owner_full_name = $4, owner_national_id = $5, owner_phone = $6,
    status = $7, notes = $8, admin_notes = $9,
    approved_by = $10, approved_at = $11, rejected_by = $12, rejected_at = $13,
    sale_price = $14, buyer_id = $15, seller_id = $16, payment_status = $17, payment_method = $18,
    sold_at = $19, completed_at = $20,
    pending_sale = $21, pending_buyer_id = $22, pending_transaction_id = $23,
    updated_at = $24
WHERE id = $1 AND status = $2`

	tag, err := t.tx.Exec(ctx, updateSQL,
		rec.ID, expected,
		rec.OwnerID, rec.Owner.FullName, rec.Owner.NationalID, rec.Owner.Phone,
		rec.Status, rec.Notes, rec.AdminNotes,
		nullable(rec.ApprovedBy), rec.ApprovedAt, nullable(rec.RejectedBy), rec.RejectedAt,
		rec.SalePrice, nullable(rec.BuyerID), nullable(rec.SellerID), rec.PaymentStatus, rec.PaymentMethod,
		rec.SoldAt, rec.CompletedAt,
		rec.PendingSale, nullable(rec.PendingBuyerID), nullable(rec.PendingTransactionID),
		rec.UpdatedAt,
	)
	if err != nil {
		return translate(err, "update contract")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (t *Tx) DeleteContract(ctx context.Context, id string, expected contract.Status) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM contracts WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return translate(err, "delete contract")
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

func (t *Tx) FindSellerRecord(ctx context.Context, propertyNumber, ownerID, transactionID string) (contract.Record, error) {
	rec, err := scanContract(t.tx.QueryRow(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE property_number = $1
  AND owner_id = $2
  AND status IN ('for_sale', 'approved', 'sold')
  AND ((NOT pending_sale AND pending_transaction_id IS NULL) OR pending_transaction_id = $3)
ORDER BY CASE WHEN pending_transaction_id = $3 THEN 0 ELSE 1 END,
         CASE status WHEN 'for_sale' THEN 0 WHEN 'approved' THEN 1 ELSE 2 END,
         created_at DESC, id
LIMIT 1
FOR UPDATE`, propertyNumber, ownerID, nullable(transactionID)))
	if err != nil {
		return contract.Record{}, translate(err, "find seller record")
	}
	return rec, nil
}

func (t *Tx) FindByPendingTransaction(ctx context.Context, transactionID string) (contract.Record, error) {
	if transactionID == "" {
		return contract.Record{}, store.ErrNotFound
	}
	rec, err := scanContract(t.tx.QueryRow(ctx, `
SELECT `+contractColumns+`
FROM contracts
WHERE pending_transaction_id = $1
  AND seller_id IS NULL
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE`, transactionID))
	if err != nil {
		return contract.Record{}, translate(err, "find by pending transaction")
	}
	return rec, nil
}
