// Package oracles holds SQL invariants that must hold at every committed
// snapshot of the registry.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_open_offer_per_listing",
			SQL: `SELECT d.property_number, d.seller_id, COUNT(*) FROM transactions t
                  JOIN contracts d ON d.id = t.contract_id
                  WHERE t.status IN ('pending', 'paid')
                  GROUP BY d.property_number, d.seller_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_fixed_fees",
			SQL:  `SELECT id, amount, fees, total_amount FROM transactions WHERE fees <> 300 OR total_amount <> amount + 300`,
		},
		{
			Name: "O3_marker_points_at_open_transaction",
			SQL: `SELECT c.id, c.pending_transaction_id FROM contracts c
                  LEFT JOIN transactions t ON t.id = c.pending_transaction_id
                  WHERE c.seller_id IS NULL AND c.pending_sale
                    AND (t.id IS NULL OR t.status NOT IN ('pending', 'paid'))`,
		},
		{
			Name: "O4_open_transaction_has_buyer_record",
			SQL: `SELECT t.id FROM transactions t
                  LEFT JOIN contracts d ON d.id = t.contract_id
                  WHERE t.status IN ('pending', 'paid')
                    AND (d.id IS NULL OR d.status <> 'sale_pending' OR d.pending_transaction_id IS DISTINCT FROM t.id)`,
		},
		{
			Name: "O5_completed_transaction_mirrors_record",
			SQL: `SELECT t.id FROM transactions t
                  JOIN contracts d ON d.id = t.contract_id
                  WHERE t.status = 'completed'
                    AND (d.status <> 'completed' OR d.payment_status <> 'confirmed' OR d.pending_transaction_id IS NOT NULL)`,
		},
		{
			Name: "O6_sold_record_is_closed",
			SQL: `SELECT id FROM contracts
                  WHERE status = 'sold' AND (buyer_id IS NULL OR sold_at IS NULL OR pending_sale OR pending_transaction_id IS NOT NULL)`,
		},
		{
			Name: "O7_cancelled_leaves_no_pending_record",
			SQL: `SELECT t.id FROM transactions t
                  JOIN contracts d ON d.id = t.contract_id
                  WHERE t.status = 'cancelled' AND d.status = 'sale_pending'`,
		},
		{
			Name: "O8_no_double_sale",
			SQL: `SELECT property_number, seller_id, COUNT(*) FROM contracts
                  WHERE status = 'completed' AND seller_id IS NOT NULL
                  GROUP BY property_number, seller_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_outbox_drained",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '2 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
