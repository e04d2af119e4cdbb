package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

// DefaultPageSize bounds list reads without an explicit limit.
const DefaultPageSize = 100

func (c *Controller) Get(ctx context.Context, recordID string) (contract.Record, error) {
	var rec contract.Record
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.GetContract(ctx, recordID)
		return err
	})
	if err != nil {
		return contract.Record{}, fmt.Errorf("lifecycle: get record %s: %w", recordID, err)
	}
	return rec, nil
}

// GetByNumber looks a record up by its human-readable number.
func (c *Controller) GetByNumber(ctx context.Context, number string) (contract.Record, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !contract.ValidNumber(number) {
		return contract.Record{}, errs.Newf(errs.CodeValidation, "lifecycle: malformed record number %q", number)
	}
	var rec contract.Record
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.GetContractByNumber(ctx, number)
		return err
	})
	if err != nil {
		return contract.Record{}, fmt.Errorf("lifecycle: get record %s: %w", number, err)
	}
	return rec, nil
}

// ListByOwner returns the owner's records, newest first.
func (c *Controller) ListByOwner(ctx context.Context, ownerID string) ([]contract.Record, error) {
	return c.list(ctx, store.ContractFilter{OwnerID: ownerID, Limit: DefaultPageSize})
}

// ListPending is the administrators' review queue.
func (c *Controller) ListPending(ctx context.Context, limit int) ([]contract.Record, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return c.list(ctx, store.ContractFilter{Statuses: []contract.Status{contract.StatusPending}, Limit: limit})
}

// ListMarket returns every record currently offered for sale.
func (c *Controller) ListMarket(ctx context.Context, limit int) ([]contract.Record, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return c.list(ctx, store.ContractFilter{Statuses: []contract.Status{contract.StatusForSale}, Limit: limit})
}

func (c *Controller) list(ctx context.Context, filter store.ContractFilter) ([]contract.Record, error) {
	var out []contract.Record
	err := c.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListContracts(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list records: %w", err)
	}
	return out, nil
}
