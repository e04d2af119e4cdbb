package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/store"
	"github.com/MariamAlaa-8/realstate-backend/store/memory"
	"github.com/MariamAlaa-8/realstate-backend/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
}

func TestInTxHonoursCancelledContext(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(store.Tx) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestSnapshotOrdersRecordsByCreation(t *testing.T) {
	s := memory.New()
	s.SeedUser(storetest.User("owner"))
	later := storetest.Record("b", "owner", "P-2", contract.StatusPending, testTime(2))
	earlier := storetest.Record("a", "owner", "P-1", contract.StatusPending, testTime(1))

	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.InsertContract(context.Background(), later); err != nil {
			return err
		}
		return tx.InsertContract(context.Background(), earlier)
	}))

	recs, txs, msgs := s.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Empty(t, txs)
	assert.Empty(t, msgs)
}
