package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MariamAlaa-8/realstate-backend/store"
	"github.com/MariamAlaa-8/realstate-backend/store/postgres"
	"github.com/MariamAlaa-8/realstate-backend/store/storetest"
	"github.com/MariamAlaa-8/realstate-backend/test/infra"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if !infra.DockerAvailable(ctx) && os.Getenv(infra.DSNEnv) == "" {
		t.Skip("docker not available and no database configured")
	}

	h, err := infra.NewHarness(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(context.Background()) })

	s := postgres.New(h.Pool())
	storetest.Run(t, func(t *testing.T) store.Store {
		require.NoError(t, h.Reset(ctx))
		return s
	})
}
