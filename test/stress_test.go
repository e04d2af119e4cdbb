package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/logging"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/notification/relay"
	"github.com/MariamAlaa-8/realstate-backend/sale"
	"github.com/MariamAlaa-8/realstate-backend/settlement"
	"github.com/MariamAlaa-8/realstate-backend/store"
	"github.com/MariamAlaa-8/realstate-backend/store/postgres"
	"github.com/MariamAlaa-8/realstate-backend/store/storetest"
	"github.com/MariamAlaa-8/realstate-backend/test/actors"
	"github.com/MariamAlaa-8/realstate-backend/test/chaos"
	"github.com/MariamAlaa-8/realstate-backend/test/infra"
	"github.com/MariamAlaa-8/realstate-backend/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 4, "number of concurrent buyers")
	flChaos       = flag.Bool("chaos", false, "terminate random database backends while running")
)

const sellerID = "seller"

func TestSaleConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()
	if os.Getenv(infra.DSNEnv) == "" && !infra.DockerAvailable(ctx) {
		t.Skipf("docker unavailable and %s unset", infra.DSNEnv)
	}

	h, err := infra.NewHarness(ctx)
	if err != nil {
		t.Fatalf("start harness: %v", err)
	}
	defer h.Close(context.Background())
	if err := h.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	st := postgres.New(h.Pool())
	buyers, listings := mustSeed(t, ctx, st, *flConcurrency)

	logger := logging.Discard()
	dispatcher := notification.NewDispatcher(logger, nil)
	manager := sale.NewManager(st, dispatcher, sale.WithLogger(logger))
	engine := settlement.NewEngine(st, dispatcher, settlement.WithLogger(logger))
	validator, err := relay.NewValidator()
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	outboxRelay := relay.New(st, validator, relay.Config{Interval: 200 * time.Millisecond, BatchSize: 50, MaxAttempts: 5},
		relay.WithLogger(logger))

	g, ctx2 := errgroup.WithContext(ctx)
	relayCtx, stopRelay := context.WithCancel(ctx2)
	defer stopRelay()
	stop := make(chan struct{})

	g.Go(func() error { return actors.Offerer(ctx2, manager, sellerID, listings, buyers, stop) })
	g.Go(func() error { return actors.Offerer(ctx2, manager, sellerID, listings, buyers, stop) })
	g.Go(func() error { return actors.Settler(ctx2, engine, sellerID, 5, stop) })
	for _, b := range buyers {
		b := b
		g.Go(func() error { return actors.Payer(ctx2, engine, b.ID, stop) })
		g.Go(func() error { return actors.Canceller(ctx2, manager, engine, b.ID, stop) })
	}
	g.Go(func() error { return outboxRelay.Run(relayCtx) })
	if *flChaos {
		go chaos.TerminateRandomBackend(ctx2, h.Pool(), stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, h.Pool())
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				if *flChaos {
					t.Logf("oracle run interrupted: %v", err)
					continue
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				dumpRecent(t, ctx2, h.Pool())
				t.Fatalf("Oracle %s failed. First row: %s", name, row)
			}
		}
	}

	close(stop)
	stopRelay()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("actors errored: %v", err)
	}

	name, row, err := oracles.Run(context.Background(), h.Pool())
	if err != nil {
		t.Fatalf("final oracle run: %v", err)
	}
	if name != "" {
		dumpRecent(t, context.Background(), h.Pool())
		t.Fatalf("Oracle %s failed after shutdown. First row: %s", name, row)
	}
}

func mustSeed(t *testing.T, ctx context.Context, st store.Store, buyerCount int) ([]actors.Buyer, []string) {
	t.Helper()
	if _, err := st.CreateUser(ctx, storetest.User(sellerID)); err != nil {
		t.Fatalf("seed seller: %v", err)
	}

	buyers := make([]actors.Buyer, 0, buyerCount)
	for i := 0; i < buyerCount; i++ {
		u := storetest.User(fmt.Sprintf("buyer-%d", i))
		if _, err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed buyer: %v", err)
		}
		buyers = append(buyers, actors.Buyer{ID: u.ID, Name: u.FullName, Phone: u.Phone})
	}

	listings := make([]string, 0, 2*buyerCount)
	created := time.Now().UTC().Add(-time.Hour)
	err := st.InTx(ctx, func(tx store.Tx) error {
		for i := 0; i < 2*buyerCount; i++ {
			rec := storetest.Record(fmt.Sprintf("listing-%d", i), sellerID, fmt.Sprintf("P-%04d", i), contract.StatusForSale, created)
			if err := tx.InsertContract(ctx, rec); err != nil {
				return err
			}
			listings = append(listings, rec.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed listings: %v", err)
	}
	return buyers, listings
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"contracts", `SELECT id, property_number, status, seller_id, pending_sale, pending_transaction_id FROM contracts ORDER BY updated_at DESC LIMIT 50`},
		{"transactions", `SELECT id, contract_id, status, amount, updated_at FROM transactions ORDER BY updated_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
