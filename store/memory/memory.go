// Package memory is an in-process Store. A single lock serialises units of
// work; each unit mutates a private copy that replaces the shared state on
// success, so a failed unit leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

type state struct {
	contracts     map[string]contract.Record
	transactions  map[string]payment.Transaction
	users         map[string]auth.User
	outbox        []notification.Message
	notifications map[string]notification.Notification
	idempotency   map[string]string
}

func newState() *state {
	return &state{
		contracts:     make(map[string]contract.Record),
		transactions:  make(map[string]payment.Transaction),
		users:         make(map[string]auth.User),
		notifications: make(map[string]notification.Notification),
		idempotency:   make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := &state{
		contracts:     make(map[string]contract.Record, len(s.contracts)),
		transactions:  make(map[string]payment.Transaction, len(s.transactions)),
		users:         make(map[string]auth.User, len(s.users)),
		outbox:        make([]notification.Message, len(s.outbox)),
		notifications: make(map[string]notification.Notification, len(s.notifications)),
		idempotency:   make(map[string]string, len(s.idempotency)),
	}
	for k, v := range s.contracts {
		c.contracts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	copy(c.outbox, s.outbox)
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// Store is the in-memory store.
type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a private copy and publishes it when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&Tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// SeedUser inserts a user directly. Test helper.
func (s *Store) SeedUser(u auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

// Snapshot returns copies of every record, transaction and outbox row.
func (s *Store) Snapshot() ([]contract.Record, []payment.Transaction, []notification.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]contract.Record, 0, len(s.state.contracts))
	for _, r := range s.state.contracts {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	txs := make([]payment.Transaction, 0, len(s.state.transactions))
	for _, t := range s.state.transactions {
		txs = append(txs, t)
	}
	msgs := make([]notification.Message, len(s.state.outbox))
	copy(msgs, s.state.outbox)
	return recs, txs, msgs
}

func (s *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	var out auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.CreateUser(ctx, user)
		return err
	})
	return out, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (auth.User, error) {
	var out auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetUserByID(ctx, userID)
		return err
	})
	return out, err
}

func (s *Store) GetUserByPhone(ctx context.Context, phone string) (auth.User, error) {
	var out auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.GetUserByPhone(ctx, phone)
		return err
	})
	return out, err
}

func (s *Store) UpdateUser(ctx context.Context, user auth.User) error {
	return s.InTx(ctx, func(tx store.Tx) error { return tx.UpdateUser(ctx, user) })
}

func (s *Store) ListUsersByRole(ctx context.Context, role auth.Role) ([]auth.User, error) {
	var out []auth.User
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListUsersByRole(ctx, role)
		return err
	})
	return out, err
}

func (s *Store) PurgeInactiveUsers(ctx context.Context, cutoff time.Time) ([]string, error) {
	var out []string
	err := s.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.PurgeInactiveUsers(ctx, cutoff)
		return err
	})
	return out, err
}

var _ store.Store = (*Store)(nil)
