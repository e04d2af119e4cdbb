package memory

import (
	"context"
	"sort"
	"time"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/contract"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/payment"
	"github.com/MariamAlaa-8/realstate-backend/store"
)

// Tx operates on the private copy of one unit of work.
type Tx struct {
	st *state
}

var _ store.Tx = (*Tx)(nil)

func (t *Tx) InsertContract(_ context.Context, rec contract.Record) error {
	if _, ok := t.st.contracts[rec.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range t.st.contracts {
		if existing.Number == rec.Number {
			return store.ErrDuplicate
		}
	}
	t.st.contracts[rec.ID] = rec
	return nil
}

func (t *Tx) GetContract(_ context.Context, id string) (contract.Record, error) {
	rec, ok := t.st.contracts[id]
	if !ok {
		return contract.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (t *Tx) LockContract(ctx context.Context, id string) (contract.Record, error) {
	return t.GetContract(ctx, id)
}

func (t *Tx) GetContractByNumber(_ context.Context, number string) (contract.Record, error) {
	for _, rec := range t.st.contracts {
		if rec.Number == number {
			return rec, nil
		}
	}
	return contract.Record{}, store.ErrNotFound
}

func (t *Tx) ListContracts(_ context.Context, filter store.ContractFilter) ([]contract.Record, error) {
	var out []contract.Record
	for _, rec := range t.st.contracts {
		if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, rec.Status) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func hasStatus(set []contract.Status, s contract.Status) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

func (t *Tx) UpdateContract(_ context.Context, rec contract.Record, expected contract.Status) error {
	current, ok := t.st.contracts[rec.ID]
	if !ok || current.Status != expected {
		return store.ErrConflict
	}
	rec.Number = current.Number
	t.st.contracts[rec.ID] = rec
	return nil
}

func (t *Tx) DeleteContract(_ context.Context, id string, expected contract.Status) error {
	current, ok := t.st.contracts[id]
	if !ok || current.Status != expected {
		return store.ErrConflict
	}
	delete(t.st.contracts, id)
	return nil
}

func (t *Tx) FindSellerRecord(_ context.Context, propertyNumber, ownerID, transactionID string) (contract.Record, error) {
	var (
		best     contract.Record
		bestRank int
		found    bool
	)
	for _, rec := range t.st.contracts {
		if rec.Property.Number != propertyNumber || rec.OwnerID != ownerID {
			continue
		}
		rank := store.SellerCandidateRank(rec, transactionID)
		if rank < 0 {
			continue
		}
		if !found || betterCandidate(rec, rank, best, bestRank) {
			best, bestRank, found = rec, rank, true
		}
	}
	if !found {
		return contract.Record{}, store.ErrNotFound
	}
	return best, nil
}

func betterCandidate(rec contract.Record, rank int, best contract.Record, bestRank int) bool {
	if rank != bestRank {
		return rank < bestRank
	}
	if !rec.CreatedAt.Equal(best.CreatedAt) {
		return rec.CreatedAt.After(best.CreatedAt)
	}
	return rec.ID < best.ID
}

func (t *Tx) FindByPendingTransaction(_ context.Context, transactionID string) (contract.Record, error) {
	for _, rec := range t.st.contracts {
		if transactionID != "" && rec.PendingTransactionID == transactionID && !rec.IsDerived() {
			return rec, nil
		}
	}
	return contract.Record{}, store.ErrNotFound
}

func (t *Tx) InsertTransaction(_ context.Context, tr payment.Transaction) error {
	if _, ok := t.st.transactions[tr.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.transactions[tr.ID] = tr
	return nil
}

func (t *Tx) GetTransaction(_ context.Context, id string) (payment.Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok {
		return payment.Transaction{}, store.ErrNotFound
	}
	return tr, nil
}

func (t *Tx) LockTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *Tx) UpdateTransaction(_ context.Context, tr payment.Transaction, expected payment.Status) error {
	current, ok := t.st.transactions[tr.ID]
	if !ok || current.Status != expected {
		return store.ErrConflict
	}
	// amounts are fixed at creation
	tr.Amount, tr.Fees, tr.TotalAmount = current.Amount, current.Fees, current.TotalAmount
	t.st.transactions[tr.ID] = tr
	return nil
}

func (t *Tx) ListTransactions(_ context.Context, userID string) ([]payment.Transaction, error) {
	var out []payment.Transaction
	for _, tr := range t.st.transactions {
		if tr.BuyerID == userID || tr.SellerID == userID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *Tx) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	if _, ok := t.st.users[u.ID]; ok {
		return auth.User{}, auth.ErrDuplicateUser
	}
	for _, existing := range t.st.users {
		if existing.NationalID == u.NationalID || existing.Phone == u.Phone {
			return auth.User{}, auth.ErrDuplicateUser
		}
	}
	t.st.users[u.ID] = u
	return u, nil
}

func (t *Tx) GetUserByID(_ context.Context, userID string) (auth.User, error) {
	u, ok := t.st.users[userID]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

func (t *Tx) GetUserByPhone(_ context.Context, phone string) (auth.User, error) {
	for _, u := range t.st.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrUserNotFound
}

func (t *Tx) UpdateUser(_ context.Context, u auth.User) error {
	if _, ok := t.st.users[u.ID]; !ok {
		return auth.ErrUserNotFound
	}
	for id, existing := range t.st.users {
		if id != u.ID && (existing.NationalID == u.NationalID || existing.Phone == u.Phone) {
			return auth.ErrDuplicateUser
		}
	}
	t.st.users[u.ID] = u
	return nil
}

func (t *Tx) TouchUser(_ context.Context, userID string, at time.Time) error {
	u, ok := t.st.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.LastActivity = at
	t.st.users[userID] = u
	return nil
}

func (t *Tx) ListUsersByRole(_ context.Context, role auth.Role) ([]auth.User, error) {
	var out []auth.User
	for _, u := range t.st.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *Tx) PurgeInactiveUsers(_ context.Context, cutoff time.Time) ([]string, error) {
	busy := make(map[string]struct{})
	for _, tr := range t.st.transactions {
		if tr.Status.Open() {
			busy[tr.BuyerID] = struct{}{}
			busy[tr.SellerID] = struct{}{}
		}
	}

	var ids []string
	for id, u := range t.st.users {
		if u.Role != auth.RoleUser || !u.LastActivity.Before(cutoff) {
			continue
		}
		if _, ok := busy[id]; ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		delete(t.st.users, id)
		for cid, rec := range t.st.contracts {
			if rec.OwnerID == id {
				delete(t.st.contracts, cid)
			}
		}
		for nid, n := range t.st.notifications {
			if n.UserID == id {
				delete(t.st.notifications, nid)
			}
		}
	}
	return ids, nil
}

func (t *Tx) EnqueueOutbox(_ context.Context, msg notification.Message) error {
	for _, existing := range t.st.outbox {
		if existing.ID == msg.ID {
			return store.ErrDuplicate
		}
	}
	if msg.Status == "" {
		msg.Status = notification.OutboxPending
	}
	t.st.outbox = append(t.st.outbox, msg)
	return nil
}

func (t *Tx) ClaimOutbox(_ context.Context, limit int) ([]notification.Message, error) {
	var out []notification.Message
	for _, msg := range t.st.outbox {
		if msg.Status != notification.OutboxPending {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *Tx) outboxIndex(id string) (int, error) {
	for i, msg := range t.st.outbox {
		if msg.ID == id {
			return i, nil
		}
	}
	return -1, store.ErrNotFound
}

func (t *Tx) MarkOutboxDelivered(_ context.Context, id string, at time.Time) error {
	i, err := t.outboxIndex(id)
	if err != nil {
		return err
	}
	t.st.outbox[i].Status = notification.OutboxDelivered
	t.st.outbox[i].Attempts++
	t.st.outbox[i].DeliveredAt = &at
	return nil
}

func (t *Tx) MarkOutboxFailed(_ context.Context, id, lastErr string, dead bool) error {
	i, err := t.outboxIndex(id)
	if err != nil {
		return err
	}
	t.st.outbox[i].Attempts++
	t.st.outbox[i].LastError = lastErr
	if dead {
		t.st.outbox[i].Status = notification.OutboxDead
	}
	return nil
}

func (t *Tx) InsertNotification(_ context.Context, n notification.Notification) error {
	if _, ok := t.st.notifications[n.ID]; ok {
		return nil
	}
	if _, ok := t.st.users[n.UserID]; !ok {
		return auth.ErrUserNotFound
	}
	t.st.notifications[n.ID] = n
	return nil
}

func (t *Tx) ListNotifications(_ context.Context, filter store.NotificationFilter) ([]notification.Notification, error) {
	var out []notification.Notification
	for _, n := range t.st.notifications {
		if filter.UserID != "" && n.UserID != filter.UserID {
			continue
		}
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *Tx) CountUnread(_ context.Context, userID string) (int, error) {
	n := 0
	for _, item := range t.st.notifications {
		if item.UserID == userID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (t *Tx) MarkNotificationRead(_ context.Context, id, userID string, at time.Time) error {
	n, ok := t.st.notifications[id]
	if !ok || n.UserID != userID {
		return store.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		t.st.notifications[id] = n
	}
	return nil
}

func (t *Tx) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	changed := 0
	for id, n := range t.st.notifications {
		if n.UserID != userID || n.IsRead {
			continue
		}
		n.IsRead = true
		n.ReadAt = &at
		t.st.notifications[id] = n
		changed++
	}
	return changed, nil
}

func (t *Tx) DeleteNotification(_ context.Context, id string) error {
	if _, ok := t.st.notifications[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.notifications, id)
	return nil
}

func (t *Tx) ReserveIdempotencyKey(_ context.Context, scope, key string) (string, error) {
	k := scope + "\x00" + key
	if resource, ok := t.st.idempotency[k]; ok {
		return resource, store.ErrDuplicate
	}
	t.st.idempotency[k] = ""
	return "", nil
}

func (t *Tx) CompleteIdempotencyKey(_ context.Context, scope, key, resourceID string) error {
	k := scope + "\x00" + key
	if _, ok := t.st.idempotency[k]; !ok {
		return store.ErrNotFound
	}
	t.st.idempotency[k] = resourceID
	return nil
}
