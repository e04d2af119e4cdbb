package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MariamAlaa-8/realstate-backend/auth"
	"github.com/MariamAlaa-8/realstate-backend/errs"
	"github.com/MariamAlaa-8/realstate-backend/logging"
	"github.com/MariamAlaa-8/realstate-backend/notification"
	"github.com/MariamAlaa-8/realstate-backend/store"
	"github.com/MariamAlaa-8/realstate-backend/store/memory"
	"github.com/MariamAlaa-8/realstate-backend/store/storetest"
)

var clock = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	st.SeedUser(storetest.User("owner"))
	st.SeedUser(storetest.User("neighbour"))
	admin := storetest.User("admin")
	admin.Role = auth.RoleAdmin
	st.SeedUser(admin)

	d := notification.NewDispatcher(logging.Discard(), nil,
		notification.WithDispatcherClock(func() time.Time { return clock }))
	return New(st, d, WithClock(func() time.Time { return clock }), WithLogger(logging.Discard())), st
}

func deliver(t *testing.T, st store.Store, notes ...notification.Notification) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		for _, n := range notes {
			if err := tx.InsertNotification(context.Background(), n); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func note(id, userID string, minute int) notification.Notification {
	return notification.Notification{
		ID:        id,
		UserID:    userID,
		Type:      notification.TypeGeneral,
		Title:     "title " + id,
		Message:   "message " + id,
		CreatedAt: clock.Add(time.Duration(minute) * time.Minute),
	}
}

func TestListAndUnreadCount(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	deliver(t, st, note("n1", "owner", 1), note("n2", "owner", 2), note("n3", "neighbour", 3))

	got, err := svc.List(ctx, "owner", ListParams{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, n := range got {
		assert.Equal(t, "owner", n.UserID)
	}

	count, err := svc.UnreadCount(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err = svc.List(ctx, "owner", ListParams{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMarkReadIsScopedToOwner(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	deliver(t, st, note("n1", "owner", 1), note("n2", "owner", 2))

	err := svc.MarkRead(ctx, "neighbour", "n1")
	assert.True(t, errs.HasCode(err, errs.CodeNotFound), "got %v", err)

	require.NoError(t, svc.MarkRead(ctx, "owner", "n1"))
	require.NoError(t, svc.MarkRead(ctx, "owner", "n1"), "acknowledging twice is harmless")

	unread, err := svc.List(ctx, "owner", ListParams{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "n2", unread[0].ID)

	n, err := svc.MarkAllRead(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := svc.UnreadCount(ctx, "owner")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteRequiresAdmin(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	deliver(t, st, note("n1", "owner", 1))

	err := svc.Delete(ctx, "owner", "n1")
	assert.ErrorIs(t, err, ErrNotAdmin)
	assert.True(t, errs.HasCode(err, errs.CodeAuthorization))

	require.NoError(t, svc.Delete(ctx, "admin", "n1"))
	err = svc.Delete(ctx, "admin", "n1")
	assert.True(t, errs.HasCode(err, errs.CodeNotFound), "got %v", err)
}

func TestListAllRequiresAdmin(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	deliver(t, st, note("n1", "owner", 1), note("n2", "neighbour", 2))

	_, err := svc.ListAll(ctx, "ghost", ListParams{})
	assert.ErrorIs(t, err, ErrNotAdmin)

	all, err := svc.ListAll(ctx, "admin", ListParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSendQueuesThroughOutbox(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	err := svc.Send(ctx, "admin", notification.Intent{
		UserID:  "owner",
		Title:   "  تذكير  ",
		Message: "يرجى استكمال بيانات العقد",
	})
	require.NoError(t, err)

	_, _, outbox := st.Snapshot()
	require.Len(t, outbox, 1)
	msg := outbox[0]
	assert.Equal(t, "notification.general", msg.Topic)
	assert.Equal(t, "owner", msg.Intent.UserID)
	assert.Equal(t, "تذكير", msg.Intent.Title)
	assert.Equal(t, notification.OutboxPending, msg.Status)
}

func TestSendRejectsBadRequests(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	valid := notification.Intent{UserID: "owner", Type: notification.TypeReminder, Title: "t", Message: "m"}

	tests := []struct {
		name    string
		adminID string
		in      func() notification.Intent
		code    errs.Code
	}{
		{"not admin", "owner", func() notification.Intent { return valid }, errs.CodeAuthorization},
		{"blank title", "admin", func() notification.Intent { in := valid; in.Title = " "; return in }, errs.CodeValidation},
		{"unknown type", "admin", func() notification.Intent { in := valid; in.Type = "promo"; return in }, errs.CodeValidation},
		{"unknown recipient", "admin", func() notification.Intent { in := valid; in.UserID = "ghost"; return in }, errs.CodeNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Send(ctx, tc.adminID, tc.in())
			require.Error(t, err)
			assert.Equal(t, tc.code, errs.CodeOf(err))
		})
	}

	_, _, outbox := st.Snapshot()
	assert.Empty(t, outbox)
}
