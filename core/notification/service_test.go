package notification_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mashauri/core/notification"
	dummydb "github.com/trezcool/mashauri/storage/database/dummy"
)

func setup(t *testing.T) notification.Service {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	return notification.NewService(dummydb.NewNotificationRepository(db))
}

func TestService(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	alice, bob := "alice-id", "bob-id"

	require.NoError(t, svc.Notify(ctx, alice, "case-1", notification.KindCaseAssigned, "Case #1 was assigned to you"))
	require.NoError(t, svc.Notify(ctx, alice, "case-1", notification.KindCaseComment, "New comment on case #1"))
	require.NoError(t, svc.Notify(ctx, bob, "", notification.KindCaseStatus, "Case #2 moved from OPEN to CLOSED"))

	count, err := svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	page, err := svc.QueryForUser(ctx, alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	require.Len(t, page.Results, 2)
	// newest first
	assert.Equal(t, notification.KindCaseComment, page.Results[0].Kind)

	// bob's notifications stay his own
	page, err = svc.QueryForUser(ctx, bob, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	assert.Nil(t, page.Results[0].CaseID)

	// alice cannot touch bob's notification
	other := page.Results[0]
	err = svc.MarkRead(ctx, alice, other.ID)
	assert.Equal(t, notification.ErrNotFound, err)
	err = svc.Delete(ctx, alice, other.ID)
	assert.Equal(t, notification.ErrNotFound, err)

	// mark one read
	first := mustFirst(t, svc, ctx, alice)
	require.NoError(t, svc.MarkRead(ctx, alice, first.ID))
	count, err = svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unread := false
	page, err = svc.QueryForUser(ctx, alice, &notification.QueryFilter{Unread: &unread}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.NotNil(t, page.Results[0].ReadAt)

	// mark all read
	require.NoError(t, svc.MarkAllRead(ctx, alice))
	count, err = svc.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// delete
	require.NoError(t, svc.Delete(ctx, alice, first.ID))
	page, err = svc.QueryForUser(ctx, alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)

	// unknown id
	err = svc.MarkRead(ctx, alice, "b3b9c1e0-0d4f-4a7e-b1a6-6e1b2cf6f3a1")
	assert.Equal(t, notification.ErrNotFound, err)
}

func mustFirst(t *testing.T, svc notification.Service, ctx context.Context, userID string) notification.Notification {
	t.Helper()

	page, err := svc.QueryForUser(ctx, userID, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, page.Results)
	return page.Results[0]
}
