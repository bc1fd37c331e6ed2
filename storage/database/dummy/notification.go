package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n.ID = uuid.New().String()
	repo.db.table[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, filter *notification.QueryFilter, page *core.Pagination, _ ...core.DBExecutor) ([]notification.Notification, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var results []notification.Notification
	for _, n := range repo.db.table {
		if n.UserID != userID {
			continue
		}
		if filter != nil && filter.Unread != nil && n.IsRead() == *filter.Unread {
			continue
		}
		results = append(results, *n)
	}
	count := len(results)

	// newest first
	sort.SliceStable(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })

	if page != nil {
		lo := page.Offset()
		if lo > count {
			lo = count
		}
		hi := lo + page.Limit()
		if hi > count {
			hi = count
		}
		results = results[lo:hi]
	}
	return results, count, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string, _ ...core.DBExecutor) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if n, ok := repo.db.table[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, n := range repo.db.table {
		if n.UserID == userID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkNotificationsRead(_ context.Context, userID string, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	var count int
	for _, n := range repo.db.table {
		if n.UserID != userID || n.IsRead() {
			continue
		}
		if len(ids) > 0 && !containsString(ids, n.ID) {
			continue
		}
		n.ReadAt = &now
		count++
	}
	return count, nil
}

func (repo *notificationRepository) DeleteNotifications(_ context.Context, userID string, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int
	for id, n := range repo.db.table {
		if n.UserID != userID {
			continue
		}
		if len(ids) > 0 && !containsString(ids, id) {
			continue
		}
		delete(repo.db.table, id)
		count++
	}
	return count, nil
}
