package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mashauri/core"
)

var ErrNotFound = errors.New("notification not found")

type (
	// Notifier is the producer side of notifications; the case service depends
	// on this rather than on the full Service.
	Notifier interface {
		Notify(ctx context.Context, userID, caseID, kind, message string, exec ...core.DBExecutor) error
	}

	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		// QueryNotifications returns one page of a user's notifications, newest
		// first, along with the total match count.
		QueryNotifications(ctx context.Context, userID string, filter *QueryFilter, page *core.Pagination, exec ...core.DBExecutor) ([]Notification, int, error)
		GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		CountUnread(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error)
		// MarkNotificationsRead marks the given notifications read; an empty ids
		// slice marks all of the user's notifications.
		MarkNotificationsRead(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) (int, error)
		DeleteNotifications(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Notifier

		QueryForUser(ctx context.Context, userID string, filter *QueryFilter, page *core.Pagination) (Page, error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkRead(ctx context.Context, userID, id string) error
		MarkAllRead(ctx context.Context, userID string) error
		Delete(ctx context.Context, userID, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Notify(ctx context.Context, userID, caseID, kind, message string, exec ...core.DBExecutor) error {
	n := Notification{
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if caseID != "" {
		n.CaseID = &caseID
	}
	_, err := svc.repo.CreateNotification(ctx, n, exec...)
	return errors.Wrap(err, "creating notification")
}

func (svc *service) QueryForUser(ctx context.Context, userID string, filter *QueryFilter, page *core.Pagination) (Page, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if page == nil {
		page = new(core.Pagination)
	}
	page.Clean()

	results, count, err := svc.repo.QueryNotifications(ctx, userID, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying notifications")
	}
	if results == nil {
		results = []Notification{}
	}
	return Page{
		Results:  results,
		Count:    count,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}

func (svc *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

// get returns a user's notification; notifications of other users stay hidden.
func (svc *service) get(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

func (svc *service) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := svc.get(ctx, userID, id); err != nil {
		return err
	}
	_, err := svc.repo.MarkNotificationsRead(ctx, userID, []string{id})
	return err
}

func (svc *service) MarkAllRead(ctx context.Context, userID string) error {
	_, err := svc.repo.MarkNotificationsRead(ctx, userID, nil)
	return err
}

func (svc *service) Delete(ctx context.Context, userID, id string) error {
	if _, err := svc.get(ctx, userID, id); err != nil {
		return err
	}
	_, err := svc.repo.DeleteNotifications(ctx, userID, []string{id})
	return err
}
