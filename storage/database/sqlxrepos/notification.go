package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/notification"
)

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(exec core.DBExecutor) notification.Repository {
	return &notificationRepository{exec: exec}
}

const notificationColumns = `id, user_id, case_id, kind, message, read_at, created_at`

type notificationRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	CaseID    null.String `db:"case_id"`
	Kind      string      `db:"kind"`
	Message   null.String `db:"message"`
	ReadAt    null.Time   `db:"read_at"`
	CreatedAt null.Time   `db:"created_at"`
}

func packNotification(n notification.Notification) notificationRow {
	return notificationRow{
		ID:        n.ID,
		UserID:    n.UserID,
		CaseID:    null.StringFromPtr(n.CaseID),
		Kind:      n.Kind,
		Message:   null.NewString(n.Message, n.Message != ""),
		ReadAt:    null.TimeFromPtr(n.ReadAt),
		CreatedAt: null.NewTime(n.CreatedAt, !n.CreatedAt.IsZero()),
	}
}

func unpackNotification(row notificationRow) notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		CaseID:    row.CaseID.Ptr(),
		Kind:      row.Kind,
		Message:   row.Message.String,
		ReadAt:    row.ReadAt.Ptr(),
		CreatedAt: row.CreatedAt.Time,
	}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	exe := getExec(repo.exec, exec)

	n.ID = uuid.New().String()
	row := packNotification(n)
	query := `
INSERT INTO notification (` + notificationColumns + `)
VALUES (:id, :user_id, :case_id, :kind, :message, :read_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exe, query, row); err != nil {
		return notification.Notification{}, errors.Wrap(err, "creating notification")
	}
	return n, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, filter *notification.QueryFilter, page *core.Pagination, exec ...core.DBExecutor) ([]notification.Notification, int, error) {
	exe := getExec(repo.exec, exec)

	where := `WHERE user_id = ?`
	args := []interface{}{userID}
	if filter != nil && filter.Unread != nil {
		if *filter.Unread {
			where += ` AND read_at IS NULL`
		} else {
			where += ` AND read_at IS NOT NULL`
		}
	}

	var count int
	if err := exe.GetContext(ctx, &count, exe.Rebind(`SELECT count(*) FROM notification `+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}

	query := `SELECT ` + notificationColumns + ` FROM notification ` + where + ` ORDER BY created_at DESC`
	if page != nil {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit(), page.Offset())
	}

	var rows []notificationRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(query), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	results := make([]notification.Notification, len(rows))
	for i, row := range rows {
		results[i] = unpackNotification(row)
	}
	return results, count, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	exe := getExec(repo.exec, exec)

	if _, err := uuid.Parse(id); err != nil {
		return notification.Notification{}, notification.ErrNotFound
	}

	var row notificationRow
	query := exe.Rebind(`SELECT ` + notificationColumns + ` FROM notification WHERE id = ?`)
	if err := exe.GetContext(ctx, &row, query, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return notification.Notification{}, notification.ErrNotFound
		}
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return unpackNotification(row), nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	exe := getExec(repo.exec, exec)

	var count int
	query := exe.Rebind(`SELECT count(*) FROM notification WHERE user_id = ? AND read_at IS NULL`)
	if err := exe.GetContext(ctx, &count, query, userID); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (repo *notificationRepository) MarkNotificationsRead(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := getExec(repo.exec, exec)

	query := `UPDATE notification SET read_at = ? WHERE user_id = ? AND read_at IS NULL`
	args := []interface{}{time.Now().UTC(), userID}
	if len(ids) > 0 {
		query += ` AND id IN (?)`
		args = append(args, ids)
	}
	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "building mark-read query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(query), inArgs...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking notifications read")
}

func (repo *notificationRepository) DeleteNotifications(ctx context.Context, userID string, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := getExec(repo.exec, exec)

	query := `DELETE FROM notification WHERE user_id = ?`
	args := []interface{}{userID}
	if len(ids) > 0 {
		query += ` AND id IN (?)`
		args = append(args, ids)
	}
	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(query), inArgs...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting notifications")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting notifications")
}
