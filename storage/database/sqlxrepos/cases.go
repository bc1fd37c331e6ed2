package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/cases"
)

type caseRepository struct {
	exec core.DBExecutor
}

var _ cases.Repository = (*caseRepository)(nil)

func NewCaseRepository(exec core.DBExecutor) cases.Repository {
	return &caseRepository{exec: exec}
}

const (
	caseColumns = `id, number, title, description, priority, status, created_by, assigned_to, created_at, updated_at, closed_at`
	logColumns  = `id, case_id, author_id, kind, message, old_status, new_status, created_at`
)

var caseOrderColumns = map[string]string{
	"number":     "number",
	"title":      "title",
	"priority":   "priority",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type caseRow struct {
	ID          string      `db:"id"`
	Number      int         `db:"number"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	Priority    string      `db:"priority"`
	Status      string      `db:"status"`
	CreatedBy   null.String `db:"created_by"`
	AssignedTo  null.String `db:"assigned_to"`
	CreatedAt   null.Time   `db:"created_at"`
	UpdatedAt   null.Time   `db:"updated_at"`
	ClosedAt    null.Time   `db:"closed_at"`
}

func packCase(c cases.Case) caseRow {
	return caseRow{
		ID:          c.ID,
		Number:      c.Number,
		Title:       c.Title,
		Description: null.NewString(c.Description, c.Description != ""),
		Priority:    c.Priority,
		Status:      c.Status,
		CreatedBy:   null.NewString(c.CreatedBy, c.CreatedBy != ""),
		AssignedTo:  null.StringFromPtr(c.AssignedTo),
		CreatedAt:   null.NewTime(c.CreatedAt, !c.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(c.UpdatedAt, !c.UpdatedAt.IsZero()),
		ClosedAt:    null.TimeFromPtr(c.ClosedAt),
	}
}

func unpackCase(row caseRow) cases.Case {
	return cases.Case{
		ID:          row.ID,
		Number:      row.Number,
		Title:       row.Title,
		Description: row.Description.String,
		Priority:    row.Priority,
		Status:      row.Status,
		CreatedBy:   row.CreatedBy.String,
		AssignedTo:  row.AssignedTo.Ptr(),
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
		ClosedAt:    row.ClosedAt.Ptr(),
	}
}

type logRow struct {
	ID        string      `db:"id"`
	CaseID    string      `db:"case_id"`
	AuthorID  null.String `db:"author_id"`
	Kind      string      `db:"kind"`
	Message   null.String `db:"message"`
	OldStatus null.String `db:"old_status"`
	NewStatus null.String `db:"new_status"`
	CreatedAt null.Time   `db:"created_at"`
}

func packLog(l cases.Log) logRow {
	return logRow{
		ID:        l.ID,
		CaseID:    l.CaseID,
		AuthorID:  null.NewString(l.AuthorID, l.AuthorID != ""),
		Kind:      l.Kind,
		Message:   null.NewString(l.Message, l.Message != ""),
		OldStatus: null.NewString(l.OldStatus, l.OldStatus != ""),
		NewStatus: null.NewString(l.NewStatus, l.NewStatus != ""),
		CreatedAt: null.NewTime(l.CreatedAt, !l.CreatedAt.IsZero()),
	}
}

func unpackLog(row logRow) cases.Log {
	return cases.Log{
		ID:        row.ID,
		CaseID:    row.CaseID,
		AuthorID:  row.AuthorID.String,
		Kind:      row.Kind,
		Message:   row.Message.String,
		OldStatus: row.OldStatus.String,
		NewStatus: row.NewStatus.String,
		CreatedAt: row.CreatedAt.Time,
	}
}

func trapCaseNoRowsErr(err error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return cases.ErrNotFound
	}
	return err
}

func (repo *caseRepository) CreateCase(ctx context.Context, c cases.Case, exec ...core.DBExecutor) (cases.Case, error) {
	exe := getExec(repo.exec, exec)

	c.ID = uuid.New().String()
	row := packCase(c)
	// number is assigned by the DB sequence
	query := exe.Rebind(`
INSERT INTO "case" (id, title, description, priority, status, created_by, assigned_to, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING number`)
	err := exe.QueryRowxContext(ctx, query,
		row.ID, row.Title, row.Description, row.Priority, row.Status,
		row.CreatedBy, row.AssignedTo, row.CreatedAt, row.UpdatedAt,
	).Scan(&c.Number)
	if err != nil {
		return cases.Case{}, errors.Wrap(err, "creating case")
	}
	return c, nil
}

func caseWhere(filter *cases.QueryFilter) ([]string, []interface{}) {
	var where []string
	var args []interface{}

	if filter == nil || filter.IsEmpty() {
		return where, args
	}
	if filter.Search != "" {
		where = append(where, `(title ILIKE ? OR description ILIKE ? OR CAST(number AS TEXT) LIKE ?)`)
		search := "%" + filter.Search + "%"
		args = append(args, search, search, search)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, `status IN (?)`)
		args = append(args, filter.Statuses)
	}
	if len(filter.Priorities) > 0 {
		where = append(where, `priority IN (?)`)
		args = append(args, filter.Priorities)
	}
	if filter.AssignedTo != "" {
		where = append(where, `assigned_to = ?`)
		args = append(args, filter.AssignedTo)
	}
	if filter.CreatedBy != "" {
		where = append(where, `created_by = ?`)
		args = append(args, filter.CreatedBy)
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, `created_at <= ?`)
		args = append(args, filter.CreatedTo)
	}
	if filter.VisibleTo != "" {
		where = append(where, `(created_by = ? OR assigned_to = ?)`)
		args = append(args, filter.VisibleTo, filter.VisibleTo)
	}
	return where, args
}

func (repo *caseRepository) QueryCases(ctx context.Context, filter *cases.QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]cases.Case, int, error) {
	exe := getExec(repo.exec, exec)

	where, args := caseWhere(filter)
	whereClause := ""
	if len(where) > 0 {
		whereClause = ` WHERE ` + strings.Join(where, " AND ")
	}

	countQuery, countArgs, err := sqlx.In(`SELECT count(*) FROM "case"`+whereClause, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "building count query")
	}
	var count int
	if err := exe.GetContext(ctx, &count, exe.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, errors.Wrap(err, "counting cases")
	}

	order := orderBy(ordering, caseOrderColumns)
	if order == "" {
		order = ` ORDER BY created_at DESC`
	}
	query := `SELECT ` + caseColumns + ` FROM "case"` + whereClause + order
	if page != nil {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, page.Limit(), page.Offset())
	}
	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "building query")
	}

	var rows []caseRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(query), inArgs...); err != nil {
		return nil, 0, errors.Wrap(err, "querying cases")
	}
	results := make([]cases.Case, len(rows))
	for i, row := range rows {
		results[i] = unpackCase(row)
	}
	return results, count, nil
}

func (repo *caseRepository) GetCase(ctx context.Context, id string, exec ...core.DBExecutor) (cases.Case, error) {
	exe := getExec(repo.exec, exec)

	if _, err := uuid.Parse(id); err != nil {
		return cases.Case{}, cases.ErrNotFound
	}

	var row caseRow
	query := exe.Rebind(`SELECT ` + caseColumns + ` FROM "case" WHERE id = ?`)
	if err := exe.GetContext(ctx, &row, query, id); err != nil {
		return cases.Case{}, errors.Wrap(trapCaseNoRowsErr(err), "getting case")
	}
	return unpackCase(row), nil
}

func (repo *caseRepository) UpdateCase(ctx context.Context, c cases.Case, exec ...core.DBExecutor) (cases.Case, error) {
	exe := getExec(repo.exec, exec)

	row := packCase(c)
	query := `
UPDATE "case"
SET title = :title, description = :description, priority = :priority, status = :status,
    assigned_to = :assigned_to, updated_at = :updated_at, closed_at = :closed_at
WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, exe, query, row)
	if err != nil {
		return cases.Case{}, errors.Wrap(err, "updating case")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cases.Case{}, cases.ErrNotFound
	}
	return c, nil
}

func (repo *caseRepository) DeleteCasesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if ids = validIDs(ids); len(ids) == 0 {
		return 0, nil
	}
	exe := getExec(repo.exec, exec)

	query, args, err := sqlx.In(`DELETE FROM "case" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting cases")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting cases")
}

func (repo *caseRepository) CreateLog(ctx context.Context, l cases.Log, exec ...core.DBExecutor) (cases.Log, error) {
	exe := getExec(repo.exec, exec)

	l.ID = uuid.New().String()
	row := packLog(l)
	query := `
INSERT INTO case_log (` + logColumns + `)
VALUES (:id, :case_id, :author_id, :kind, :message, :old_status, :new_status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exe, query, row); err != nil {
		return cases.Log{}, errors.Wrap(err, "creating case log")
	}
	return l, nil
}

func (repo *caseRepository) QueryLogs(ctx context.Context, caseID string, exec ...core.DBExecutor) ([]cases.Log, error) {
	exe := getExec(repo.exec, exec)

	var rows []logRow
	query := exe.Rebind(`SELECT ` + logColumns + ` FROM case_log WHERE case_id = ? ORDER BY created_at`)
	if err := exe.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, errors.Wrap(err, "querying case logs")
	}
	logs := make([]cases.Log, len(rows))
	for i, row := range rows {
		logs[i] = unpackLog(row)
	}
	return logs, nil
}
