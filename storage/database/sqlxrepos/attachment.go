package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
)

type attachmentRepository struct {
	exec core.DBExecutor
}

var _ attachment.Repository = (*attachmentRepository)(nil)

func NewAttachmentRepository(exec core.DBExecutor) attachment.Repository {
	return &attachmentRepository{exec: exec}
}

const attachmentColumns = `id, case_id, uploaded_by, filename, content_type, size, storage_key, created_at`

type attachmentRow struct {
	ID          string      `db:"id"`
	CaseID      string      `db:"case_id"`
	UploadedBy  null.String `db:"uploaded_by"`
	Filename    null.String `db:"filename"`
	ContentType null.String `db:"content_type"`
	Size        int64       `db:"size"`
	StorageKey  string      `db:"storage_key"`
	CreatedAt   null.Time   `db:"created_at"`
}

func packAttachment(at attachment.Attachment) attachmentRow {
	return attachmentRow{
		ID:          at.ID,
		CaseID:      at.CaseID,
		UploadedBy:  null.NewString(at.UploadedBy, at.UploadedBy != ""),
		Filename:    null.NewString(at.Filename, at.Filename != ""),
		ContentType: null.NewString(at.ContentType, at.ContentType != ""),
		Size:        at.Size,
		StorageKey:  at.StorageKey,
		CreatedAt:   null.NewTime(at.CreatedAt, !at.CreatedAt.IsZero()),
	}
}

func unpackAttachment(row attachmentRow) attachment.Attachment {
	return attachment.Attachment{
		ID:          row.ID,
		CaseID:      row.CaseID,
		UploadedBy:  row.UploadedBy.String,
		Filename:    row.Filename.String,
		ContentType: row.ContentType.String,
		Size:        row.Size,
		StorageKey:  row.StorageKey,
		CreatedAt:   row.CreatedAt.Time,
	}
}

func (repo *attachmentRepository) CreateAttachment(ctx context.Context, at attachment.Attachment, exec ...core.DBExecutor) (attachment.Attachment, error) {
	exe := getExec(repo.exec, exec)

	at.ID = uuid.New().String()
	row := packAttachment(at)
	query := `
INSERT INTO attachment (` + attachmentColumns + `)
VALUES (:id, :case_id, :uploaded_by, :filename, :content_type, :size, :storage_key, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exe, query, row); err != nil {
		return attachment.Attachment{}, errors.Wrap(err, "creating attachment")
	}
	return at, nil
}

func (repo *attachmentRepository) QueryAttachments(ctx context.Context, caseID string, exec ...core.DBExecutor) ([]attachment.Attachment, error) {
	exe := getExec(repo.exec, exec)

	var rows []attachmentRow
	query := exe.Rebind(`SELECT ` + attachmentColumns + ` FROM attachment WHERE case_id = ? ORDER BY created_at`)
	if err := exe.SelectContext(ctx, &rows, query, caseID); err != nil {
		return nil, errors.Wrap(err, "querying attachments")
	}
	ats := make([]attachment.Attachment, len(rows))
	for i, row := range rows {
		ats[i] = unpackAttachment(row)
	}
	return ats, nil
}

func (repo *attachmentRepository) GetAttachment(ctx context.Context, id string, exec ...core.DBExecutor) (attachment.Attachment, error) {
	exe := getExec(repo.exec, exec)

	if _, err := uuid.Parse(id); err != nil {
		return attachment.Attachment{}, attachment.ErrNotFound
	}

	var row attachmentRow
	query := exe.Rebind(`SELECT ` + attachmentColumns + ` FROM attachment WHERE id = ?`)
	if err := exe.GetContext(ctx, &row, query, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return attachment.Attachment{}, attachment.ErrNotFound
		}
		return attachment.Attachment{}, errors.Wrap(err, "getting attachment")
	}
	return unpackAttachment(row), nil
}

func (repo *attachmentRepository) DeleteAttachment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	exe := getExec(repo.exec, exec)

	query := exe.Rebind(`DELETE FROM attachment WHERE id = ?`)
	if _, err := exe.ExecContext(ctx, query, id); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	return nil
}
