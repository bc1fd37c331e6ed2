package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
)

type attachmentRepository struct {
	db *attachmentTable
}

var _ attachment.Repository = (*attachmentRepository)(nil) // interface compliance check

func NewAttachmentRepository(db *DB) attachment.Repository {
	return &attachmentRepository{db: db.attachment}
}

func (repo *attachmentRepository) CreateAttachment(_ context.Context, at attachment.Attachment, _ ...core.DBExecutor) (attachment.Attachment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	at.ID = uuid.New().String()
	repo.db.table[at.ID] = &at
	return at, nil
}

func (repo *attachmentRepository) QueryAttachments(_ context.Context, caseID string, _ ...core.DBExecutor) ([]attachment.Attachment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ats []attachment.Attachment
	for _, at := range repo.db.table {
		if at.CaseID == caseID {
			ats = append(ats, *at)
		}
	}
	sort.SliceStable(ats, func(i, j int) bool { return ats[i].CreatedAt.Before(ats[j].CreatedAt) })
	return ats, nil
}

func (repo *attachmentRepository) GetAttachment(_ context.Context, id string, _ ...core.DBExecutor) (attachment.Attachment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if at, ok := repo.db.table[id]; ok {
		return *at, nil
	}
	return attachment.Attachment{}, attachment.ErrNotFound
}

func (repo *attachmentRepository) DeleteAttachment(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	delete(repo.db.table, id)
	return nil
}
