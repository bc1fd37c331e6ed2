package attachment

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mashauri/core"
)

var ErrNotFound = errors.New("attachment not found")

// sniffLen is how many leading bytes http.DetectContentType needs at most.
const sniffLen = 512

type (
	Repository interface {
		CreateAttachment(ctx context.Context, at Attachment, exec ...core.DBExecutor) (Attachment, error)
		QueryAttachments(ctx context.Context, caseID string, exec ...core.DBExecutor) ([]Attachment, error)
		GetAttachment(ctx context.Context, id string, exec ...core.DBExecutor) (Attachment, error)
		DeleteAttachment(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Attach(ctx context.Context, caseID, uploaderID, filename, contentType string, r io.Reader) (Attachment, error)
		QueryByCase(ctx context.Context, caseID string) ([]Attachment, error)
		Get(ctx context.Context, id string) (Attachment, error)
		// Open returns the attachment content. The caller must close it.
		Open(ctx context.Context, at Attachment) (io.ReadCloser, error)
		Delete(ctx context.Context, at Attachment) error
	}

	service struct {
		repo  Repository
		store core.FileStorage
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, store core.FileStorage) Service {
	return &service{
		repo:  repo,
		store: store,
	}
}

func (svc *service) Attach(ctx context.Context, caseID, uploaderID, filename, contentType string, r io.Reader) (Attachment, error) {
	filename = filepath.Base(core.CleanString(filename))

	if contentType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return Attachment{}, errors.Wrap(err, "sniffing content type")
		}
		head = head[:n]
		contentType = http.DetectContentType(head)
		r = io.MultiReader(bytes.NewReader(head), r)
	}

	key := uuid.New().String() + filepath.Ext(filename)
	size, err := svc.store.Save(ctx, key, r)
	if err != nil {
		return Attachment{}, errors.Wrap(err, "storing attachment")
	}

	at := Attachment{
		CaseID:      caseID,
		UploadedBy:  uploaderID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		StorageKey:  key,
		CreatedAt:   time.Now().UTC(),
	}
	if at, err = svc.repo.CreateAttachment(ctx, at); err != nil {
		// do not leave an orphaned blob behind
		_ = svc.store.Remove(ctx, key)
		return Attachment{}, errors.Wrap(err, "creating attachment")
	}
	return at, nil
}

func (svc *service) QueryByCase(ctx context.Context, caseID string) ([]Attachment, error) {
	ats, err := svc.repo.QueryAttachments(ctx, caseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attachments")
	}
	if ats == nil {
		ats = []Attachment{}
	}
	return ats, nil
}

func (svc *service) Get(ctx context.Context, id string) (Attachment, error) {
	return svc.repo.GetAttachment(ctx, id)
}

func (svc *service) Open(ctx context.Context, at Attachment) (io.ReadCloser, error) {
	rc, err := svc.store.Open(ctx, at.StorageKey)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "opening attachment")
	}
	return rc, nil
}

func (svc *service) Delete(ctx context.Context, at Attachment) error {
	if err := svc.repo.DeleteAttachment(ctx, at.ID); err != nil {
		return errors.Wrap(err, "deleting attachment")
	}
	// blob removal is best-effort; an orphaned blob is harmless
	_ = svc.store.Remove(ctx, at.StorageKey)
	return nil
}
