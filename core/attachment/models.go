package attachment

import "time"

// Attachment is file metadata; the blob itself lives in a core.FileStorage
// under StorageKey.
type Attachment struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"case_id"`
	UploadedBy  string    `json:"uploaded_by"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}
