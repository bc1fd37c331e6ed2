package notification

import "time"

// Kinds
const (
	KindCaseAssigned = "CASE_ASSIGNED"
	KindCaseStatus   = "CASE_STATUS"
	KindCaseComment  = "CASE_COMMENT"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CaseID    *string    `json:"case_id"`
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"` // UTC
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

type QueryFilter struct {
	Unread *bool `query:"unread"`
}

// Page is one window of a Notification listing.
type Page struct {
	Results  []Notification `json:"results"`
	Count    int            `json:"count"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}
