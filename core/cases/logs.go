package cases

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mashauri/core"
)

// Log kinds. STATUS and ASSIGNMENT entries are written by the service on
// workflow events; clients may only add COMMENT entries.
const (
	LogComment    = "COMMENT"
	LogStatus     = "STATUS"
	LogAssignment = "ASSIGNMENT"
)

// Log is an entry in a Case's activity trail.
type Log struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	AuthorID  string    `json:"author_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewComment contains information needed to add a comment to a Case.
type NewComment struct {
	Message string `json:"message" validate:"required"`
}

func (nc *NewComment) Validate(validate *validator.Validate) error {
	nc.Message = core.CleanString(nc.Message)
	return validate.Struct(nc)
}
