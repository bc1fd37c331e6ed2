package cases

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mashauri/core"
)

// Statuses
const (
	StatusOpen                    = "OPEN"
	StatusPending                 = "PENDING"
	StatusInProgress              = "IN_PROGRESS"
	StatusPendingCompletionReview = "PENDING_COMPLETION_REVIEW"
	StatusCompleted               = "COMPLETED"
	StatusClosed                  = "CLOSED"
)

// Priorities
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

var (
	Statuses   = []string{StatusOpen, StatusPending, StatusInProgress, StatusPendingCompletionReview, StatusCompleted, StatusClosed}
	Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

	// transitions maps a status to the statuses reachable from it.
	// COMPLETED and CLOSED are terminal.
	transitions = map[string][]string{
		StatusOpen:                    {StatusPending, StatusClosed},
		StatusPending:                 {StatusInProgress, StatusClosed},
		StatusInProgress:              {StatusPendingCompletionReview, StatusClosed},
		StatusPendingCompletionReview: {StatusCompleted, StatusInProgress, StatusClosed},
	}
)

// IsTerminalStatus reports whether status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return len(transitions[status]) == 0
}

// CanTransition reports whether the workflow allows moving from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Case struct {
	ID          string     `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"created_by"`
	AssignedTo  *string    `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
	ClosedAt    *time.Time `json:"closed_at"`
}

func (c Case) IsTerminal() bool { return IsTerminalStatus(c.Status) }

func (c Case) IsCreatedBy(usrID string) bool { return c.CreatedBy == usrID }

func (c Case) IsAssignedTo(usrID string) bool {
	return c.AssignedTo != nil && *c.AssignedTo == usrID
}

// NewCase contains information needed to open a new Case.
type NewCase struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

func (nc *NewCase) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Priority = strings.ToUpper(core.CleanString(nc.Priority))
	if nc.Priority == "" {
		nc.Priority = PriorityMedium
	}
	return validate.Struct(nc)
}

// UpdateCase defines what information may be provided to modify an existing Case.
type UpdateCase struct {
	Title       string `json:"title" validate:"omitempty,max=200"`
	Description string `json:"description"`
	Priority    string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

func (uc *UpdateCase) Validate(orig Case, validate *validator.Validate) error {
	title := core.CleanString(uc.Title)
	if title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}

	desc := core.CleanString(uc.Description)
	if desc != "" {
		uc.Description = desc
	} else {
		uc.Description = orig.Description
	}

	uc.Priority = strings.ToUpper(core.CleanString(uc.Priority))
	if uc.Priority == "" {
		uc.Priority = orig.Priority
	}
	return validate.Struct(uc)
}

// AssignCase designates the user a Case is assigned to.
type AssignCase struct {
	AssigneeID string `json:"assignee_id" validate:"required"`
}

func (ac *AssignCase) Validate(validate *validator.Validate) error {
	ac.AssigneeID = core.CleanString(ac.AssigneeID)
	return validate.Struct(ac)
}

// TransitionCase moves a Case to a new workflow status.
type TransitionCase struct {
	Status  string `json:"status" validate:"required,oneof=OPEN PENDING IN_PROGRESS PENDING_COMPLETION_REVIEW COMPLETED CLOSED"`
	Comment string `json:"comment"`
}

func (tc *TransitionCase) Validate(validate *validator.Validate) error {
	tc.Status = strings.ToUpper(core.CleanString(tc.Status))
	tc.Comment = core.CleanString(tc.Comment)
	return validate.Struct(tc)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Statuses    []string  `query:"status"`
	Priorities  []string  `query:"priority"`
	AssignedTo  string    `query:"assigned_to"`
	CreatedBy   string    `query:"created_by"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`

	// VisibleTo restricts results to cases created by or assigned to a user;
	// set by the service for non-admin, non-manager actors.
	VisibleTo string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Statuses == nil && qf.Priorities == nil &&
		qf.AssignedTo == "" && qf.CreatedBy == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero() && qf.VisibleTo == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	for i, s := range qf.Statuses {
		qf.Statuses[i] = strings.ToUpper(core.CleanString(s))
	}
	for i, p := range qf.Priorities {
		qf.Priorities[i] = strings.ToUpper(core.CleanString(p))
	}
}

// Page is one window of a Case listing.
type Page struct {
	Results  []Case `json:"results"`
	Count    int    `json:"count"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}
