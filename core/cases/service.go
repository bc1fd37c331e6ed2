package cases

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("case not found")
	ErrPermissionDenied = errors.New("permission denied")

	errCaseTerminal      = errors.New("case is in a terminal status")
	errInvalidTransition = errors.New("invalid status transition")
	errAssigneeInactive  = errors.New("assignee account is not active")
	errAssignTooLate     = errors.New("case can no longer be reassigned")
)

type (
	Repository interface {
		CreateCase(ctx context.Context, c Case, exec ...core.DBExecutor) (Case, error)
		// QueryCases applies AND operation on available QueryFilter fields and
		// returns one page of results along with the total match count.
		// QueryFilter.Search does a case-insensitive match on Case.Title,
		// Case.Description or the Case.Number rendered as text.
		QueryCases(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination, exec ...core.DBExecutor) ([]Case, int, error)
		GetCase(ctx context.Context, id string, exec ...core.DBExecutor) (Case, error)
		UpdateCase(ctx context.Context, c Case, exec ...core.DBExecutor) (Case, error)
		DeleteCasesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateLog(ctx context.Context, l Log, exec ...core.DBExecutor) (Log, error)
		QueryLogs(ctx context.Context, caseID string, exec ...core.DBExecutor) ([]Log, error)
	}

	Service interface {
		Create(ctx context.Context, actor user.User, nc NewCase) (Case, error)
		Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) (Page, error)
		Get(ctx context.Context, actor user.User, id string) (Case, error)
		Update(ctx context.Context, actor user.User, id string, uc UpdateCase) (Case, error)
		Assign(ctx context.Context, actor user.User, id, assigneeID string) (Case, error)
		Transition(ctx context.Context, actor user.User, id string, tc TransitionCase) (Case, error)
		Delete(ctx context.Context, actor user.User, ids ...string) error
		AddComment(ctx context.Context, actor user.User, id, message string) (Log, error)
		QueryLogs(ctx context.Context, actor user.User, id string) ([]Log, error)
	}

	service struct {
		db       core.DB
		repo     Repository
		usrRepo  user.Repository
		notifier notification.Notifier
		mailSvc  core.EmailService
		attRepo  attachment.Repository
		store    core.FileStorage
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	usrRepo user.Repository,
	notifier notification.Notifier,
	mailSvc core.EmailService,
	attRepo attachment.Repository,
	store core.FileStorage,
) Service {
	return &service{
		db:       db,
		repo:     repo,
		usrRepo:  usrRepo,
		notifier: notifier,
		mailSvc:  mailSvc,
		attRepo:  attRepo,
		store:    store,
	}
}

// canView reports whether actor may see a Case: admins and managers see all,
// plain users only what they created or are assigned to.
func canView(actor user.User, c Case) bool {
	return actor.IsAdmin() || actor.IsManager() || c.IsCreatedBy(actor.ID) || c.IsAssignedTo(actor.ID)
}

// inTx runs fn within a DB transaction when a DB handle is available;
// in-memory repositories run without one.
func (svc *service) inTx(ctx context.Context, fn func(exec []core.DBExecutor) error) error {
	if svc.db == nil {
		return fn(nil)
	}
	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn([]core.DBExecutor{tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (svc *service) Create(ctx context.Context, actor user.User, nc NewCase) (Case, error) {
	now := time.Now().UTC()
	c := Case{
		Title:       nc.Title,
		Description: nc.Description,
		Priority:    nc.Priority,
		Status:      StatusOpen,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateCase(ctx, c)
}

func (svc *service) Query(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering, page *core.Pagination) (Page, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if !(actor.IsAdmin() || actor.IsManager()) {
		filter.VisibleTo = actor.ID
	}
	if page == nil {
		page = new(core.Pagination)
	}
	page.Clean()

	results, count, err := svc.repo.QueryCases(ctx, filter, ordering, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying cases")
	}
	if results == nil {
		results = []Case{}
	}
	return Page{
		Results:  results,
		Count:    count,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}

func (svc *service) Get(ctx context.Context, actor user.User, id string) (Case, error) {
	c, err := svc.repo.GetCase(ctx, id)
	if err != nil {
		return Case{}, err
	}
	// do not reveal existence of cases the actor cannot see
	if !canView(actor, c) {
		return Case{}, ErrNotFound
	}
	return c, nil
}

func (svc *service) Update(ctx context.Context, actor user.User, id string, uc UpdateCase) (Case, error) {
	c, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Case{}, err
	}
	if c.IsTerminal() {
		return Case{}, core.NewValidationError(errCaseTerminal)
	}
	// creators may only edit while the case is still OPEN
	if !(actor.IsAdmin() || actor.IsManager()) {
		if !(c.IsCreatedBy(actor.ID) && c.Status == StatusOpen) {
			return Case{}, ErrPermissionDenied
		}
	}

	c.Title = uc.Title
	c.Description = uc.Description
	c.Priority = uc.Priority
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCase(ctx, c)
}

func (svc *service) Assign(ctx context.Context, actor user.User, id, assigneeID string) (Case, error) {
	if !(actor.IsAdmin() || actor.IsManager()) {
		return Case{}, ErrPermissionDenied
	}
	c, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Case{}, err
	}
	// cases are (re)assigned while OPEN or PENDING; later on, review flow applies
	if !(c.Status == StatusOpen || c.Status == StatusPending) {
		return Case{}, core.NewValidationError(errAssignTooLate)
	}

	assignee, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: assigneeID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Case{}, core.NewValidationError(err, core.FieldError{Field: "assignee_id", Error: err.Error()})
		}
		return Case{}, errors.Wrap(err, "finding assignee")
	}
	if !assignee.Active() {
		return Case{}, core.NewValidationError(errAssigneeInactive, core.FieldError{Field: "assignee_id", Error: errAssigneeInactive.Error()})
	}

	oldStatus := c.Status
	c.AssignedTo = &assignee.ID
	c.Status = StatusPending
	c.UpdatedAt = time.Now().UTC()

	err = svc.inTx(ctx, func(exec []core.DBExecutor) error {
		if c, err = svc.repo.UpdateCase(ctx, c, exec...); err != nil {
			return errors.Wrap(err, "updating case")
		}
		log := Log{
			CaseID:    c.ID,
			AuthorID:  actor.ID,
			Kind:      LogAssignment,
			Message:   fmt.Sprintf("assigned to %s", assignee.Username),
			OldStatus: oldStatus,
			NewStatus: c.Status,
			CreatedAt: c.UpdatedAt,
		}
		if _, err := svc.repo.CreateLog(ctx, log, exec...); err != nil {
			return errors.Wrap(err, "creating assignment log")
		}
		msg := fmt.Sprintf("Case #%d %q was assigned to you", c.Number, c.Title)
		if err := svc.notifier.Notify(ctx, assignee.ID, c.ID, notification.KindCaseAssigned, msg, exec...); err != nil {
			return errors.Wrap(err, "notifying assignee")
		}
		return nil
	})
	if err != nil {
		return Case{}, err
	}

	svc.sendCaseAssignedMail(c, actor, assignee)
	return c, nil
}

func (svc *service) Transition(ctx context.Context, actor user.User, id string, tc TransitionCase) (Case, error) {
	c, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Case{}, err
	}
	to := tc.Status
	if !CanTransition(c.Status, to) {
		return Case{}, core.NewValidationError(errInvalidTransition,
			core.FieldError{Field: "status", Error: fmt.Sprintf("cannot move from %s to %s", c.Status, to)})
	}
	if err := transitionAllowed(actor, c, to); err != nil {
		return Case{}, err
	}

	oldStatus := c.Status
	now := time.Now().UTC()
	c.Status = to
	c.UpdatedAt = now
	if IsTerminalStatus(to) {
		c.ClosedAt = &now
	}

	err = svc.inTx(ctx, func(exec []core.DBExecutor) error {
		if c, err = svc.repo.UpdateCase(ctx, c, exec...); err != nil {
			return errors.Wrap(err, "updating case")
		}
		msg := tc.Comment
		if msg == "" {
			msg = fmt.Sprintf("status changed from %s to %s", oldStatus, to)
		}
		log := Log{
			CaseID:    c.ID,
			AuthorID:  actor.ID,
			Kind:      LogStatus,
			Message:   msg,
			OldStatus: oldStatus,
			NewStatus: to,
			CreatedAt: now,
		}
		if _, err := svc.repo.CreateLog(ctx, log, exec...); err != nil {
			return errors.Wrap(err, "creating status log")
		}

		notifMsg := fmt.Sprintf("Case #%d %q moved from %s to %s", c.Number, c.Title, oldStatus, to)
		for _, uid := range svc.stakeholders(c, actor.ID) {
			if err := svc.notifier.Notify(ctx, uid, c.ID, notification.KindCaseStatus, notifMsg, exec...); err != nil {
				return errors.Wrap(err, "notifying stakeholder")
			}
		}
		return nil
	})
	if err != nil {
		return Case{}, err
	}

	if to == StatusCompleted {
		svc.sendCaseStatusMail(ctx, c, oldStatus)
	}
	return c, nil
}

// transitionAllowed applies the role gates of the workflow:
// acceptance and review submission belong to the assignee, review outcomes
// and closing to managers/admins, except that creators may close their own
// still-OPEN cases.
func transitionAllowed(actor user.User, c Case, to string) error {
	isStaff := actor.IsAdmin() || actor.IsManager()

	switch to {
	case StatusPending:
		// only reachable through assignment
		return core.NewValidationError(nil,
			core.FieldError{Field: "status", Error: "cases move to PENDING via assignment"})
	case StatusInProgress:
		if c.Status == StatusPending {
			// assignee accepts; admins may force it
			if c.IsAssignedTo(actor.ID) || actor.IsAdmin() {
				return nil
			}
		} else if c.Status == StatusPendingCompletionReview && isStaff {
			// reviewer sends the case back
			return nil
		}
	case StatusPendingCompletionReview:
		if c.IsAssignedTo(actor.ID) || actor.IsAdmin() {
			return nil
		}
	case StatusCompleted:
		if isStaff {
			return nil
		}
	case StatusClosed:
		if isStaff || (c.IsCreatedBy(actor.ID) && c.Status == StatusOpen) {
			return nil
		}
	}
	return ErrPermissionDenied
}

// stakeholders returns the creator and assignee of a Case, deduplicated and
// excluding the acting user.
func (svc *service) stakeholders(c Case, actorID string) []string {
	ids := make([]string, 0, 2)
	if c.CreatedBy != "" && c.CreatedBy != actorID {
		ids = append(ids, c.CreatedBy)
	}
	if c.AssignedTo != nil && *c.AssignedTo != actorID && *c.AssignedTo != c.CreatedBy {
		ids = append(ids, *c.AssignedTo)
	}
	return ids
}

func (svc *service) Delete(ctx context.Context, actor user.User, ids ...string) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}

	// collect the blob keys up front; the metadata rows cascade away with the cases
	var keys []string
	if svc.attRepo != nil && svc.store != nil {
		for _, id := range ids {
			ats, err := svc.attRepo.QueryAttachments(ctx, id)
			if err != nil {
				continue
			}
			for _, at := range ats {
				keys = append(keys, at.StorageKey)
			}
		}
	}

	if _, err := svc.repo.DeleteCasesByID(ctx, ids); err != nil {
		return err
	}

	// blob removal is best-effort; an orphaned blob is harmless
	for _, key := range keys {
		_ = svc.store.Remove(ctx, key)
	}
	return nil
}

func (svc *service) AddComment(ctx context.Context, actor user.User, id, message string) (Log, error) {
	c, err := svc.Get(ctx, actor, id)
	if err != nil {
		return Log{}, err
	}

	log := Log{
		CaseID:    c.ID,
		AuthorID:  actor.ID,
		Kind:      LogComment,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	err = svc.inTx(ctx, func(exec []core.DBExecutor) error {
		if log, err = svc.repo.CreateLog(ctx, log, exec...); err != nil {
			return errors.Wrap(err, "creating comment")
		}
		msg := fmt.Sprintf("New comment on case #%d %q", c.Number, c.Title)
		for _, uid := range svc.stakeholders(c, actor.ID) {
			if err := svc.notifier.Notify(ctx, uid, c.ID, notification.KindCaseComment, msg, exec...); err != nil {
				return errors.Wrap(err, "notifying stakeholder")
			}
		}
		return nil
	})
	if err != nil {
		return Log{}, err
	}
	return log, nil
}

func (svc *service) QueryLogs(ctx context.Context, actor user.User, id string) ([]Log, error) {
	if _, err := svc.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	logs, err := svc.repo.QueryLogs(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "querying case logs")
	}
	if logs == nil {
		logs = []Log{}
	}
	return logs, nil
}

func (svc *service) sendCaseAssignedMail(c Case, actor, assignee user.User) {
	if assignee.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: assignee.Name, Address: assignee.Email}},
		Subject:      fmt.Sprintf("Case #%d assigned to you", c.Number),
		TemplateName: "case-assigned",
		TemplateData: struct {
			ID       string
			Number   int
			Title    string
			Assignee string
			Assigner string
		}{
			ID:       c.ID,
			Number:   c.Number,
			Title:    c.Title,
			Assignee: assignee.Username,
			Assigner: actor.Username,
		},
	})
}

func (svc *service) sendCaseStatusMail(ctx context.Context, c Case, oldStatus string) {
	creator, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: c.CreatedBy})
	if err != nil || creator.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: creator.Name, Address: creator.Email}},
		Subject:      fmt.Sprintf("Case #%d completed", c.Number),
		TemplateName: "case-status",
		TemplateData: struct {
			ID        string
			Number    int
			Title     string
			Recipient string
			OldStatus string
			NewStatus string
		}{
			ID:        c.ID,
			Number:    c.Number,
			Title:     c.Title,
			Recipient: creator.Username,
			OldStatus: oldStatus,
			NewStatus: c.Status,
		},
	})
}
