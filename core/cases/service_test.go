package cases_test

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/cases"
	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
	emailsvc "github.com/trezcool/mashauri/services/email"
	dummydb "github.com/trezcool/mashauri/storage/database/dummy"
	filestore "github.com/trezcool/mashauri/storage/files"
)

type testEnv struct {
	svc       cases.Service
	usrRepo   user.Repository
	notifSvc  notification.Service
	attSvc    attachment.Service
	store     core.FileStorage
	admin     user.User
	manager   user.User
	alice     user.User
	bob       user.User
	stranger  user.User
	inactived user.User
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	usrRepo := dummydb.NewUserRepository(db)
	attRepo := dummydb.NewAttachmentRepository(db)
	store, err := filestore.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	notifSvc := notification.NewService(dummydb.NewNotificationRepository(db))
	mailSvc := emailsvc.NewConsoleServiceMock()
	svc := cases.NewService(nil, dummydb.NewCaseRepository(db), usrRepo, notifSvc, mailSvc, attRepo, store)

	env := &testEnv{
		svc:      svc,
		usrRepo:  usrRepo,
		notifSvc: notifSvc,
		attSvc:   attachment.NewService(attRepo, store),
		store:    store,
	}
	env.admin = createUser(t, usrRepo, "admin", []string{user.RoleAdmin}, true)
	env.manager = createUser(t, usrRepo, "manager", []string{user.RoleManager}, true)
	env.alice = createUser(t, usrRepo, "alice", []string{user.RoleUser}, true)
	env.bob = createUser(t, usrRepo, "bob", []string{user.RoleUser}, true)
	env.stranger = createUser(t, usrRepo, "stranger", []string{user.RoleUser}, true)
	env.inactived = createUser(t, usrRepo, "ghost", []string{user.RoleUser}, false)
	return env
}

func createUser(t *testing.T, repo user.Repository, uname string, roles []string, active bool) user.User {
	t.Helper()

	usr := user.User{
		Name:     uname,
		Username: uname,
		Email:    uname + "@test.cd",
		Roles:    roles,
	}
	usr.SetActive(active)
	require.NoError(t, usr.SetPassword("Password123!"))

	usr, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (env *testEnv) createCase(t *testing.T, actor user.User) cases.Case {
	t.Helper()

	c, err := env.svc.Create(context.Background(), actor, cases.NewCase{
		Title:    "Leaking roof",
		Priority: cases.PriorityHigh,
	})
	require.NoError(t, err)
	return c
}

func TestService_Create(t *testing.T) {
	env := setup(t)

	c := env.createCase(t, env.alice)
	assert.Equal(t, cases.StatusOpen, c.Status)
	assert.Equal(t, env.alice.ID, c.CreatedBy)
	assert.Equal(t, 1, c.Number)
	assert.Nil(t, c.AssignedTo)

	c2 := env.createCase(t, env.bob)
	assert.Equal(t, 2, c2.Number)
}

func TestService_Get_visibility(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)

	for _, actor := range []user.User{env.alice, env.manager, env.admin} {
		_, err := env.svc.Get(ctx, actor, c.ID)
		assert.NoError(t, err)
	}

	// hidden from unrelated plain users
	_, err := env.svc.Get(ctx, env.stranger, c.ID)
	assert.Equal(t, cases.ErrNotFound, errors.Cause(err))
}

func TestService_Query_visibility(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.createCase(t, env.alice)
	env.createCase(t, env.alice)
	env.createCase(t, env.bob)

	page, err := env.svc.Query(ctx, env.manager, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)

	page, err = env.svc.Query(ctx, env.alice, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)

	page, err = env.svc.Query(ctx, env.stranger, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)
	assert.Empty(t, page.Results)
}

func TestService_Query_filters(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c1 := env.createCase(t, env.alice)
	env.createCase(t, env.bob)
	_, err := env.svc.Assign(ctx, env.manager, c1.ID, env.bob.ID)
	require.NoError(t, err)

	page, err := env.svc.Query(ctx, env.admin, &cases.QueryFilter{Statuses: []string{cases.StatusPending}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	assert.Equal(t, c1.ID, page.Results[0].ID)

	page, err = env.svc.Query(ctx, env.admin, &cases.QueryFilter{AssignedTo: env.bob.ID}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)

	page, err = env.svc.Query(ctx, env.admin, &cases.QueryFilter{Search: "roof"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
}

func TestService_Update(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)

	// creator may edit while OPEN
	updated, err := env.svc.Update(ctx, env.alice, c.ID, cases.UpdateCase{
		Title:       "Leaking roof in block B",
		Description: c.Description,
		Priority:    cases.PriorityUrgent,
	})
	require.NoError(t, err)
	assert.Equal(t, "Leaking roof in block B", updated.Title)
	assert.Equal(t, cases.PriorityUrgent, updated.Priority)

	// once assigned, only staff may edit
	_, err = env.svc.Assign(ctx, env.manager, c.ID, env.bob.ID)
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, env.alice, c.ID, cases.UpdateCase{Title: "sneaky edit"})
	assert.Equal(t, cases.ErrPermissionDenied, errors.Cause(err))

	_, err = env.svc.Update(ctx, env.manager, c.ID, cases.UpdateCase{Title: "staff edit", Priority: updated.Priority})
	assert.NoError(t, err)
}

func TestService_Assign(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)

	// plain users cannot assign
	_, err := env.svc.Assign(ctx, env.alice, c.ID, env.bob.ID)
	assert.Equal(t, cases.ErrPermissionDenied, errors.Cause(err))

	// assignee must exist and be active
	_, err = env.svc.Assign(ctx, env.manager, c.ID, "8a7b9c1e-0d4f-4a7e-b1a6-6e1b2cf6f3a1")
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = env.svc.Assign(ctx, env.manager, c.ID, env.inactived.ID)
	assert.True(t, errors.As(err, &vErr))

	// assignment moves the case to PENDING and notifies the assignee
	c, err = env.svc.Assign(ctx, env.manager, c.ID, env.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, cases.StatusPending, c.Status)
	require.NotNil(t, c.AssignedTo)
	assert.Equal(t, env.bob.ID, *c.AssignedTo)

	logs, err := env.svc.QueryLogs(ctx, env.manager, c.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, cases.LogAssignment, logs[0].Kind)

	count, err := env.notifSvc.UnreadCount(ctx, env.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// reassignment is allowed while still PENDING
	c, err = env.svc.Assign(ctx, env.admin, c.ID, env.stranger.ID)
	require.NoError(t, err)
	assert.Equal(t, env.stranger.ID, *c.AssignedTo)

	// but not once work has started
	c, err = env.svc.Transition(ctx, env.stranger, c.ID, cases.TransitionCase{Status: cases.StatusInProgress})
	require.NoError(t, err)
	_, err = env.svc.Assign(ctx, env.manager, c.ID, env.bob.ID)
	assert.True(t, errors.As(err, &vErr))
}

func TestService_Transition_workflow(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)
	c, err := env.svc.Assign(ctx, env.manager, c.ID, env.bob.ID)
	require.NoError(t, err)

	// only the assignee (or an admin) accepts
	_, err = env.svc.Transition(ctx, env.alice, c.ID, cases.TransitionCase{Status: cases.StatusInProgress})
	assert.Equal(t, cases.ErrPermissionDenied, errors.Cause(err))

	c, err = env.svc.Transition(ctx, env.bob, c.ID, cases.TransitionCase{Status: cases.StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, cases.StatusInProgress, c.Status)

	// assignee submits for review
	c, err = env.svc.Transition(ctx, env.bob, c.ID, cases.TransitionCase{Status: cases.StatusPendingCompletionReview, Comment: "fixed, please review"})
	require.NoError(t, err)
	assert.Equal(t, cases.StatusPendingCompletionReview, c.Status)

	// the assignee cannot approve their own work
	_, err = env.svc.Transition(ctx, env.bob, c.ID, cases.TransitionCase{Status: cases.StatusCompleted})
	assert.Equal(t, cases.ErrPermissionDenied, errors.Cause(err))

	// reviewer may send it back
	c, err = env.svc.Transition(ctx, env.manager, c.ID, cases.TransitionCase{Status: cases.StatusInProgress})
	require.NoError(t, err)
	c, err = env.svc.Transition(ctx, env.bob, c.ID, cases.TransitionCase{Status: cases.StatusPendingCompletionReview})
	require.NoError(t, err)

	// reviewer approves; the case becomes terminal
	c, err = env.svc.Transition(ctx, env.manager, c.ID, cases.TransitionCase{Status: cases.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, cases.StatusCompleted, c.Status)
	assert.NotNil(t, c.ClosedAt)

	// no transitions out of a terminal status
	_, err = env.svc.Transition(ctx, env.admin, c.ID, cases.TransitionCase{Status: cases.StatusClosed})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	// full trail: assignment + 5 status changes
	logs, err := env.svc.QueryLogs(ctx, env.manager, c.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 6)
}

func TestService_Transition_gates(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// PENDING is only reachable through assignment
	c := env.createCase(t, env.alice)
	_, err := env.svc.Transition(ctx, env.admin, c.ID, cases.TransitionCase{Status: cases.StatusPending})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	// creators may close their own still-OPEN cases
	c, err = env.svc.Transition(ctx, env.alice, c.ID, cases.TransitionCase{Status: cases.StatusClosed})
	require.NoError(t, err)
	assert.Equal(t, cases.StatusClosed, c.Status)
	assert.NotNil(t, c.ClosedAt)

	// but not once the case has been assigned
	c2 := env.createCase(t, env.alice)
	_, err = env.svc.Assign(ctx, env.manager, c2.ID, env.bob.ID)
	require.NoError(t, err)
	_, err = env.svc.Transition(ctx, env.alice, c2.ID, cases.TransitionCase{Status: cases.StatusClosed})
	assert.Equal(t, cases.ErrPermissionDenied, errors.Cause(err))

	// staff may close at any non-terminal point
	_, err = env.svc.Transition(ctx, env.manager, c2.ID, cases.TransitionCase{Status: cases.StatusClosed})
	assert.NoError(t, err)
}

func TestService_Delete(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)

	for _, actor := range []user.User{env.alice, env.manager} {
		err := env.svc.Delete(ctx, actor, c.ID)
		assert.Equal(t, cases.ErrPermissionDenied, errors.Cause(err))
	}

	require.NoError(t, env.svc.Delete(ctx, env.admin, c.ID))
	_, err := env.svc.Get(ctx, env.admin, c.ID)
	assert.Equal(t, cases.ErrNotFound, errors.Cause(err))
}

func TestService_Delete_cleansUp(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)
	_, err := env.svc.Assign(ctx, env.manager, c.ID, env.bob.ID)
	require.NoError(t, err)
	at, err := env.attSvc.Attach(ctx, c.ID, env.alice.ID, "report.txt", "text/plain", strings.NewReader("all good"))
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, env.admin, c.ID))

	// attachment rows and notifications go away with the case
	ats, err := env.attSvc.QueryByCase(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, ats)
	count, err := env.notifSvc.UnreadCount(ctx, env.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// so does the stored blob
	_, err = env.store.Open(ctx, at.StorageKey)
	assert.Equal(t, core.ErrFileNotFound, errors.Cause(err))
}

func TestService_AddComment(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	c := env.createCase(t, env.alice)
	_, err := env.svc.Assign(ctx, env.manager, c.ID, env.bob.ID)
	require.NoError(t, err)

	// strangers cannot comment on cases they cannot see
	_, err = env.svc.AddComment(ctx, env.stranger, c.ID, "first!")
	assert.Equal(t, cases.ErrNotFound, errors.Cause(err))

	log, err := env.svc.AddComment(ctx, env.manager, c.ID, "please hurry")
	require.NoError(t, err)
	assert.Equal(t, cases.LogComment, log.Kind)
	assert.Equal(t, env.manager.ID, log.AuthorID)

	// creator and assignee are notified, the author is not
	count, err := env.notifSvc.UnreadCount(ctx, env.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = env.notifSvc.UnreadCount(ctx, env.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count) // assignment + comment
	count, err = env.notifSvc.UnreadCount(ctx, env.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
