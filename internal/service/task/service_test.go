package task

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/apperr"
	"taskflow/pkg/rbac"
)

type memTasks struct {
	nextID int64
	tasks  map[int64]*model.Task
	events []*mqcontracts.TaskAssignedPayload
	filter repository.TaskFilter
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: map[int64]*model.Task{}}
}

func (m *memTasks) List(_ context.Context, f repository.TaskFilter) ([]model.Task, error) {
	m.filter = f
	out := []model.Task{}
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTasks) FindByID(_ context.Context, id int64) (*model.Task, error) {
	if t, ok := m.tasks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memTasks) Create(_ context.Context, t *model.Task, event *mqcontracts.TaskAssignedPayload) error {
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tasks[t.ID] = &cp
	if event != nil {
		event.TaskID = t.ID
		m.events = append(m.events, event)
	}
	return nil
}

func (m *memTasks) Update(ctx context.Context, id int64, upd repository.TaskUpdate, event *mqcontracts.TaskAssignedPayload) (*model.Task, error) {
	t := m.tasks[id]
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	switch {
	case upd.ClearAssignee:
		t.AssigneeID = nil
	case upd.AssigneeID != nil:
		t.AssigneeID = upd.AssigneeID
	}
	if event != nil {
		event.TaskID = id
		m.events = append(m.events, event)
	}
	return m.FindByID(ctx, id)
}

func (m *memTasks) Delete(_ context.Context, id int64) error {
	delete(m.tasks, id)
	return nil
}

type memProjects map[int64]*model.ProjectAccess

func (p memProjects) Access(_ context.Context, id int64) (*model.ProjectAccess, error) {
	return p[id], nil
}

type memUsers map[int64]*model.User

func (u memUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	return u[id], nil
}

type memActivities struct {
	items []model.Activity
}

func (a *memActivities) Create(_ context.Context, act *model.Activity) error {
	a.items = append(a.items, *act)
	return nil
}

var (
	admin = rbac.Actor{ID: 1, Role: rbac.RoleAdmin, Name: "Ada"}
	alice = rbac.Actor{ID: 2, Role: rbac.RoleUser, Email: "alice@example.com"}
	bob   = rbac.Actor{ID: 3, Role: rbac.RoleUser, Email: "bob@example.com"}
)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc   *Service
	tasks *memTasks
	acts  *memActivities
}

func newFixture() fixture {
	tasks := newMemTasks()
	acts := &memActivities{}
	projects := memProjects{
		10: {ID: 10, Name: "Apollo", OwnerID: admin.ID, AssignedIDs: []int64{alice.ID}},
	}
	users := memUsers{
		1: {ID: 1, Email: "ada@example.com", Name: "Ada"},
		2: {ID: 2, Email: "alice@example.com", Name: "Alice"},
		3: {ID: 3, Email: "bob@example.com", Name: "Bob"},
	}
	return fixture{
		svc:   NewService(tasks, projects, users, acts, zap.NewNop()),
		tasks: tasks,
		acts:  acts,
	}
}

func TestCreateTaskEmitsAssignment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.svc.Create(ctx, admin, CreateInput{Title: "Design", ProjectID: 10, AssigneeID: ptr(int64(2))})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusNew, task.Status)

	require.Len(t, f.tasks.events, 1)
	ev := f.tasks.events[0]
	assert.Equal(t, task.ID, ev.TaskID)
	assert.Equal(t, "alice@example.com", ev.AssigneeEmail)
	assert.Equal(t, "Apollo", ev.ProjectName)
	assert.Equal(t, "Ada", ev.AssignedBy)
	assert.NotEmpty(t, ev.EventID)

	require.Len(t, f.acts.items, 1)
	assert.Equal(t, "created task 'Design'", f.acts.items[0].Message)
	assert.Equal(t, model.TargetTask, f.acts.items[0].TargetType)
}

func TestSelfAssignmentHasNoEvent(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), alice, CreateInput{Title: "Mine", ProjectID: 10, AssigneeID: ptr(alice.ID)})
	require.NoError(t, err)
	assert.Empty(t, f.tasks.events)
}

func TestCreateRequiresProjectAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, bob, CreateInput{Title: "Sneaky", ProjectID: 10})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, appErr.Status)
	assert.Equal(t, "You do not have access to this project.", appErr.Message)

	_, err = f.svc.Create(ctx, admin, CreateInput{Title: "Lost", ProjectID: 99})
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	_, err = f.svc.Create(ctx, admin, CreateInput{Title: "Nobody", ProjectID: 10, AssigneeID: ptr(int64(42))})
	assert.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestUpdateOnlyByAssignee(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.svc.Create(ctx, admin, CreateInput{Title: "Build", ProjectID: 10, AssigneeID: ptr(alice.ID)})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, bob, task.ID, UpdateInput{Status: ptr("DONE")})
	assert.Equal(t, http.StatusForbidden, apperr.StatusOf(err))

	updated, err := f.svc.Update(ctx, alice, task.ID, UpdateInput{Status: ptr("IN_PROGRESS")})
	require.NoError(t, err)
	assert.Equal(t, "IN_PROGRESS", updated.Status)
	assert.Equal(t, "updated task 'Build' to status IN_PROGRESS", f.acts.items[len(f.acts.items)-1].Message)

	// 重新指派给 bob 产生新事件
	before := len(f.tasks.events)
	_, err = f.svc.Update(ctx, admin, task.ID, UpdateInput{AssigneeID: ptr(bob.ID)})
	require.NoError(t, err)
	require.Len(t, f.tasks.events, before+1)
	assert.Equal(t, "bob@example.com", f.tasks.events[before].AssigneeEmail)

	// 同一负责人不重复发送
	_, err = f.svc.Update(ctx, admin, task.ID, UpdateInput{AssigneeID: ptr(bob.ID)})
	require.NoError(t, err)
	assert.Len(t, f.tasks.events, before+1)

	cleared, err := f.svc.Update(ctx, admin, task.ID, UpdateInput{ClearAssignee: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssigneeID)
}

func TestDeleteOnlyByAssignee(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	task, err := f.svc.Create(ctx, admin, CreateInput{Title: "Ship", ProjectID: 10, AssigneeID: ptr(alice.ID)})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, alice, 999)
	assert.Equal(t, http.StatusNotFound, apperr.StatusOf(err))

	require.NoError(t, f.svc.Delete(ctx, alice, task.ID))
	assert.Equal(t, "deleted task 'Ship'", f.acts.items[len(f.acts.items)-1].Message)
}

func TestListPagination(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.List(ctx, alice, 3, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, f.tasks.filter.Limit)
	assert.Equal(t, 40, f.tasks.filter.Offset)
	require.NotNil(t, f.tasks.filter.VisibleTo)
	assert.Equal(t, alice.ID, *f.tasks.filter.VisibleTo)

	_, err = f.svc.List(ctx, admin, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, f.tasks.filter.VisibleTo)
	assert.Zero(t, f.tasks.filter.Offset)
}
