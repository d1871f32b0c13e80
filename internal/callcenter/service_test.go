package callcenter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyage-crm/voyage/internal/notifications"
	"github.com/voyage-crm/voyage/internal/platform/httpx"
	"github.com/voyage-crm/voyage/internal/rbac"
	"github.com/voyage-crm/voyage/internal/users"
)

type memoryLead struct {
	QueueEntry
	archived bool
}

type memoryCallRepo struct {
	nextID int64
	leads  map[int64]*memoryLead
	calls  map[int64]*Call
}

func newMemoryCallRepo() *memoryCallRepo {
	return &memoryCallRepo{leads: map[int64]*memoryLead{}, calls: map[int64]*Call{}}
}

func (m *memoryCallRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryCallRepo) due(l *memoryLead, t CallType, day time.Time) bool {
	if l.archived {
		return false
	}
	date := l.DepartureDate
	statuses := map[string]bool{"confirmed": true}
	if t == CallPostArrival {
		date = l.ArrivalDate
		statuses["document_upload_complete"] = true
	}
	return date != nil && date.Equal(day) && statuses[l.Status]
}

func (m *memoryCallRepo) hasCall(leadID int64, t CallType) bool {
	for _, c := range m.calls {
		if c.LeadID == leadID && c.CallType == t {
			return true
		}
	}
	return false
}

func (m *memoryCallRepo) Queue(_ context.Context, t CallType, day time.Time) ([]QueueEntry, error) {
	var out []QueueEntry
	for _, l := range m.leads {
		if m.due(l, t, day) && !m.hasCall(l.LeadID, t) {
			out = append(out, l.QueueEntry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadID < out[j].LeadID })
	return out, nil
}

func (m *memoryCallRepo) QueueLead(_ context.Context, t CallType, leadID int64, day time.Time) (*QueueEntry, error) {
	l, ok := m.leads[leadID]
	if !ok || !m.due(l, t, day) {
		return nil, ErrNotInQueue
	}
	q := l.QueueEntry
	return &q, nil
}

func (m *memoryCallRepo) LeadExists(_ context.Context, leadID int64) (bool, error) {
	_, ok := m.leads[leadID]
	return ok, nil
}

func (m *memoryCallRepo) Create(_ context.Context, c Call) (*Call, error) {
	if m.hasCall(c.LeadID, c.CallType) {
		return nil, ErrCallExists
	}
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	if c.ChecklistDone == nil {
		c.ChecklistDone = []string{}
	}
	cp := c
	m.calls[c.ID] = &cp
	return &c, nil
}

func (m *memoryCallRepo) Get(_ context.Context, id int64, scope Scope) (*Call, error) {
	c, ok := m.calls[id]
	if !ok || !scope.Matches(c) {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memoryCallRepo) List(_ context.Context, f ListFilter, scope Scope) ([]Call, int, error) {
	var out []Call
	for _, c := range m.calls {
		if !scope.Matches(c) {
			continue
		}
		if f.CallType != "" && c.CallType != f.CallType {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryCallRepo) Save(_ context.Context, c Call, expected CallStatus) error {
	stored, ok := m.calls[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrStaleCall
	}
	cp := c
	m.calls[c.ID] = &cp
	return nil
}

type memoryDirectory struct {
	users map[int64]*users.User
}

func (d memoryDirectory) Lookup(_ context.Context, id int64) (*users.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func (d memoryDirectory) ManagerOf(_ context.Context, role users.Role, excludeID int64) (*users.User, error) {
	var best *users.User
	for _, u := range d.users {
		if u.Role == role && u.Manager && u.ID != excludeID && (best == nil || u.ID < best.ID) {
			best = u
		}
	}
	if best == nil {
		return nil, users.ErrNotFound
	}
	return best, nil
}

type recordingNotifier struct {
	sent []sentMessage
}

type sentMessage struct {
	to  []int64
	msg notifications.Message
}

func (n *recordingNotifier) Notify(_ context.Context, to []int64, msg notifications.Message) error {
	n.sent = append(n.sent, sentMessage{to: to, msg: msg})
	return nil
}

func staff(id int64, role users.Role) *users.User {
	return &users.User{ID: id, Name: string(role), Role: role, Active: true}
}

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

type fixture struct {
	repo     *memoryCallRepo
	notifier *recordingNotifier
	svc      *Service
	admin    *users.User
	agent    *users.User
	agent2   *users.User
	manager  *users.User
	sales    *users.User
}

// The clock is 2026-03-10: departures on 03-12 and arrivals on 03-09 are due.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newMemoryCallRepo(),
		notifier: &recordingNotifier{},
		admin:    staff(1, users.RoleAdmin),
		agent:    staff(2, users.RoleCallCenter),
		agent2:   staff(3, users.RoleCallCenter),
		manager:  staff(4, users.RoleCallCenter),
		sales:    staff(5, users.RoleSales),
	}
	f.manager.Manager = true
	dir := memoryDirectory{users: map[int64]*users.User{}}
	for _, u := range []*users.User{f.admin, f.agent, f.agent2, f.manager, f.sales} {
		dir.users[u.ID] = u
	}
	f.repo.leads[10] = &memoryLead{QueueEntry: QueueEntry{LeadID: 10, ReferenceID: "L-10", Status: "confirmed", DepartureDate: day("2026-03-12")}}
	f.repo.leads[11] = &memoryLead{QueueEntry: QueueEntry{LeadID: 11, ReferenceID: "L-11", Status: "document_upload_complete", DepartureDate: day("2026-03-12")}}
	f.repo.leads[12] = &memoryLead{QueueEntry: QueueEntry{LeadID: 12, ReferenceID: "L-12", Status: "confirmed", DepartureDate: day("2026-03-13")}}
	f.repo.leads[13] = &memoryLead{QueueEntry: QueueEntry{LeadID: 13, ReferenceID: "L-13", Status: "confirmed", DepartureDate: day("2026-03-12")}, archived: true}
	f.repo.leads[20] = &memoryLead{QueueEntry: QueueEntry{LeadID: 20, ReferenceID: "L-20", Status: "document_upload_complete", ArrivalDate: day("2026-03-09")}}
	f.svc = NewService(f.repo, dir, f.notifier, nil)
	f.svc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) }
	return f
}

func leadIDs(entries []QueueEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.LeadID)
	}
	return out
}

func TestDueDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, *day("2026-03-12"), DueDay(CallPreDeparture, now))
	assert.Equal(t, *day("2026-03-09"), DueDay(CallPostArrival, now))
}

func TestQueuesSelectDueLeads(t *testing.T) {
	f := newFixture(t)
	q, err := f.svc.Queues(context.Background(), f.agent)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, leadIDs(q.PreDeparture))
	assert.Equal(t, []int64{20}, leadIDs(q.PostArrival))

	_, err = f.svc.Queues(context.Background(), f.sales)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAssignToMeCreatesExactlyOneCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.AssignToMe(ctx, f.agent, CallPreDeparture, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, c.Status)
	require.NotNil(t, c.AssignedTo)
	assert.Equal(t, f.agent.ID, *c.AssignedTo)

	_, err = f.svc.AssignToMe(ctx, f.agent2, CallPreDeparture, 10)
	assert.ErrorIs(t, err, ErrCallExists)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.Len(t, f.repo.calls, 1)

	q, err := f.svc.Queues(ctx, f.agent)
	require.NoError(t, err)
	assert.Empty(t, q.PreDeparture)
}

func TestAssignToMeRequiresQueuedLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, leadID := range []int64{11, 12, 13, 99} {
		_, err := f.svc.AssignToMe(ctx, f.agent, CallPreDeparture, leadID)
		assert.ErrorIs(t, err, ErrNotInQueue, "lead %d", leadID)
	}
	_, err := f.svc.AssignToMe(ctx, f.admin, CallPreDeparture, 10)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.AssignToMe(ctx, f.agent, CallType("welcome"), 10)
	assert.ErrorIs(t, err, ErrInvalid)

	c, err := f.svc.AssignToMe(ctx, f.agent, CallPostArrival, 20)
	require.NoError(t, err)
	assert.Equal(t, CallPostArrival, c.CallType)
}

func TestAgentsOnlySeeTheirOwnCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, err := f.svc.AssignToMe(ctx, f.agent, CallPreDeparture, 10)
	require.NoError(t, err)
	_, err = f.svc.AssignToMe(ctx, f.agent2, CallPostArrival, 20)
	require.NoError(t, err)

	list, total, err := f.svc.List(ctx, f.agent, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, mine.ID, list[0].ID)

	_, err = f.svc.Get(ctx, f.agent2, mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.StartCall(ctx, f.agent2, mine.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, total, err = f.svc.List(ctx, f.admin, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, _, err = f.svc.List(ctx, f.sales, ListFilter{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCallLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.AssignToMe(ctx, f.agent, CallPostArrival, 20)
	require.NoError(t, err)

	_, err = f.svc.MarkNotAnswered(ctx, f.agent, c.ID)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	c, err = f.svc.StartCall(ctx, f.agent, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCalled, c.Status)
	assert.Equal(t, 1, c.Attempts)
	require.NotNil(t, c.LastCalledAt)

	c, err = f.svc.MarkNotAnswered(ctx, f.agent, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotAnswered, c.Status)

	c, err = f.svc.StartCall(ctx, f.agent, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Attempts)

	_, err = f.svc.UpdateChecklist(ctx, f.agent, c.ID, ChecklistRequest{Completed: []string{"tickets_shared"}})
	assert.ErrorIs(t, err, ErrInvalid)

	c, err = f.svc.UpdateChecklist(ctx, f.agent, c.ID, ChecklistRequest{Completed: []string{"review_requested", "feedback_collected", "feedback_collected"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"feedback_collected", "review_requested"}, c.ChecklistDone)

	_, err = f.svc.Complete(ctx, f.agent, c.ID, CompleteRequest{})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, StatusCalled, f.repo.calls[c.ID].Status)

	notes := " customer happy "
	c, err = f.svc.Complete(ctx, f.agent, c.ID, CompleteRequest{
		Completed: []string{"feedback_collected", "issues_logged", "review_requested", "future_travel_interest"},
		Notes:     &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, "customer happy", c.Notes)
	require.NotNil(t, c.CompletedAt)

	_, err = f.svc.UpdateChecklist(ctx, f.agent, c.ID, ChecklistRequest{})
	assert.ErrorIs(t, err, ErrActionNotAllowed)
	_, err = f.svc.StartCall(ctx, f.agent, c.ID)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestAdminCreateAndAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateCall(ctx, f.agent, CreateCallRequest{LeadID: 12, CallType: CallPreDeparture})
	assert.ErrorIs(t, err, ErrForbidden)

	c, err := f.svc.CreateCall(ctx, f.admin, CreateCallRequest{LeadID: 12, CallType: CallPreDeparture})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status)
	assert.Nil(t, c.AssignedTo)

	_, err = f.svc.AssignCall(ctx, f.admin, c.ID, f.sales.ID)
	assert.ErrorIs(t, err, ErrInvalid)

	c, err = f.svc.AssignCall(ctx, f.admin, c.ID, f.agent2.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, c.Status)
	assert.True(t, f.agent2.Is(c.AssignedTo))

	_, err = f.svc.CreateCall(ctx, f.admin, CreateCallRequest{LeadID: 12, CallType: CallPreDeparture})
	assert.ErrorIs(t, err, ErrCallExists)
	_, err = f.svc.CreateCall(ctx, f.admin, CreateCallRequest{LeadID: 404, CallType: CallPreDeparture})
	assert.ErrorIs(t, err, ErrNotFound)

	c, err = f.svc.CreateCall(ctx, f.admin, CreateCallRequest{LeadID: 12, CallType: CallPostArrival, AssignedTo: &f.agent.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, c.Status)
}

func TestSaveRejectsStaleStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.AssignToMe(ctx, f.agent, CallPreDeparture, 10)
	require.NoError(t, err)

	c.Status = StatusCalled
	err = f.repo.Save(ctx, *c, StatusNotAnswered)
	assert.ErrorIs(t, err, ErrStaleCall)
}

func TestScanQueuesAlertsManager(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.ScanQueues(context.Background(), f.svc.now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.PreDeparture)
	assert.Equal(t, 1, res.PostArrival)
	assert.Equal(t, 1, res.Notified)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, []int64{f.manager.ID}, sent.to)
	assert.Equal(t, notifications.KeyCallQueueWaiting, sent.msg.Key)
	assert.Equal(t, "1", sent.msg.Params["pre_departure"])
	assert.Equal(t, "1", sent.msg.Params["post_arrival"])
}

func TestScanQueuesQuietWhenEmpty(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.ScanQueues(context.Background(), time.Date(2030, 1, 1, 6, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, res.PreDeparture+res.PostArrival)
	assert.Empty(t, f.notifier.sent)
}

func TestScopeForRoles(t *testing.T) {
	assert.True(t, ScopeFor(nil).None)
	assert.True(t, ScopeFor(staff(1, users.RoleAdmin)).All)
	assert.Equal(t, int64(7), ScopeFor(staff(7, users.RoleCallCenter)).Assignee)
	for _, role := range []users.Role{users.RoleSales, users.RoleOperation, users.RoleHR, users.RoleAccount, users.RoleMarketing} {
		assert.True(t, ScopeFor(staff(1, role)).None, role)
	}
}

func TestRoutesRequireCallCenterRole(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(nil, f.svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Route("/call-center", h.MountRoutes)

	serve := func(actor *users.User, method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(users.WithActor(req.Context(), actor))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, serve(f.sales, http.MethodGet, "/call-center/queue").Code)
	assert.Equal(t, http.StatusOK, serve(f.agent, http.MethodGet, "/call-center/queue").Code)
	assert.Equal(t, http.StatusCreated, serve(f.agent, http.MethodPost, "/call-center/queue/pre_departure/10/assign-to-me").Code)
	assert.Equal(t, http.StatusConflict, serve(f.agent2, http.MethodPost, "/call-center/queue/pre_departure/10/assign-to-me").Code)
}
