package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voyage-crm/voyage/internal/users"
)

type memoryLeadRepo struct {
	mu     sync.Mutex
	nextID int64
	leads  map[int64]*Lead
	logs   []ActionLog
	notes  []Note
}

func newMemoryLeadRepo() *memoryLeadRepo {
	return &memoryLeadRepo{leads: map[int64]*Lead{}}
}

func (m *memoryLeadRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *memoryLeadRepo) put(l Lead) *Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l.ID = m.nextID
	if l.Status == "" {
		l.Status = StatusNew
	}
	cp := l
	m.leads[l.ID] = &cp
	return &cp
}

func (m *memoryLeadRepo) Create(_ context.Context, l Lead) (*Lead, error) {
	for _, existing := range m.leads {
		if existing.ReferenceID == l.ReferenceID {
			return nil, errDuplicateReference
		}
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	created := m.put(l)
	cp := *created
	return &cp, nil
}

func (m *memoryLeadRepo) Get(_ context.Context, id int64, scope Scope) (*Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.IsDeleted() || !scope.Matches(l) {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memoryLeadRepo) GetDeleted(_ context.Context, id int64) (*Lead, error) {
	l, ok := m.leads[id]
	if !ok || !l.IsDeleted() {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memoryLeadRepo) List(_ context.Context, f ListFilter, scope Scope) ([]Lead, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Lead
	for _, l := range m.leads {
		if !scope.Matches(l) {
			continue
		}
		switch f.View {
		case ViewArchived:
			if l.IsDeleted() || !l.IsArchived() {
				continue
			}
		case ViewTrash:
			if !l.IsDeleted() {
				continue
			}
		default:
			if l.IsDeleted() || l.IsArchived() {
				continue
			}
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(l.CustomerName), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryLeadRepo) Update(_ context.Context, id int64, c Changes) (*Lead, error) {
	l, ok := m.leads[id]
	if !ok || l.IsDeleted() {
		return nil, ErrNotFound
	}
	if c.CustomerName != nil {
		l.CustomerName = *c.CustomerName
	}
	if c.Destination != nil {
		l.Destination = *c.Destination
	}
	if c.Priority != nil {
		l.Priority = *c.Priority
	}
	if c.DepartureDate != nil {
		l.DepartureDate = c.DepartureDate
	}
	if c.ArrivalDate != nil {
		l.ArrivalDate = c.ArrivalDate
	}
	if c.Adults != nil {
		l.Adults = *c.Adults
	}
	cp := *l
	return &cp, nil
}

func (m *memoryLeadRepo) ApplyTransition(_ context.Context, id int64, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok || l.IsDeleted() || l.IsArchived() || l.Status != t.From {
		return ErrStaleLead
	}
	if t.RequireUnassigned && l.AssignedTo != nil {
		return ErrStaleLead
	}
	if t.RequireOperatorFree && l.AssignedOperator != nil && (t.Operator == nil || *l.AssignedOperator != *t.Operator) {
		return ErrStaleLead
	}
	t.Apply(l)
	return nil
}

func (m *memoryLeadRepo) SetServiceStatus(_ context.Context, id int64, s Component, st ServiceStatus) error {
	l, ok := m.leads[id]
	if !ok || l.IsClosed() {
		return ErrStaleLead
	}
	l.setServiceStatus(s, st)
	return nil
}

func (m *memoryLeadRepo) SetArchived(_ context.Context, id int64, archived bool, by int64) error {
	l, ok := m.leads[id]
	if !ok || l.IsArchived() == archived {
		return ErrStaleLead
	}
	if archived {
		now := time.Now().UTC()
		l.ArchivedAt, l.ArchivedBy = &now, &by
	} else {
		l.ArchivedAt, l.ArchivedBy = nil, nil
	}
	return nil
}

func (m *memoryLeadRepo) SoftDelete(_ context.Context, id int64) error {
	l, ok := m.leads[id]
	if !ok || l.IsDeleted() {
		return ErrNotFound
	}
	now := time.Now().UTC()
	l.DeletedAt = &now
	return nil
}

func (m *memoryLeadRepo) Restore(_ context.Context, id int64) error {
	l, ok := m.leads[id]
	if !ok || !l.IsDeleted() {
		return ErrNotFound
	}
	l.DeletedAt = nil
	return nil
}

func (m *memoryLeadRepo) AppendLog(_ context.Context, e ActionLog) error {
	e.ID = int64(len(m.logs) + 1)
	e.CreatedAt = time.Now().UTC()
	m.logs = append(m.logs, e)
	return nil
}

func (m *memoryLeadRepo) ListLogs(_ context.Context, leadID int64) ([]ActionLog, error) {
	var out []ActionLog
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].LeadID == leadID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memoryLeadRepo) AddNote(_ context.Context, n Note) (*Note, error) {
	n.ID = int64(len(m.notes) + 1)
	n.CreatedAt = time.Now().UTC()
	m.notes = append(m.notes, n)
	return &n, nil
}

func (m *memoryLeadRepo) ListNotes(_ context.Context, leadID int64) ([]Note, error) {
	var out []Note
	for _, n := range m.notes {
		if n.LeadID == leadID {
			out = append(out, n)
		}
	}
	return out, nil
}

type memoryDirectory struct {
	users map[int64]*users.User
}

func newDirectory(list ...*users.User) *memoryDirectory {
	d := &memoryDirectory{users: map[int64]*users.User{}}
	for _, u := range list {
		d.users[u.ID] = u
	}
	return d
}

func (d *memoryDirectory) Lookup(_ context.Context, id int64) (*users.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func (d *memoryDirectory) ManagerOf(_ context.Context, role users.Role, excludeID int64) (*users.User, error) {
	var best *users.User
	for _, u := range d.users {
		if u.Role != role || !u.Manager || !u.Active || u.ID == excludeID {
			continue
		}
		if best == nil || u.ID < best.ID {
			best = u
		}
	}
	if best == nil {
		return nil, users.ErrNotFound
	}
	return best, nil
}

func staff(id int64, role users.Role) *users.User {
	return &users.User{ID: id, Name: string(role) + "-" + string(rune('A'+id)), Role: role, Active: true}
}

func ptr[T any](v T) *T { return &v }
