package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
)

type memState struct {
	tasks    map[string]domain.Task
	comments []domain.Comment
	audit    []domain.AuditRecord

	failUpdate error
	failAppend error
}

func (m *memState) clone() memState {
	out := memState{
		tasks:      make(map[string]domain.Task, len(m.tasks)),
		comments:   append([]domain.Comment(nil), m.comments...),
		audit:      append([]domain.AuditRecord(nil), m.audit...),
		failUpdate: m.failUpdate,
		failAppend: m.failAppend,
	}
	for id, t := range m.tasks {
		out.tasks[id] = t.Clone()
	}
	return out
}

func (m *memState) GetTask(_ context.Context, id string) (domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

func (m *memState) InsertTask(_ context.Context, task domain.Task) error {
	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("insert task: %w", domain.ErrConflict)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *memState) UpdateTask(_ context.Context, task domain.Task) error {
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("update task %s: %w", task.ID, domain.ErrNotFound)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *memState) DeleteTask(_ context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
	}
	delete(m.tasks, id)
	kept := m.comments[:0]
	for _, c := range m.comments {
		if c.TaskID != id {
			kept = append(kept, c)
		}
	}
	m.comments = kept
	return nil
}

func (m *memState) ListTasks(_ context.Context, offset, limit int) ([]domain.Task, error) {
	all := make([]domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		all = append(all, t.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, offset, limit), nil
}

func (m *memState) InsertComment(_ context.Context, c domain.Comment) error {
	if _, ok := m.tasks[c.TaskID]; !ok {
		return fmt.Errorf("insert comment: %w", domain.ErrNotFound)
	}
	m.comments = append(m.comments, c)
	return nil
}

func (m *memState) ListComments(_ context.Context, taskID string, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	for _, c := range m.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return window(out, offset, limit), nil
}

func (m *memState) Append(_ context.Context, rec *domain.AuditRecord) error {
	if m.failAppend != nil {
		return m.failAppend
	}
	m.audit = append(m.audit, *rec)
	return nil
}

func (m *memState) FindByTask(_ context.Context, taskID string, limit int) ([]domain.AuditRecord, error) {
	out := []domain.AuditRecord{}
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if m.audit[i].TaskID == taskID {
			out = append(out, m.audit[i])
		}
	}
	return out, nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// memStore is an in-memory TaskStore, AuditTrail and UnitOfWork. A failed
// InTx restores the state from before the call.
type memStore struct {
	mu    sync.Mutex
	state memState
}

func newMemStore() *memStore {
	return &memStore{state: memState{tasks: map[string]domain.Task{}}}
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tasks TaskStore, trail AuditTrail) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.state.clone()
	if err := fn(ctx, &s.state, &s.state); err != nil {
		s.state = saved
		return err
	}
	return nil
}

func (s *memStore) locked(fn func(*memState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.state)
}

func (s *memStore) GetTask(ctx context.Context, id string) (t domain.Task, err error) {
	err = s.locked(func(m *memState) error { t, err = m.GetTask(ctx, id); return err })
	return t, err
}

func (s *memStore) InsertTask(ctx context.Context, task domain.Task) error {
	return s.locked(func(m *memState) error { return m.InsertTask(ctx, task) })
}

func (s *memStore) UpdateTask(ctx context.Context, task domain.Task) error {
	return s.locked(func(m *memState) error { return m.UpdateTask(ctx, task) })
}

func (s *memStore) DeleteTask(ctx context.Context, id string) error {
	return s.locked(func(m *memState) error { return m.DeleteTask(ctx, id) })
}

func (s *memStore) ListTasks(ctx context.Context, offset, limit int) (out []domain.Task, err error) {
	err = s.locked(func(m *memState) error { out, err = m.ListTasks(ctx, offset, limit); return err })
	return out, err
}

func (s *memStore) InsertComment(ctx context.Context, c domain.Comment) error {
	return s.locked(func(m *memState) error { return m.InsertComment(ctx, c) })
}

func (s *memStore) ListComments(ctx context.Context, taskID string, offset, limit int) (out []domain.Comment, err error) {
	err = s.locked(func(m *memState) error { out, err = m.ListComments(ctx, taskID, offset, limit); return err })
	return out, err
}

func (s *memStore) Append(ctx context.Context, rec *domain.AuditRecord) error {
	return s.locked(func(m *memState) error { return m.Append(ctx, rec) })
}

func (s *memStore) FindByTask(ctx context.Context, taskID string, limit int) (out []domain.AuditRecord, err error) {
	err = s.locked(func(m *memState) error { out, err = m.FindByTask(ctx, taskID, limit); return err })
	return out, err
}

func (s *memStore) auditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.audit)
}

func (s *memStore) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.tasks)
}

type published struct {
	subject string
	payload []byte
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishBestEffort(subject string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{subject: subject, payload: payload})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *recordingPublisher) last() contracts.DomainEvent {
	events := p.all()
	if len(events) == 0 {
		return nil
	}
	e := events[len(events)-1]
	ev, err := contracts.DecodeEvent(e.subject, e.payload)
	if err != nil {
		panic(err)
	}
	return ev
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
