package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager is the graph engine over a Store. All mutations go through it so
// the edge symmetry invariant holds: after any call returns, id appears in
// other.BlockedBy exactly when other appears in task.Blocks.
type Manager struct {
	store  Store
	actor  string
	logger *slog.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithActor sets the identity auto-assigned as Owner when a task moves to
// in_progress without one.
func WithActor(actor string) ManagerOption {
	return func(m *Manager) { m.actor = actor }
}

// WithLogger sets the manager's logger. Nil is ignored.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager wraps store. The zero actor leaves Owner empty on auto-assign.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.New(discardHandler{}),
		locks:  map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lockIDs acquires the per-id mutexes for ids in sorted order and returns the
// matching unlock. Sorted acquisition keeps concurrent edge transactions from
// deadlocking against each other.
func (m *Manager) lockIDs(ids ...string) func() {
	uniq := map[string]bool{}
	var sorted []string
	for _, id := range ids {
		if !uniq[id] {
			uniq[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return idLess(sorted[i], sorted[j]) })

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		m.lockMu.Lock()
		mu, ok := m.locks[id]
		if !ok {
			mu = &sync.Mutex{}
			m.locks[id] = mu
		}
		m.lockMu.Unlock()
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Create allocates an id and persists a new pending task.
func (m *Manager) Create(subject, description, activeForm string, metadata map[string]string) (Task, error) {
	if subject == "" {
		return Task{}, &ValidationError{Field: "subject", Reason: "must not be empty"}
	}
	id, err := m.store.Allocate()
	if err != nil {
		return Task{}, err
	}
	now := time.Now().Unix()
	t := Task{
		ID:          id,
		Subject:     subject,
		Description: description,
		ActiveForm:  activeForm,
		Status:      StatusPending,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	unlock := m.lockIDs(id)
	defer unlock()
	if err := m.store.Save(t); err != nil {
		return Task{}, err
	}
	m.logger.Debug("task created", "id", id, "subject", subject)
	return t.Clone(), nil
}

// Get returns the task for id, or ErrNotFound.
func (m *Manager) Get(id string) (Task, error) {
	t, err := m.store.Load(id)
	if err != nil {
		return Task{}, err
	}
	return t.Clone(), nil
}

// List returns every task ordered by id.
func (m *Manager) List() ([]Task, error) {
	ts, err := m.store.List()
	if err != nil {
		return nil, err
	}
	for i := range ts {
		ts[i] = ts[i].Clone()
	}
	return ts, nil
}

// Update describes a partial mutation. Nil fields are left as they are.
type Update struct {
	Subject      *string
	Description  *string
	ActiveForm   *string
	Status       *Status
	Owner        *string
	Metadata     map[string]string // merged key-by-key
	AddBlockedBy []string
}

// Update applies u atomically: validation happens before any write, so a
// rejected update leaves the stored record untouched. Moving to in_progress
// with no owner assigns the manager's actor. Moving to completed removes this
// task from every successor's BlockedBy.
func (m *Manager) Update(id string, u Update) (Task, error) {
	if u.Status != nil && !u.Status.Valid() {
		return Task{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *u.Status)}
	}
	if u.Subject != nil && *u.Subject == "" {
		return Task{}, &ValidationError{Field: "subject", Reason: "must not be empty"}
	}

	if len(u.AddBlockedBy) > 0 {
		if _, err := m.AddBlockedBy(id, u.AddBlockedBy); err != nil {
			return Task{}, err
		}
	}

	// Lock the task plus everything its completion could touch.
	t, unlock, err := m.lockTaskAndEdges(id, func(t Task) []string { return t.Blocks })
	if err != nil {
		return Task{}, err
	}
	defer unlock()

	if u.Subject != nil {
		t.Subject = *u.Subject
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.ActiveForm != nil {
		t.ActiveForm = *u.ActiveForm
	}
	if u.Owner != nil {
		t.Owner = *u.Owner
	}
	if len(u.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = map[string]string{}
		}
		for k, v := range u.Metadata {
			t.Metadata[k] = v
		}
	}
	if u.Status != nil {
		t.Status = *u.Status
		if t.Status == StatusInProgress && t.Owner == "" {
			t.Owner = m.actor
		}
	}
	t.UpdatedAt = time.Now().Unix()

	if err := m.store.Save(t); err != nil {
		return Task{}, err
	}

	if u.Status != nil && *u.Status == StatusCompleted {
		if err := m.cascade(t); err != nil {
			return Task{}, err
		}
	}
	m.logger.Debug("task updated", "id", id, "status", string(t.Status))
	return t.Clone(), nil
}

// lockTaskAndEdges loads id and acquires the locks for id plus edges(task).
// The edge set can change between the unlocked first read and the locked
// reload, so it retries until the reloaded edges are covered by the held
// locks. On success every returned edge id is locked.
func (m *Manager) lockTaskAndEdges(id string, edges func(Task) []string) (Task, func(), error) {
	for {
		snapshot, err := m.store.Load(id)
		if err != nil {
			return Task{}, nil, err
		}
		locked := append([]string{id}, edges(snapshot)...)
		unlock := m.lockIDs(locked...)

		t, err := m.store.Load(id)
		if err != nil {
			unlock()
			return Task{}, nil, err
		}
		if coveredBy(edges(t), locked) {
			return t, unlock, nil
		}
		unlock()
	}
}

func coveredBy(ids, held []string) bool {
	for _, id := range ids {
		if !contains(held, id) {
			return false
		}
	}
	return true
}

// cascade removes t's id from the BlockedBy of every task it blocks. Callers
// hold the locks for t and all of t.Blocks.
func (m *Manager) cascade(t Task) error {
	for _, succ := range t.Blocks {
		st, err := m.store.Load(succ)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if !contains(st.BlockedBy, t.ID) {
			continue
		}
		st.BlockedBy = remove(st.BlockedBy, t.ID)
		st.UpdatedAt = time.Now().Unix()
		if err := m.store.Save(st); err != nil {
			return err
		}
	}
	return nil
}

// AddBlockedBy records that each id in predecessors blocks the given task,
// writing both endpoints of every edge. Unknown predecessor ids fail the
// whole call before any write.
func (m *Manager) AddBlockedBy(id string, predecessors []string) (Task, error) {
	unlock := m.lockIDs(append([]string{id}, predecessors...)...)
	defer unlock()

	t, err := m.store.Load(id)
	if err != nil {
		return Task{}, err
	}
	preds := make([]Task, 0, len(predecessors))
	for _, pid := range predecessors {
		if pid == id {
			return Task{}, &ValidationError{Field: "blocked_by", Reason: "task cannot block itself"}
		}
		p, err := m.store.Load(pid)
		if err == ErrNotFound {
			return Task{}, fmt.Errorf("predecessor %s: %w", pid, ErrNotFound)
		}
		if err != nil {
			return Task{}, err
		}
		preds = append(preds, p)
	}

	now := time.Now().Unix()
	for _, p := range preds {
		if !contains(t.BlockedBy, p.ID) {
			t.BlockedBy = append(t.BlockedBy, p.ID)
		}
		if !contains(p.Blocks, id) {
			p.Blocks = append(p.Blocks, id)
			p.UpdatedAt = now
			if err := m.store.Save(p); err != nil {
				return Task{}, err
			}
		}
	}
	t.UpdatedAt = now
	if err := m.store.Save(t); err != nil {
		return Task{}, err
	}
	return t.Clone(), nil
}

// Delete removes the record for id and scrubs its edges from every other
// record. The id allocator never rewinds, so the id is not reused. Reports
// whether a record existed.
func (m *Manager) Delete(id string) (bool, error) {
	t, unlock, err := m.lockTaskAndEdges(id, func(t Task) []string {
		return append(append([]string{}, t.Blocks...), t.BlockedBy...)
	})
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer unlock()

	neighbors := append(append([]string{}, t.Blocks...), t.BlockedBy...)
	for _, nid := range neighbors {
		n, err := m.store.Load(nid)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return false, err
		}
		if !contains(n.Blocks, id) && !contains(n.BlockedBy, id) {
			continue
		}
		n.Blocks = remove(n.Blocks, id)
		n.BlockedBy = remove(n.BlockedBy, id)
		n.UpdatedAt = time.Now().Unix()
		if err := m.store.Save(n); err != nil {
			return false, err
		}
	}
	return m.store.Delete(id)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
