package task

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	s, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s, opts...)
}

func TestManagerCreateDefaults(t *testing.T) {
	m := newTestManager(t)

	tk, err := m.Create("write docs", "cover the public API", "Writing docs", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tk.ID != "1" {
		t.Errorf("first id = %q", tk.ID)
	}
	if tk.Status != StatusPending {
		t.Errorf("new task status = %q", tk.Status)
	}
	if len(tk.Blocks) != 0 || len(tk.BlockedBy) != 0 {
		t.Errorf("new task has edges: %v / %v", tk.Blocks, tk.BlockedBy)
	}
}

func TestManagerCreateRejectsEmptySubject(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("", "", "", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestManagerGetNotFound(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Get("99"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerAddBlockedBySymmetry(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)
	b, _ := m.Create("b", "", "", nil)

	if _, err := m.AddBlockedBy(b.ID, []string{a.ID}); err != nil {
		t.Fatal(err)
	}

	gotB, _ := m.Get(b.ID)
	gotA, _ := m.Get(a.ID)
	if !contains(gotB.BlockedBy, a.ID) {
		t.Errorf("b.BlockedBy = %v, missing %s", gotB.BlockedBy, a.ID)
	}
	if !contains(gotA.Blocks, b.ID) {
		t.Errorf("a.Blocks = %v, missing %s", gotA.Blocks, b.ID)
	}
}

func TestManagerAddBlockedByIdempotent(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)
	b, _ := m.Create("b", "", "", nil)

	for i := 0; i < 3; i++ {
		if _, err := m.AddBlockedBy(b.ID, []string{a.ID}); err != nil {
			t.Fatal(err)
		}
	}
	gotB, _ := m.Get(b.ID)
	if len(gotB.BlockedBy) != 1 {
		t.Errorf("duplicate edges recorded: %v", gotB.BlockedBy)
	}
	gotA, _ := m.Get(a.ID)
	if len(gotA.Blocks) != 1 {
		t.Errorf("duplicate reverse edges: %v", gotA.Blocks)
	}
}

func TestManagerAddBlockedByUnknownPredecessor(t *testing.T) {
	m := newTestManager(t)
	b, _ := m.Create("b", "", "", nil)

	_, err := m.AddBlockedBy(b.ID, []string{"404"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// The failed call must not have written a partial edge.
	gotB, _ := m.Get(b.ID)
	if len(gotB.BlockedBy) != 0 {
		t.Errorf("partial edge written: %v", gotB.BlockedBy)
	}
}

func TestManagerSelfBlockRejected(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)

	_, err := m.AddBlockedBy(a.ID, []string{a.ID})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestManagerCompletionCascade(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)
	b, _ := m.Create("b", "", "", nil)
	m.AddBlockedBy(b.ID, []string{a.ID})

	done := StatusCompleted
	if _, err := m.Update(a.ID, Update{Status: &done}); err != nil {
		t.Fatal(err)
	}

	gotB, _ := m.Get(b.ID)
	if contains(gotB.BlockedBy, a.ID) {
		t.Errorf("completing a should unblock b, got BlockedBy=%v", gotB.BlockedBy)
	}
}

func TestManagerCascadePrecision(t *testing.T) {
	// c blocked by both a and b; completing a must leave the b edge alone.
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)
	b, _ := m.Create("b", "", "", nil)
	c, _ := m.Create("c", "", "", nil)
	m.AddBlockedBy(c.ID, []string{a.ID, b.ID})

	done := StatusCompleted
	if _, err := m.Update(a.ID, Update{Status: &done}); err != nil {
		t.Fatal(err)
	}

	gotC, _ := m.Get(c.ID)
	if contains(gotC.BlockedBy, a.ID) {
		t.Errorf("a edge should be gone: %v", gotC.BlockedBy)
	}
	if !contains(gotC.BlockedBy, b.ID) {
		t.Errorf("b edge should remain: %v", gotC.BlockedBy)
	}

	if _, err := m.Update(b.ID, Update{Status: &done}); err != nil {
		t.Fatal(err)
	}
	gotC, _ = m.Get(c.ID)
	if len(gotC.BlockedBy) != 0 {
		t.Errorf("c should be fully unblocked: %v", gotC.BlockedBy)
	}
}

func TestManagerOwnerAutoAssign(t *testing.T) {
	m := newTestManager(t, WithActor("agent-7"))
	tk, _ := m.Create("a", "", "", nil)

	inProgress := StatusInProgress
	got, err := m.Update(tk.ID, Update{Status: &inProgress})
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner != "agent-7" {
		t.Errorf("owner = %q, want auto-assigned actor", got.Owner)
	}

	// An explicit owner is never overwritten.
	tk2, _ := m.Create("b", "", "", nil)
	owner := "someone-else"
	if _, err := m.Update(tk2.ID, Update{Owner: &owner}); err != nil {
		t.Fatal(err)
	}
	got2, err := m.Update(tk2.ID, Update{Status: &inProgress})
	if err != nil {
		t.Fatal(err)
	}
	if got2.Owner != "someone-else" {
		t.Errorf("owner overwritten: %q", got2.Owner)
	}
}

func TestManagerUpdateAtomicOnValidationFailure(t *testing.T) {
	m := newTestManager(t)
	tk, _ := m.Create("a", "original", "", nil)

	bad := Status("cancelled")
	subject := "changed"
	_, err := m.Update(tk.ID, Update{Subject: &subject, Status: &bad})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got, _ := m.Get(tk.ID)
	if got.Subject != "a" {
		t.Errorf("rejected update still mutated the record: %q", got.Subject)
	}
}

func TestManagerDeleteCleansEdges(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)
	b, _ := m.Create("b", "", "", nil)
	c, _ := m.Create("c", "", "", nil)
	m.AddBlockedBy(b.ID, []string{a.ID})
	m.AddBlockedBy(c.ID, []string{b.ID})

	ok, err := m.Delete(b.ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := m.Get(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("record still loadable after delete")
	}

	gotA, _ := m.Get(a.ID)
	if contains(gotA.Blocks, b.ID) {
		t.Errorf("dangling edge in a.Blocks: %v", gotA.Blocks)
	}
	gotC, _ := m.Get(c.ID)
	if contains(gotC.BlockedBy, b.ID) {
		t.Errorf("dangling edge in c.BlockedBy: %v", gotC.BlockedBy)
	}
}

func TestManagerDeleteMissing(t *testing.T) {
	m := newTestManager(t)
	ok, err := m.Delete("404")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("delete of a missing record reported success")
	}
}

func TestManagerIDsNotReusedAfterDelete(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", "", nil)
	m.Delete(a.ID)

	b, err := m.Create("b", "", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.ID == a.ID {
		t.Errorf("id %s reused after deletion", b.ID)
	}
}

func TestManagerConcurrentEdgeMutations(t *testing.T) {
	m := newTestManager(t)
	hub, _ := m.Create("hub", "", "", nil)

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		tk, err := m.Create(fmt.Sprintf("t%d", i), "", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = tk.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := m.AddBlockedBy(hub.ID, []string{id}); err != nil {
				t.Errorf("AddBlockedBy(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	got, _ := m.Get(hub.ID)
	if len(got.BlockedBy) != n {
		t.Errorf("lost updates: %d edges, want %d", len(got.BlockedBy), n)
	}
	for _, id := range ids {
		pred, _ := m.Get(id)
		if !contains(pred.Blocks, hub.ID) {
			t.Errorf("asymmetric edge for %s", id)
		}
	}
}

// hookStore wraps a Store and fires fn after each underlying read, so a test
// can interleave mutations between a load and the write that follows it.
type hookStore struct {
	Store
	mu sync.Mutex
	fn func(id string)
}

func (h *hookStore) setHook(fn func(id string)) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
}

func (h *hookStore) Load(id string) (Task, error) {
	tk, err := h.Store.Load(id)
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn != nil {
		fn(id)
	}
	return tk, err
}

// A successor edge added between Update's unlocked first read and its locked
// reload must still be cascaded under that successor's lock. Otherwise an
// edge written concurrently with the cascade is clobbered by the cascade's
// stale save.
func TestManagerCascadeLocksLateSuccessor(t *testing.T) {
	fs, err := OpenFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	hs := &hookStore{Store: fs}
	m := NewManager(hs)

	blocker, _ := m.Create("blocker", "", "", nil)
	succ, _ := m.Create("succ", "", "", nil)
	late, _ := m.Create("late", "", "", nil)

	var wg sync.WaitGroup
	// Stage 2: during the cascade's read of succ, race in a new predecessor
	// edge on succ from another goroutine.
	raceInEdge := func(id string) {
		if id != succ.ID {
			return
		}
		hs.setHook(nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.AddBlockedBy(succ.ID, []string{late.ID}); err != nil {
				t.Errorf("concurrent AddBlockedBy: %v", err)
			}
		}()
		time.Sleep(50 * time.Millisecond)
	}
	// Stage 1: after the first read of blocker, grow its Blocks so the prefetched
	// lock set is stale.
	hs.setHook(func(id string) {
		if id != blocker.ID {
			return
		}
		hs.setHook(nil)
		if _, err := m.AddBlockedBy(succ.ID, []string{blocker.ID}); err != nil {
			t.Fatalf("AddBlockedBy during first read: %v", err)
		}
		hs.setHook(raceInEdge)
	})

	done := StatusCompleted
	if _, err := m.Update(blocker.ID, Update{Status: &done}); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	gotSucc, _ := m.Get(succ.ID)
	gotLate, _ := m.Get(late.ID)
	if contains(gotSucc.BlockedBy, blocker.ID) {
		t.Errorf("cascade missed: succ.BlockedBy = %v", gotSucc.BlockedBy)
	}
	if !contains(gotSucc.BlockedBy, late.ID) {
		t.Errorf("concurrent edge lost: succ.BlockedBy = %v, want %s", gotSucc.BlockedBy, late.ID)
	}
	if !contains(gotLate.Blocks, succ.ID) {
		t.Errorf("asymmetric edge: late.Blocks = %v", gotLate.Blocks)
	}
}
