package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domgrant "github.com/kailas-cloud/dirsearch/internal/domain/grant"
)

// --- Mocks ---

type mockStore struct {
	mu      sync.Mutex
	grants  map[string][]catalog.List
	err     error
	calls   atomic.Int32
	block   chan struct{}
	granted []domgrant.Grant
	revoked []string
}

func (m *mockStore) ListsForAgent(ctx context.Context, agent string) ([]catalog.List, error) {
	m.calls.Add(1)
	m.mu.Lock()
	lists, err := m.grants[agent], m.err
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return lists, err
}

func (m *mockStore) Grant(_ context.Context, g domgrant.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = append(m.granted, g)
	return m.err
}

func (m *mockStore) Revoke(_ context.Context, agent, listID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, agent+"/"+listID)
	return m.err
}

func (m *mockStore) set(agent string, lists ...catalog.List) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants == nil {
		m.grants = make(map[string][]catalog.List)
	}
	m.grants[agent] = lists
}

func makeList(t *testing.T, name string) catalog.List {
	t.Helper()
	l, err := catalog.New("acc-1", name, "doctor", nil)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return l
}

// --- Tests ---

func TestAuthorizedLists_EmptyAgent(t *testing.T) {
	store := &mockStore{}
	svc := New(store, nil)

	lists, err := svc.AuthorizedLists(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lists) != 0 {
		t.Errorf("expected no lists, got %d", len(lists))
	}
	if store.calls.Load() != 0 {
		t.Error("empty agent must not hit the store")
	}
}

func TestAuthorizedLists_UnknownAgent(t *testing.T) {
	svc := New(&mockStore{}, nil)
	lists, err := svc.AuthorizedLists(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lists) != 0 {
		t.Errorf("expected no lists, got %d", len(lists))
	}
}

func TestAuthorizedLists_Cached(t *testing.T) {
	store := &mockStore{}
	store.set("bot-x", makeList(t, "doctors"))
	svc := New(store, nil)
	ctx := context.Background()

	for range 3 {
		lists, err := svc.AuthorizedLists(ctx, "bot-x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(lists) != 1 || lists[0].Name() != "doctors" {
			t.Fatalf("unexpected lists: %v", lists)
		}
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store calls = %d, want 1", got)
	}
}

func TestAuthorizedLists_Expires(t *testing.T) {
	store := &mockStore{}
	store.set("bot-x", makeList(t, "doctors"))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := New(store, nil).WithCacheTTL(time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = svc.AuthorizedLists(ctx, "bot-x")
	now = now.Add(2 * time.Second)
	_, _ = svc.AuthorizedLists(ctx, "bot-x")

	if got := store.calls.Load(); got != 2 {
		t.Errorf("store calls = %d, want 2 after expiry", got)
	}
}

func TestAuthorizedLists_StoreFailureIsFatal(t *testing.T) {
	svc := New(&mockStore{err: errors.New("connection refused")}, nil)
	lists, err := svc.AuthorizedLists(context.Background(), "bot-x")
	if !errors.Is(err, domain.ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if lists != nil {
		t.Errorf("a failed lookup must not yield lists, got %v", lists)
	}
}

func TestAuthorizedLists_ConcurrentFillsCollapse(t *testing.T) {
	store := &mockStore{block: make(chan struct{})}
	store.set("bot-x", makeList(t, "doctors"))
	svc := New(store, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AuthorizedLists(context.Background(), "bot-x"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(store.block)
	wg.Wait()

	if got := store.calls.Load(); got > 2 {
		t.Errorf("store calls = %d, concurrent fills must collapse", got)
	}
}

func TestRevoke_InvalidatesCache(t *testing.T) {
	store := &mockStore{}
	doctors := makeList(t, "doctors")
	store.set("bot-x", doctors)
	svc := New(store, nil)
	ctx := context.Background()

	if lists, _ := svc.AuthorizedLists(ctx, "bot-x"); len(lists) != 1 {
		t.Fatalf("expected 1 list before revoke, got %d", len(lists))
	}

	store.set("bot-x")
	if err := svc.Revoke(ctx, "bot-x", doctors.ID()); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	lists, err := svc.AuthorizedLists(ctx, "bot-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lists) != 0 {
		t.Errorf("revoked grant still visible: %v", lists)
	}
}

func TestGrant_InvalidatesCache(t *testing.T) {
	store := &mockStore{}
	svc := New(store, nil)
	ctx := context.Background()

	if lists, _ := svc.AuthorizedLists(ctx, "bot-x"); len(lists) != 0 {
		t.Fatal("expected no lists before grant")
	}

	nurses := makeList(t, "nurses")
	store.set("bot-x", nurses)
	if err := svc.Grant(ctx, "bot-x", nurses.ID()); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if len(store.granted) != 1 || store.granted[0].Agent() != "bot-x" {
		t.Errorf("unexpected grants: %v", store.granted)
	}

	lists, _ := svc.AuthorizedLists(ctx, "bot-x")
	if len(lists) != 1 {
		t.Errorf("expected new grant to be visible, got %d lists", len(lists))
	}
}

func TestGrant_Invalid(t *testing.T) {
	svc := New(&mockStore{}, nil)
	err := svc.Grant(context.Background(), "", "list-1")
	if !errors.Is(err, domain.ErrInvalidGrant) {
		t.Errorf("expected ErrInvalidGrant, got %v", err)
	}
	err = svc.Revoke(context.Background(), "bot-x", "")
	if !errors.Is(err, domain.ErrInvalidGrant) {
		t.Errorf("expected ErrInvalidGrant, got %v", err)
	}
}

func TestInvalidateAll_DiscardsInFlightFill(t *testing.T) {
	store := &mockStore{block: make(chan struct{})}
	store.set("bot-x", makeList(t, "doctors"))
	svc := New(store, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		lists, err := svc.AuthorizedLists(context.Background(), "bot-x")
		if err != nil || len(lists) != 1 {
			t.Errorf("in-flight caller must still get its result: %v, %v", lists, err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	svc.InvalidateAll()
	store.set("bot-x")
	close(store.block)
	<-done

	lists, err := svc.AuthorizedLists(context.Background(), "bot-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lists) != 0 {
		t.Errorf("stale fill was cached: %v", lists)
	}
}

func TestScope_IntersectsHint(t *testing.T) {
	store := &mockStore{}
	store.set("bot-x", makeList(t, "doctors"), makeList(t, "nurses"))
	svc := New(store, nil)

	sc, err := svc.Scope(context.Background(), "bot-x", []string{"nurses", "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Len() != 1 || sc.Lists()[0].Name() != "nurses" {
		t.Errorf("unexpected scope: %v", sc.Lists())
	}
}

func TestAuthorizedLists_CancelledCallerDoesNotFailOthers(t *testing.T) {
	doctors := makeList(t, "doctors")
	store := &mockStore{block: make(chan struct{})}
	store.set("agent-x", doctors)
	svc := New(store, nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.AuthorizedLists(ctxA, "agent-x")
		errA <- err
	}()
	for store.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type out struct {
		lists []catalog.List
		err   error
	}
	resB := make(chan out, 1)
	go func() {
		lists, err := svc.AuthorizedLists(context.Background(), "agent-x")
		resB <- out{lists, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}

	close(store.block)
	b := <-resB
	if b.err != nil {
		t.Fatalf("other caller failed: %v", b.err)
	}
	if len(b.lists) != 1 || b.lists[0].Name() != "doctors" {
		t.Errorf("lists = %v", b.lists)
	}
}

func TestAuthorizedLists_FillTimeoutIsFatal(t *testing.T) {
	store := &mockStore{block: make(chan struct{})}
	defer close(store.block)
	svc := New(store, nil).WithFillTimeout(20 * time.Millisecond)

	_, err := svc.AuthorizedLists(context.Background(), "agent-x")
	if !errors.Is(err, domain.ErrFatal) {
		t.Errorf("expected ErrFatal, got %v", err)
	}
}
