package semantic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	domsem "github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// --- Mocks ---

type mockIndex struct {
	mu         sync.Mutex
	entries    map[string]domsem.Entry
	matches    []domsem.Match
	lastQuery  domsem.Query
	queryErr   error
	upsertErr  error
	vectors    bool
	upserts    int
	queryCalls int
}

func newMockIndex() *mockIndex {
	return &mockIndex{entries: make(map[string]domsem.Entry), vectors: true}
}

func (m *mockIndex) Get(_ context.Context, ids []string) (map[string]domrec.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domrec.Embedding)
	for _, id := range ids {
		if e, ok := m.entries[id]; ok {
			out[id] = e.Meta
		}
	}
	return out, nil
}

func (m *mockIndex) Upsert(_ context.Context, e domsem.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.entries[e.Meta.RecordID()] = e
	return nil
}

func (m *mockIndex) Delete(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *mockIndex) Query(_ context.Context, q domsem.Query) ([]domsem.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	m.lastQuery = q
	return m.matches, m.queryErr
}

func (m *mockIndex) Ping(context.Context) error { return nil }

func (m *mockIndex) NeedsVectors() bool { return m.vectors }

func (m *mockIndex) entry(id string) (domsem.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}

type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts = append(m.texts, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}}, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecords struct {
	mu      sync.Mutex
	records map[string]domrec.Record
	order   []string
	getErr  error
}

func newMockRecords(recs ...domrec.Record) *mockRecords {
	m := &mockRecords{records: make(map[string]domrec.Record)}
	for _, r := range recs {
		m.put(r)
	}
	return m
}

func (m *mockRecords) put(r domrec.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID()]; !ok {
		m.order = append(m.order, r.ID())
	}
	m.records[r.ID()] = r
}

func (m *mockRecords) Get(_ context.Context, id string) (domrec.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domrec.Record{}, m.getErr
	}
	r, ok := m.records[id]
	if !ok {
		return domrec.Record{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *mockRecords) Page(_ context.Context, listID string, after int64, limit int) ([]domrec.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domrec.Record
	for _, id := range m.order {
		r := m.records[id]
		if r.Seq() <= after || (listID != "" && r.ListID() != listID) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockLists struct {
	lists map[string]domcat.List
}

func (m *mockLists) GetListByID(_ context.Context, id string) (domcat.List, error) {
	l, ok := m.lists[id]
	if !ok {
		return domcat.List{}, domain.ErrNotFound
	}
	return l, nil
}

type mockOutbox struct {
	mu     sync.Mutex
	tasks  map[string]domsem.Task
	failed map[string]int
	putErr error
}

func newMockOutbox() *mockOutbox {
	return &mockOutbox{tasks: make(map[string]domsem.Task), failed: make(map[string]int)}
}

func (m *mockOutbox) Put(_ context.Context, t domsem.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.failed[t.RecordID] = t.Attempts
	m.tasks[t.RecordID] = t
	return nil
}

func (m *mockOutbox) Ack(_ context.Context, id, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.Fingerprint == fp {
		delete(m.tasks, id)
	}
	return nil
}

func (m *mockOutbox) MarkFailed(_ context.Context, id, fp string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.Fingerprint == fp {
		m.failed[id]++
		return m.failed[id], nil
	}
	return 0, nil
}

func (m *mockOutbox) Pending(_ context.Context, limit int) ([]domsem.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domsem.Task
	for _, t := range m.tasks {
		if limit > 0 && len(out) >= limit {
			break
		}
		t.Attempts = m.failed[t.RecordID]
		out = append(out, t)
	}
	return out, nil
}

func (m *mockOutbox) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks), nil
}

func (m *mockOutbox) failures(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed[id]
}

func (m *mockOutbox) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

var errDown = errors.New("connection refused")

// --- Fixtures ---

func makeList(t *testing.T, name string) domcat.List {
	t.Helper()
	specialty, _ := field.New("specialty", field.Payload, field.Options{Semantic: true})
	l, err := domcat.New("acc", name, "doctor", []field.Field{specialty})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return l
}

func makeRecord(l domcat.List, id, name, fingerprint string, seq int64) domrec.Record {
	now := time.Now().UTC()
	return domrec.Reconstruct(id, l.ID(), "ext-"+id, name, domrec.Active, nil,
		map[string]any{"specialty": "cardiology"}, fingerprint, seq, now, now)
}

func withStatus(r domrec.Record, status domrec.Status) domrec.Record {
	return domrec.Reconstruct(r.ID(), r.ListID(), r.ExternalID(), r.Name(), status, r.Tags(),
		r.Payload(), r.Fingerprint()+"-"+string(status), r.Seq(), r.CreatedAt(), r.UpdatedAt())
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func entryFor(r domrec.Record) domsem.Entry {
	return domsem.Entry{Meta: domrec.NextEmbedding(r, nil, time.Now()), Vector: []float32{1, 0}, Content: r.Name()}
}

func taskFor(recordID, fingerprint string) domsem.Task {
	return domsem.Task{RecordID: recordID, Fingerprint: fingerprint, EnqueuedAt: time.Now()}
}
