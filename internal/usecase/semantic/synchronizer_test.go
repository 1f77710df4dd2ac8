package semantic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	domcat "github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
)

type syncFixture struct {
	sync    *Synchronizer
	index   *mockIndex
	embed   *mockEmbedder
	records *mockRecords
	outbox  *mockOutbox
	list    domcat.List
}

func newSyncFixture(t *testing.T, recs func(l domcat.List) []domrec.Record) *syncFixture {
	t.Helper()
	l := makeList(t, "doctors")
	f := &syncFixture{
		index:   newMockIndex(),
		embed:   &mockEmbedder{},
		records: newMockRecords(recs(l)...),
		outbox:  newMockOutbox(),
		list:    l,
	}
	s, err := NewSynchronizer(f.index, f.embed, f.records, &mockLists{lists: map[string]domcat.List{l.ID(): l}},
		f.outbox, SyncConfig{Workers: 2, MaxAttempts: 2, RetryBackoff: time.Millisecond, ReplayInterval: time.Hour}, nil)
	if err != nil {
		t.Fatalf("NewSynchronizer: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	f.sync = s
	return f
}

func TestNewSynchronizer_VectorsNeedEmbedder(t *testing.T) {
	_, err := NewSynchronizer(newMockIndex(), nil, newMockRecords(), &mockLists{}, newMockOutbox(), SyncConfig{}, nil)
	if err == nil {
		t.Fatal("expected error when a vector index has no embedder")
	}
}

func TestSync_IdempotentByFingerprint(t *testing.T) {
	var rec domrec.Record
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		rec = makeRecord(l, "a", "Dr. A", "v1", 1)
		return []domrec.Record{rec}
	})
	ctx := context.Background()

	first, err := f.sync.Sync(ctx, rec)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	second, err := f.sync.Sync(ctx, rec)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if first.Revision() != 1 || second.Revision() != 1 {
		t.Errorf("revisions = %d, %d, want 1, 1", first.Revision(), second.Revision())
	}
	if f.embed.callCount() != 1 || f.index.upserts != 1 {
		t.Errorf("embed calls = %d, upserts = %d, want 1, 1", f.embed.callCount(), f.index.upserts)
	}
	if !strings.HasPrefix(f.embed.texts[0], "Dr. A\nspecialty: cardiology") {
		t.Errorf("embedded content = %q", f.embed.texts[0])
	}
}

func TestSync_ChangedFingerprintBumpsRevision(t *testing.T) {
	var rec domrec.Record
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		rec = makeRecord(l, "a", "Dr. A", "v1", 1)
		return []domrec.Record{rec}
	})
	ctx := context.Background()

	if _, err := f.sync.Sync(ctx, rec); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	updated := makeRecord(f.list, "a", "Dr. A", "v2", 1)
	emb, err := f.sync.Sync(ctx, updated)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if emb.Revision() != 2 || emb.Fingerprint() != "v2" {
		t.Errorf("unexpected embedding: rev %d fp %s", emb.Revision(), emb.Fingerprint())
	}
}

func TestSync_EmbedFailure(t *testing.T) {
	var rec domrec.Record
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		rec = makeRecord(l, "a", "Dr. A", "v1", 1)
		return []domrec.Record{rec}
	})
	f.embed.err = errDown

	_, err := f.sync.Sync(context.Background(), rec)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if _, ok := f.index.entry("a"); ok {
		t.Error("nothing must be stored when embedding fails")
	}
}

func TestEnqueue_SyncsAndAcks(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{makeRecord(l, "a", "Dr. A", "v1", 1)}
	})
	f.sync.Start()

	if err := f.sync.Enqueue(context.Background(), "a", "v1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "outbox drained", func() bool { return f.outbox.size() == 0 })

	e, ok := f.index.entry("a")
	if !ok || e.Meta.Fingerprint() != "v1" {
		t.Errorf("expected embedding for v1, got %+v (found %v)", e.Meta, ok)
	}
}

func TestEnqueue_OutboxFailure(t *testing.T) {
	f := newSyncFixture(t, func(domcat.List) []domrec.Record { return nil })
	f.outbox.putErr = errDown
	if err := f.sync.Enqueue(context.Background(), "a", "v1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnqueue_AfterClose(t *testing.T) {
	f := newSyncFixture(t, func(domcat.List) []domrec.Record { return nil })
	_ = f.sync.Close()
	if err := f.sync.Enqueue(context.Background(), "a", "v1"); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestProcess_MissingRecordForgetsEmbedding(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record { return nil })
	_ = f.index.Upsert(context.Background(), entryFor(makeRecord(f.list, "gone", "G", "v1", 1)))
	f.sync.Start()

	if err := f.sync.Enqueue(context.Background(), "gone", "v1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "outbox drained", func() bool { return f.outbox.size() == 0 })
	if _, ok := f.index.entry("gone"); ok {
		t.Error("embedding of a missing record must be removed")
	}
}

func TestProcess_DeletedRecordForgetsEmbedding(t *testing.T) {
	var deleted domrec.Record
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		deleted = withStatus(makeRecord(l, "d", "D", "v1", 1), domrec.Deleted)
		return []domrec.Record{deleted}
	})
	_ = f.index.Upsert(context.Background(), entryFor(makeRecord(f.list, "d", "D", "v1", 1)))
	f.sync.Start()

	if err := f.sync.Enqueue(context.Background(), "d", deleted.Fingerprint()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "outbox drained", func() bool { return f.outbox.size() == 0 })
	if _, ok := f.index.entry("d"); ok {
		t.Error("embedding of a deleted record must be removed")
	}
}

func TestProcess_FailureLeavesTaskPending(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{makeRecord(l, "a", "Dr. A", "v1", 1)}
	})
	f.embed.err = errDown
	f.sync.Start()

	if err := f.sync.Enqueue(context.Background(), "a", "v1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "failure recorded", func() bool { return f.outbox.failures("a") >= 1 })
	if f.outbox.size() != 1 {
		t.Errorf("failed task must stay in the outbox, size = %d", f.outbox.size())
	}
	if got := f.embed.callCount(); got < 2 {
		t.Errorf("embed calls = %d, want at least 2 (bounded retry)", got)
	}
}

func TestReplay_ResubmitsPending(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{makeRecord(l, "a", "Dr. A", "v1", 1)}
	})
	// a task persisted before a restart
	_ = f.outbox.Put(context.Background(), taskFor("a", "v1"))

	f.sync.Start()
	waitFor(t, "replayed task drained", func() bool { return f.outbox.size() == 0 })
	if _, ok := f.index.entry("a"); !ok {
		t.Error("replayed task must be synced")
	}
}

func TestReplay_SkipsParkedTasks(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{
			makeRecord(l, "stuck", "S", "v1", 1),
			makeRecord(l, "retry", "R", "v1", 2),
		}
	})
	ctx := context.Background()
	_ = f.outbox.Put(ctx, taskFor("stuck", "v1"))
	_ = f.outbox.Put(ctx, taskFor("retry", "v1"))
	f.outbox.failed["stuck"] = f.sync.cfg.MaxRounds
	f.outbox.failed["retry"] = f.sync.cfg.MaxRounds - 1

	// not started: dispatched tasks stay on the queue
	f.sync.Replay(ctx)

	if got := len(f.sync.tasks); got != 1 {
		t.Fatalf("dispatched = %d, want 1", got)
	}
	if got := (<-f.sync.tasks).RecordID; got != "retry" {
		t.Errorf("dispatched %q, want retry", got)
	}
	if f.outbox.size() != 2 {
		t.Errorf("parked task must stay in the outbox, size = %d", f.outbox.size())
	}
}

func TestReplay_NewFingerprintRearmsParkedTask(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{makeRecord(l, "a", "Dr. A", "v2", 1)}
	})
	ctx := context.Background()
	_ = f.outbox.Put(ctx, taskFor("a", "v1"))
	f.outbox.failed["a"] = f.sync.cfg.MaxRounds

	f.sync.Start()
	if err := f.sync.Enqueue(ctx, "a", "v2"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, "re-armed task drained", func() bool { return f.outbox.size() == 0 })
	if _, ok := f.index.entry("a"); !ok {
		t.Error("re-armed task must be synced")
	}
}

func TestProcess_ParksAfterMaxRounds(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{makeRecord(l, "a", "Dr. A", "v1", 1)}
	})
	f.embed.err = errDown
	ctx := context.Background()
	_ = f.outbox.Put(ctx, taskFor("a", "v1"))
	f.outbox.failed["a"] = f.sync.cfg.MaxRounds - 1

	f.sync.Start()
	waitFor(t, "last round recorded", func() bool { return f.outbox.failures("a") >= f.sync.cfg.MaxRounds })
	calls := f.embed.callCount()

	f.sync.Replay(ctx)
	time.Sleep(50 * time.Millisecond)
	if got := f.embed.callCount(); got != calls {
		t.Errorf("parked task was retried: embed calls %d -> %d", calls, got)
	}
	if f.outbox.size() != 1 {
		t.Errorf("parked task must stay in the outbox, size = %d", f.outbox.size())
	}
}

func TestResync_EnqueuesMissingAndStale(t *testing.T) {
	f := newSyncFixture(t, func(l domcat.List) []domrec.Record {
		return []domrec.Record{
			makeRecord(l, "fresh", "F", "v1", 1),
			makeRecord(l, "stale", "S", "v2", 2),
			makeRecord(l, "missing", "M", "v1", 3),
		}
	})
	ctx := context.Background()
	_ = f.index.Upsert(ctx, entryFor(makeRecord(f.list, "fresh", "F", "v1", 1)))
	_ = f.index.Upsert(ctx, entryFor(makeRecord(f.list, "stale", "S", "v1", 2)))

	n, err := f.sync.Resync(ctx, f.list.ID())
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if n != 2 {
		t.Errorf("enqueued = %d, want 2", n)
	}
	if f.outbox.size() != 2 {
		t.Errorf("outbox size = %d, want 2", f.outbox.size())
	}
}

func TestForget(t *testing.T) {
	f := newSyncFixture(t, func(domcat.List) []domrec.Record { return nil })
	ctx := context.Background()
	_ = f.index.Upsert(ctx, entryFor(makeRecord(f.list, "a", "A", "v1", 1)))

	if err := f.sync.Forget(ctx, "a"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := f.index.entry("a"); ok {
		t.Error("embedding must be gone")
	}
	if err := f.sync.Forget(ctx); err != nil {
		t.Errorf("Forget without ids: %v", err)
	}
}
