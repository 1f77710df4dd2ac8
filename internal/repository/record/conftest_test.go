package record

import (
	"context"
	"testing"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
	domrec "github.com/kailas-cloud/dirsearch/internal/domain/record"
	catrepo "github.com/kailas-cloud/dirsearch/internal/repository/catalog"
)

func newTestRepo(t *testing.T) (*Repo, *catrepo.Repo) {
	t.Helper()
	db, err := sqlstore.OpenMemoryForTest(context.Background())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), catrepo.New(db)
}

func mustList(t *testing.T, cats *catrepo.Repo, name string) catalog.List {
	t.Helper()
	ctx := context.Background()
	a, err := cats.GetAccount(ctx, "acme")
	if err != nil {
		a, _ = account.New("acme")
		if err := cats.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}
	langs, _ := field.New("languages", field.Array, field.Options{})
	l, err := catalog.New(a.ID(), name, "doctor", []field.Field{langs})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	if err := cats.CreateList(ctx, l); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	return l
}

func mustRecord(t *testing.T, listID string, in domrec.Input) domrec.Record {
	t.Helper()
	r, err := domrec.New(listID, in)
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return r
}
