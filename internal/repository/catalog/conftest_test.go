package catalog

import (
	"context"
	"testing"

	"github.com/kailas-cloud/dirsearch/internal/db/sqlstore"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
)

func newTestRepo(t *testing.T) (*Repo, *sqlstore.DB) {
	t.Helper()
	db, err := sqlstore.OpenMemoryForTest(context.Background())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), db
}

func mustAccount(t *testing.T, r *Repo, name string) account.Account {
	t.Helper()
	a, err := account.New(name)
	if err != nil {
		t.Fatalf("account.New: %v", err)
	}
	if err := r.CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return a
}

func doctorFields(t *testing.T) []field.Field {
	t.Helper()
	langs, err := field.New("languages", field.Array, field.Options{})
	if err != nil {
		t.Fatal(err)
	}
	specialty, err := field.New("specialty", field.Payload, field.Options{Semantic: true, Display: true})
	if err != nil {
		t.Fatal(err)
	}
	city, err := field.New("city", field.Payload, field.Options{Path: "address.city"})
	if err != nil {
		t.Fatal(err)
	}
	return []field.Field{langs, specialty, city}
}

func mustList(t *testing.T, r *Repo, accountID, name string) catalog.List {
	t.Helper()
	l, err := catalog.New(accountID, name, "doctor", doctorFields(t))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	if err := r.CreateList(context.Background(), l); err != nil {
		t.Fatalf("CreateList: %v", err)
	}
	return l
}
