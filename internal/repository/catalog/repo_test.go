package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/dirsearch/internal/domain"
	"github.com/kailas-cloud/dirsearch/internal/domain/account"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog/field"
)

func TestAccount_CreateGet(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	a := mustAccount(t, r, "acme")

	got, err := r.GetAccount(ctx, "acme")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.ID() != a.ID() || got.Name() != "acme" {
		t.Errorf("got %s/%s, want %s/acme", got.ID(), got.Name(), a.ID())
	}

	dup, _ := account.New("acme")
	if err := r.CreateAccount(ctx, dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate: expected ErrAlreadyExists, got %v", err)
	}

	if _, err := r.GetAccount(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing: expected ErrNotFound, got %v", err)
	}
}

func TestList_RoundTripsSchema(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	a := mustAccount(t, r, "acme")
	l := mustList(t, r, a.ID(), "doctors")

	got, err := r.GetList(ctx, a.ID(), "doctors")
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if got.ID() != l.ID() || got.RecordType() != "doctor" {
		t.Errorf("unexpected list: %s %s", got.ID(), got.RecordType())
	}
	if len(got.Fields()) != 3 {
		t.Fatalf("fields = %d, want 3", len(got.Fields()))
	}

	arr, ok := got.ArrayField()
	if !ok || arr.Name() != "languages" {
		t.Errorf("array field = %v, %v", arr.Name(), ok)
	}
	city, ok := got.FieldByName("city")
	if !ok || city.PathString() != "address.city" || city.Kind() != field.Payload {
		t.Errorf("city = %+v", city)
	}
	specialty, _ := got.FieldByName("specialty")
	if !specialty.Semantic() || !specialty.Display() {
		t.Error("specialty flags lost")
	}

	byID, err := r.GetListByID(ctx, l.ID())
	if err != nil || byID.Name() != "doctors" {
		t.Errorf("GetListByID = %v, %v", byID.Name(), err)
	}
}

func TestList_Duplicate(t *testing.T) {
	r, _ := newTestRepo(t)
	a := mustAccount(t, r, "acme")
	mustList(t, r, a.ID(), "doctors")

	dup, _ := catalog.New(a.ID(), "doctors", "doctor", nil)
	if err := r.CreateList(context.Background(), dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// same name under another account is fine
	b := mustAccount(t, r, "globex")
	mustList(t, r, b.ID(), "doctors")
}

func TestListLists(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	a := mustAccount(t, r, "acme")
	b := mustAccount(t, r, "globex")
	mustList(t, r, a.ID(), "nurses")
	mustList(t, r, a.ID(), "doctors")
	mustList(t, r, b.ID(), "staff")

	got, err := r.ListLists(ctx, a.ID())
	if err != nil {
		t.Fatalf("ListLists: %v", err)
	}
	if len(got) != 2 || got[0].Name() != "doctors" || got[1].Name() != "nurses" {
		t.Errorf("ListLists(acme) = %v", names(got))
	}

	all, err := r.ListLists(ctx, "")
	if err != nil {
		t.Fatalf("ListLists(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListLists(all) = %v", names(all))
	}
}

func TestDeleteList(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	a := mustAccount(t, r, "acme")
	l := mustList(t, r, a.ID(), "doctors")

	if err := r.DeleteList(ctx, l.ID()); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}
	if _, err := r.GetListByID(ctx, l.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("after delete: expected ErrNotFound, got %v", err)
	}
	if err := r.DeleteList(ctx, l.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func names(ls []catalog.List) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name()
	}
	return out
}
