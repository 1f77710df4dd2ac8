package request

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/dirsearch/internal/domain/search/filter"
)

func TestNew_Normalizes(t *testing.T) {
	f, _ := filter.New(map[string][]string{"languages": {"Spanish"}})
	r, err := New("agent-x", "  heart specialist ", f, []string{"doctors", " doctors"}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Agent() != "agent-x" {
		t.Errorf("Agent() = %q", r.Agent())
	}
	if r.Query() != "heart specialist" || !r.HasQuery() {
		t.Errorf("Query() = %q", r.Query())
	}
	if len(r.ScopeHint()) != 1 {
		t.Errorf("ScopeHint() = %v, want deduplicated", r.ScopeHint())
	}
	if r.Limit() != 3 {
		t.Errorf("Limit() = %d", r.Limit())
	}
	if r.Filters().IsEmpty() {
		t.Error("filters lost")
	}
}

func TestNew_LimitBoundary(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{0, 0},
		{1, 1},
		{MaxLimit, MaxLimit},
		{MaxLimit + 100, MaxLimit},
	}
	for _, tt := range tests {
		r, err := New("a", "", filter.Set{}, nil, tt.in)
		if err != nil {
			t.Fatalf("limit %d: unexpected error: %v", tt.in, err)
		}
		if r.Limit() != tt.want {
			t.Errorf("limit %d: Limit() = %d, want %d", tt.in, r.Limit(), tt.want)
		}
	}
}

func TestNew_NoQuery(t *testing.T) {
	r, err := New("a", "   ", filter.Set{}, nil, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasQuery() {
		t.Error("blank query must not request a semantic pass")
	}
}

func TestNew_Invalid(t *testing.T) {
	hints := make([]string, MaxScopeHint+1)
	for i := range hints {
		hints[i] = strings.Repeat("h", i+1)
	}

	tests := []struct {
		name    string
		query   string
		hint    []string
		wantErr string
	}{
		{"long query", strings.Repeat("q", MaxQueryLength+1), nil, "query too long"},
		{"too many hints", "", hints, "too many scope hints"},
		{"empty hint", "", []string{""}, "must not be empty"},
		{"long hint", "", []string{strings.Repeat("h", 65)}, "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("a", tt.query, filter.Set{}, tt.hint, 5)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want %q", err, tt.wantErr)
			}
		})
	}
}
