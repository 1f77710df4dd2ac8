package scope

import (
	"testing"

	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
)

func mustList(t *testing.T, name string) catalog.List {
	t.Helper()
	l, err := catalog.New("acc", name, "doctor", nil)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return l
}

func TestIntersect(t *testing.T) {
	doctors := mustList(t, "doctors")
	nurses := mustList(t, "nurses")
	authorized := []catalog.List{doctors, nurses}

	tests := []struct {
		name string
		hint []string
		want []string
	}{
		{"empty hint keeps all", nil, []string{doctors.ID(), nurses.ID()}},
		{"hint narrows", []string{"nurses"}, []string{nurses.ID()}},
		{"unauthorized hint dropped", []string{"billing", "doctors"}, []string{doctors.ID()}},
		{"only unauthorized hints", []string{"billing"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Intersect(authorized, tt.hint)
			got := s.ListIDs()
			if len(got) != len(tt.want) {
				t.Fatalf("ListIDs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ListIDs()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
			if s.IsEmpty() != (len(tt.want) == 0) {
				t.Errorf("IsEmpty() = %v", s.IsEmpty())
			}
		})
	}
}

func TestIntersect_NoAuthorizedLists(t *testing.T) {
	if s := Intersect(nil, []string{"doctors"}); !s.IsEmpty() {
		t.Error("hint must never widen an empty authorization")
	}
}

func TestNew_DeduplicatesAndLooksUp(t *testing.T) {
	doctors := mustList(t, "doctors")
	s := New([]catalog.List{doctors, doctors})
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if !s.Contains(doctors.ID()) || s.Contains("other") {
		t.Error("Contains() mismatch")
	}
	if l, ok := s.List(doctors.ID()); !ok || l.Name() != "doctors" {
		t.Error("List() lookup failed")
	}
}
