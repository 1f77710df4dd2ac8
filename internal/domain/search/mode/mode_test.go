package mode

import "testing"

func TestIsValid(t *testing.T) {
	valid := []Mode{Hybrid, StructuredOnly}
	for _, m := range valid {
		if !m.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", m)
		}
	}

	invalid := []Mode{"", "semantic", "keyword", "HYBRID"}
	for _, m := range invalid {
		if m.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", m)
		}
	}
}

func TestConstants(t *testing.T) {
	if Hybrid != "hybrid" {
		t.Errorf("Hybrid = %q", Hybrid)
	}
	if StructuredOnly != "structured_only" {
		t.Errorf("StructuredOnly = %q", StructuredOnly)
	}
}
