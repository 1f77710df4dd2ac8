package semantic

import (
	"math"
	"time"

	"github.com/kailas-cloud/dirsearch/internal/domain/record"
)

// Entry is what a semantic index stores for one record.
// Vector backends use Vector; the lexical backend indexes Content.
type Entry struct {
	Meta    record.Embedding
	Vector  []float32
	Content string
}

// Query asks an index to score a bounded set of records.
// The index must not return records outside both RecordIDs and ListIDs.
type Query struct {
	Text      string
	Vector    []float32
	ListIDs   []string
	RecordIDs []string
}

// Match is one scored record as stored in the index.
// Fingerprint is the fingerprint the stored vector was built from.
type Match struct {
	RecordID    string
	Fingerprint string
	Similarity  float64
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors (0 when undefined).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Task asks the synchronizer to bring one record's embedding up to date.
type Task struct {
	RecordID    string
	Fingerprint string
	Attempts    int
	EnqueuedAt  time.Time
}

// Score is the semantic verdict for one structured candidate.
// Unscored candidates (missing or stale embedding) keep their structured position.
type Score struct {
	RecordID   string
	Similarity float64
	Scored     bool
}
