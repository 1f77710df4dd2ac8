package result

import (
	"github.com/kailas-cloud/dirsearch/internal/domain/catalog"
	"github.com/kailas-cloud/dirsearch/internal/domain/record"
	"github.com/kailas-cloud/dirsearch/internal/domain/search/mode"
)

// Hit is a single ranked record together with how it got its position.
type Hit struct {
	record        record.Record
	list          catalog.List
	position      int
	matchCount    int
	matchedFields []string
	similarity    float64
	scored        bool
}

// NewHit creates an unscored hit at its structured position.
func NewHit(rec record.Record, list catalog.List, position, matchCount int, matchedFields []string) Hit {
	return Hit{
		record:        rec,
		list:          list,
		position:      position,
		matchCount:    matchCount,
		matchedFields: matchedFields,
	}
}

// WithSimilarity returns a copy of the hit carrying a semantic score.
func (h Hit) WithSimilarity(similarity float64) Hit {
	h.similarity = similarity
	h.scored = true
	return h
}

// Record returns the matched record.
func (h *Hit) Record() record.Record { return h.record }

// List returns the list the record belongs to.
func (h *Hit) List() catalog.List { return h.list }

// Position returns the index in the structured ordering.
func (h *Hit) Position() int { return h.position }

// MatchCount returns the number of satisfied filter values.
func (h *Hit) MatchCount() int { return h.matchCount }

// MatchedFields returns the names of satisfied filters.
func (h *Hit) MatchedFields() []string { return h.matchedFields }

// Similarity returns the semantic score (0 when unscored).
func (h *Hit) Similarity() float64 { return h.similarity }

// Scored reports whether the semantic pass produced a score for this hit.
func (h *Hit) Scored() bool { return h.scored }

// Result is the ranked answer of one search call.
type Result struct {
	mode           mode.Mode
	hits           []Hit
	degradedReason string
	authorized     int
	scoped         int
}

// New creates a search result.
func New(m mode.Mode, hits []Hit, degradedReason string) Result {
	return Result{mode: m, hits: hits, degradedReason: degradedReason}
}

// Empty is the result of a call that matched nothing or had no scope.
func Empty() Result {
	return Result{mode: mode.StructuredOnly}
}

// Mode returns the ranking path that produced the result.
func (r *Result) Mode() mode.Mode { return r.mode }

// Hits returns the ranked hits.
func (r *Result) Hits() []Hit { return r.hits }

// Len returns the number of hits.
func (r *Result) Len() int { return len(r.hits) }

// DegradedReason explains why the semantic pass was skipped ("" when it was not).
func (r *Result) DegradedReason() string { return r.degradedReason }

// WithScopeSize returns a copy recording how many lists were granted and how many were searched.
func (r Result) WithScopeSize(authorized, scoped int) Result {
	r.authorized = authorized
	r.scoped = scoped
	return r
}

// AuthorizedLists returns the number of lists granted to the caller.
func (r *Result) AuthorizedLists() int { return r.authorized }

// ScopedLists returns the number of lists actually searched.
func (r *Result) ScopedLists() int { return r.scoped }
