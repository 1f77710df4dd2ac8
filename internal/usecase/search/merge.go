package search

import (
	"sort"

	"github.com/kailas-cloud/dirsearch/internal/domain/search/result"
	domsem "github.com/kailas-cloud/dirsearch/internal/domain/semantic"
)

// mergeScores re-ranks hits with their semantic scores.
// Unscored hits keep their structured slot. The slots held by scored hits are refilled, in slot
// order, by the scored hits sorted on match count desc, similarity desc, recency desc, position asc.
func mergeScores(hits []result.Hit, scores []domsem.Score) []result.Hit {
	byID := make(map[string]domsem.Score, len(scores))
	for _, s := range scores {
		byID[s.RecordID] = s
	}

	out := make([]result.Hit, len(hits))
	var (
		slots  []int
		scored []result.Hit
	)
	for i, h := range hits {
		s, ok := byID[h.Record().ID()]
		if !ok || !s.Scored {
			out[i] = h
			continue
		}
		slots = append(slots, i)
		scored = append(scored, h.WithSimilarity(s.Similarity))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := &scored[i], &scored[j]
		if a.MatchCount() != b.MatchCount() {
			return a.MatchCount() > b.MatchCount()
		}
		if a.Similarity() != b.Similarity() {
			return a.Similarity() > b.Similarity()
		}
		ra, rb := a.Record(), b.Record()
		if ra.Seq() != rb.Seq() {
			return ra.Seq() > rb.Seq()
		}
		return a.Position() < b.Position()
	})

	for i, slot := range slots {
		out[slot] = scored[i]
	}
	return out
}
