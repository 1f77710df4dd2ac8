package db

// TagFilter restricts a TAG field to any of the given values.
type TagFilter struct {
	Field  string
	Values []string
}

// KNNQuery is the input for vector similarity search.
// All tag filters must hold; values within one filter are alternatives.
type KNNQuery struct {
	IndexName    string
	TagFilters   []TagFilter
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit from a search. Score is a cosine similarity.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
