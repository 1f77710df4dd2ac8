package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidSchema signals an invalid list schema definition.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrInvalidRecord signals a record that does not fit its list schema.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidGrant signals a malformed access grant.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrInvalidFilter signals an unknown filter field or a malformed filter value.
	// This is the only caller-correctable search error.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrUnscopedQuery signals a structured query without any list in scope.
	ErrUnscopedQuery = errors.New("unscoped query")
	// ErrUpstreamUnavailable signals that the semantic index or embedding provider is unreachable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrTimeout signals a deadline exceeded on the structured path.
	ErrTimeout = errors.New("timeout")
	// ErrFatal signals that the structured store is unreachable.
	ErrFatal = errors.New("store unavailable")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
