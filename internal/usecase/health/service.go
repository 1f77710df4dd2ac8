package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the semantic path is down; structured search still works.
	Degraded Status = "degraded"
	// Unhealthy indicates the catalog is unreachable; no search can be served.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	index     IndexPinger
	embedding EmbeddingChecker
}

// New creates a Service. index and embedding can be nil.
func New(db DBPinger, index IndexPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, index: index, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = result(s.db.Ping(ctx))
	if s.index != nil {
		checks["semantic_index"] = result(s.index.Ping(ctx))
	}
	if s.embedding != nil {
		checks["embedding"] = result(s.embedding.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
