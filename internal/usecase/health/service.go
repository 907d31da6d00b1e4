// Package health aggregates component readiness for the health endpoint.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
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
	// Regions maps each built region index to its paragraph count.
	Regions map[string]int
}

// Service coordinates health checks. The key-value store and the embedding
// provider are both optional: a file-backed deployment runs without Redis,
// and retrieval-only deployments ship pre-embedded patterns.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	indexes   IndexReporter
}

// New creates a Service. db and embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker, indexes IndexReporter) *Service {
	return &Service{db: db, embedding: embedding, indexes: indexes}
}

// Check runs health checks against all configured components. An empty index
// set marks the service degraded: the process is up but cannot answer
// retrieval requests.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
		} else {
			checks["database"] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	regions := make(map[string]int)
	if s.indexes != nil {
		for _, info := range s.indexes.Info() {
			regions[string(info.Region)] = info.Size
		}
	}
	if len(regions) > 0 {
		checks["index"] = CheckOK
	} else {
		checks["index"] = CheckError
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Regions: regions}
}
