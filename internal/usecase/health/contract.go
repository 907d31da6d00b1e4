package health

import (
	"context"

	"github.com/kailas-cloud/semdex/internal/index"
)

// DBPinger checks key-value store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexReporter reports the state of the built region indices.
type IndexReporter interface {
	Info() []index.Info
}
