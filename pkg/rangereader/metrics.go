package rangereader

import (
	"time"
)

// ReaderMetrics provides observability for stream operations.
//
// Implementations can use this interface to collect metrics about network
// fetches, cache effectiveness and prefetch behavior. This is optional -
// when Config.Metrics is nil, collection is skipped entirely.
//
// Example implementations:
//   - Prometheus metrics (pkg/metrics/prometheus)
//   - In-memory counters for testing
type ReaderMetrics interface {
	// ObserveOperation records a network operation ("probe", "fetch" or
	// "prefetch") with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes received by an operation.
	RecordBytes(operation string, bytes int64)

	// RecordChunkSource records where a needed chunk was resolved from:
	// "prefetch", "cache" or "fetch".
	RecordChunkSource(source string)

	// RecordPrefetch records a prefetch slot transition: "scheduled",
	// "superseded", "stale", "consumed" or "failed".
	RecordPrefetch(outcome string)
}
