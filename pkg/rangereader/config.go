package rangereader

import (
	"net/http"
	"time"

	"github.com/marmos91/httprange/internal/bytesize"
)

// Default configuration values applied by New when the corresponding
// Config field is zero.
const (
	DefaultChunkSize      = bytesize.MiB
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultBackoffFactor  = 2.0
	DefaultUserAgent      = "httprange/2.0"
)

// Config contains configuration for a Reader.
type Config struct {
	// URL of the remote resource. Required.
	URL string

	// ChunkSize is the fetch and cache granularity. Accepts human-readable
	// values when unmarshaled from text ("1Mi", "512Ki"). Default: 1Mi.
	ChunkSize bytesize.ByteSize

	// Timeout applies per HTTP request (probe, fetch and prefetch alike).
	// Default: 10s.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts for transient fetch
	// errors (connect/read failures, 500/502/503/504). Default: 3.
	// Set MaxRetries to 0 together with DisableRetries to opt out.
	MaxRetries uint

	// DisableRetries turns the retry policy off entirely.
	DisableRetries bool

	// InitialBackoff is the backoff before the first retry (default 100ms).
	// Subsequent retries use exponential backoff up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff between retries. Default: 2s.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential backoff multiplier. Default: 2.0.
	// Each retry waits min(InitialBackoff * BackoffFactor^attempt, MaxBackoff).
	BackoffFactor float64

	// UserAgent is the identifying header value sent with every request.
	// Default: "httprange/2.0".
	UserAgent string

	// DisablePrefetch turns off speculative fetching of the next chunk.
	// Every cache miss then blocks on a synchronous fetch.
	DisablePrefetch bool

	// Client is an optional externally supplied HTTP transport. When
	// provided its lifecycle is not owned by the Reader: Close leaves it
	// untouched. When nil the Reader creates and owns its own client.
	Client *http.Client

	// Metrics is an optional metrics collector. Nil disables collection
	// with zero overhead.
	Metrics ReaderMetrics
}

// withDefaults returns a copy of cfg with zero fields replaced by the
// package defaults.
func (cfg Config) withDefaults() Config {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 && !cfg.DisableRetries {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DisableRetries {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return cfg
}
