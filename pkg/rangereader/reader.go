package rangereader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/httprange/internal/logger"
)

// Compile-time interface satisfaction checks
var (
	_ io.Reader         = (*Reader)(nil)
	_ io.Seeker         = (*Reader)(nil)
	_ io.ReadSeekCloser = (*Reader)(nil)
	_ io.ReaderAt       = (*Reader)(nil)
)

// Reader is a random-access byte stream over a remote HTTP resource.
//
// It resolves each read against a "current window" (the chunk covering the
// cursor), falling back in order to a completed speculative prefetch, the
// two-slot chunk cache, and finally a synchronous range fetch. After every
// chunk install it schedules a prefetch of the following chunk.
//
// A Reader serves one logical consumer at a time. Its methods serialize on
// an internal lock, so interleaved calls will not corrupt state, but the
// single position cursor makes concurrent use by independent readers
// meaningless; use ReadAt from the one consumer that needs stateless
// positioned reads (archive/zip does).
type Reader struct {
	url        string
	client     *http.Client
	ownsClient bool
	log        *slog.Logger
	metrics    ReaderMetrics

	chunkSize      int64
	timeout        time.Duration
	maxRetries     uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffFactor  float64
	userAgent      string

	// Set once by probe, read-only afterwards.
	supportsRanges bool
	validator      string

	// lifetime context for fetches; cancelled on Close
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	pos    int64
	size   int64 // revised upward only, by an unexpected full-body 200

	window      []byte
	windowStart int64
	windowEnd   int64

	cache    *chunkCache
	prefetch *prefetcher // nil when prefetching is disabled
}

// New opens a remote resource as a random-access stream.
//
// The context applies to the initial metadata probe only; the returned
// Reader uses its own lifetime context afterwards, released by Close.
// Construction fails with an InitError when the resource size cannot be
// determined or the server does not support byte ranges (and no fallback
// full body was captured).
func New(ctx context.Context, cfg Config) (*Reader, error) {
	if cfg.URL == "" {
		return nil, &InitError{Reason: "url is required"}
	}
	cfg = cfg.withDefaults()
	if cfg.ChunkSize.Int64() <= 0 {
		return nil, &InitError{URL: cfg.URL, Reason: "chunk size must be > 0"}
	}

	client := cfg.Client
	ownsClient := false
	if client == nil {
		client = &http.Client{}
		ownsClient = true
	}

	id := uuid.NewString()[:8]
	lifetime, cancel := context.WithCancel(context.Background())

	r := &Reader{
		url:            cfg.URL,
		client:         client,
		ownsClient:     ownsClient,
		log:            logger.With(logger.KeyStream, id, logger.KeyURL, cfg.URL),
		metrics:        cfg.Metrics,
		chunkSize:      cfg.ChunkSize.Int64(),
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		backoffFactor:  cfg.BackoffFactor,
		userAgent:      cfg.UserAgent,
		ctx:            lifetime,
		cancel:         cancel,
		cache:          newChunkCache(),
	}

	if err := r.probe(ctx); err != nil {
		cancel()
		if ownsClient {
			client.CloseIdleConnections()
		}
		return nil, err
	}

	if !cfg.DisablePrefetch && r.supportsRanges {
		r.prefetch = newPrefetcher(lifetime, r.fetchRange, r.log, cfg.Metrics)
	}

	r.log.Info("stream opened",
		logger.KeySize, r.size,
		"chunk_size", cfg.ChunkSize.String(),
		"supports_ranges", r.supportsRanges,
		"prefetch", r.prefetch != nil)
	return r, nil
}

// Read reads up to len(p) bytes from the current position, advancing it by
// the number of bytes read. It returns fewer than len(p) bytes only at
// end-of-stream, and (0, io.EOF) once the position reaches the resource
// size. A TransferError is returned when a needed chunk cannot be fetched.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked(p)
}

func (r *Reader) readLocked(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos >= r.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && r.pos < r.size {
		if !r.windowCovers(r.pos) {
			if err := r.fetchWindow(r.pos); err != nil {
				return n, err
			}
			if !r.windowCovers(r.pos) {
				// Empty fetch result: the stream ends earlier than the
				// recorded size claims.
				break
			}
		}
		c := copy(p[n:], r.window[r.pos-r.windowStart:])
		n += c
		r.pos += int64(c)
	}

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Seek sets the position for the next Read. Offsets outside [0, Size()]
// clamp silently to that interval; only an invalid whence is an error.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.pos + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("rangereader: invalid whence %d", whence)
	}

	if abs < 0 {
		abs = 0
	} else if abs > r.size {
		abs = r.size
	}
	r.pos = abs
	return abs, nil
}

// ReadAt reads len(p) bytes starting at offset off without moving the
// cursor. It serializes against Read and Seek on the Reader's lock and
// follows io.ReaderAt semantics: n < len(p) always comes with an error.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("rangereader: negative offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	saved := r.pos
	r.pos = off
	n, err := r.readLocked(p)
	r.pos = saved

	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Tell returns the current position. Equivalent to Seek(0, io.SeekCurrent).
func (r *Reader) Tell() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Size returns the total resource length in bytes.
func (r *Reader) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Close cancels any in-flight prefetch, waits for the background worker to
// exit, and releases the HTTP transport when the Reader owns it. It is
// idempotent and never fails.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	r.cancel()
	if r.prefetch != nil {
		r.prefetch.close()
	}
	if r.ownsClient {
		r.client.CloseIdleConnections()
	}

	r.window = nil
	r.cache.clear()
	r.log.Debug("stream closed")
	return nil
}

func (r *Reader) windowCovers(pos int64) bool {
	return r.windowStart <= pos && pos < r.windowEnd
}

// chunkBounds returns the inclusive byte span of the aligned chunk
// containing pos. The final chunk is shorter when size is not a multiple
// of the chunk size.
func (r *Reader) chunkBounds(pos int64) (start, end int64) {
	start = pos / r.chunkSize * r.chunkSize
	end = start + r.chunkSize - 1
	if last := r.size - 1; end > last {
		end = last
	}
	return start, end
}

// fetchWindow makes the chunk containing pos the current window,
// resolving it from (in order) a completed prefetch, the chunk cache, or
// a synchronous range fetch.
func (r *Reader) fetchWindow(pos int64) error {
	start, end := r.chunkBounds(pos)

	if r.prefetch != nil {
		if data, ok := r.prefetch.tryConsume(start); ok {
			r.recordChunkSource("prefetch")
			r.installWindow(start, data)
			r.scheduleNext()
			return nil
		}
	}

	if data, ok := r.cache.lookup(start); ok {
		r.recordChunkSource("cache")
		r.installWindow(start, data)
		r.scheduleNext()
		return nil
	}

	data, full, err := r.fetchRange(r.ctx, "fetch", start, end)
	if err != nil {
		return err
	}
	r.recordChunkSource("fetch")

	if full {
		return r.adoptSnapshot(data)
	}

	if len(data) == 0 {
		// End-of-stream: institute an empty window at size so trailing
		// reads short-circuit instead of refetching.
		r.installWindow(r.size, nil)
		return nil
	}

	r.installWindow(start, data)
	r.scheduleNext()
	return nil
}

// adoptSnapshot handles a full-resource 200 response to a range request:
// the server either ignored the range or the If-Range validation failed
// because the content changed. The body becomes the authoritative
// snapshot; the recorded size is revised upward if the body is longer, and
// both cache slots are dropped so stale pre-change chunks cannot be
// served.
func (r *Reader) adoptSnapshot(data []byte) error {
	if n := int64(len(data)); n > r.size {
		r.log.Warn("full-body response revised resource size",
			logger.KeySize, n, "previous_size", r.size)
		r.size = n
	}
	r.cache.clear()
	r.installWindow(0, data)
	return nil
}

// installWindow designates [start, start+len(data)) as the current window
// and installs the chunk as most-recently-used.
func (r *Reader) installWindow(start int64, data []byte) {
	r.window = data
	r.windowStart = start
	r.windowEnd = start + int64(len(data))
	r.cache.install(start, data)
}

// scheduleNext asks the prefetcher to warm the chunk following the
// current window, if one exists within bounds.
func (r *Reader) scheduleNext() {
	if r.prefetch == nil || r.windowEnd >= r.size {
		return
	}
	start, end := r.chunkBounds(r.windowEnd)
	if start >= r.size {
		return
	}
	r.prefetch.schedule(start, end)
}

func (r *Reader) recordChunkSource(source string) {
	if r.metrics != nil {
		r.metrics.RecordChunkSource(source)
	}
}
