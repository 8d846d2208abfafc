package rangereader

import (
	"context"
	"log/slog"

	"github.com/marmos91/httprange/internal/logger"
)

// rangeFetchFunc performs one ranged fetch. The bool result reports that
// the server ignored the range and returned the full resource.
type rangeFetchFunc func(ctx context.Context, operation string, start, end int64) ([]byte, bool, error)

// prefetchTask is one in-flight or completed speculative fetch. The
// goroutine running it is the only writer of data/err until done closes.
type prefetchTask struct {
	start  int64
	end    int64
	cancel context.CancelFunc
	done   chan struct{}

	data []byte
	full bool
	err  error
}

// prefetcher manages at most one speculative fetch of the chunk expected
// next. A new target supersedes and cancels a pending fetch for a
// different offset; results for offsets the cursor already left are
// discarded on consumption. Cancellation is best-effort: a superseded
// network call may still complete, producing a result nobody reads.
//
// Fetch errors are swallowed here. A failed speculative fetch degrades to
// a synchronous fetch when the offset is actually needed.
type prefetcher struct {
	ctx     context.Context
	fetch   rangeFetchFunc
	log     *slog.Logger
	metrics ReaderMetrics

	pending *prefetchTask
}

func newPrefetcher(ctx context.Context, fetch rangeFetchFunc, log *slog.Logger, metrics ReaderMetrics) *prefetcher {
	return &prefetcher{
		ctx:     ctx,
		fetch:   fetch,
		log:     log,
		metrics: metrics,
	}
}

// schedule launches a speculative fetch for the chunk [start, end]. A
// pending task already targeting start is left alone; a pending task for
// any other offset is cancelled and replaced.
//
// Like the cache, the prefetcher relies on the owning Reader's lock.
func (p *prefetcher) schedule(start, end int64) {
	if t := p.pending; t != nil {
		if t.start == start {
			return
		}
		select {
		case <-t.done:
			// completed result for an offset nobody asked about
			t.cancel()
			p.recordOutcome("stale")
		default:
			t.cancel()
			p.recordOutcome("superseded")
			p.log.Debug("prefetch superseded",
				logger.KeyChunkStart, t.start, "new_chunk_start", start)
		}
		p.pending = nil
	}

	ctx, cancel := context.WithCancel(p.ctx)
	t := &prefetchTask{
		start:  start,
		end:    end,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.pending = t
	p.recordOutcome("scheduled")

	go func() {
		defer close(t.done)
		t.data, t.full, t.err = p.fetch(ctx, "prefetch", t.start, t.end)
	}()
}

// tryConsume hands over the completed prefetch result for the chunk at
// start, if there is one. A completed result for any other offset is
// discarded; an in-flight task is left pending regardless of target (the
// next schedule call will supersede it if the cursor diverged).
func (p *prefetcher) tryConsume(start int64) ([]byte, bool) {
	t := p.pending
	if t == nil {
		return nil, false
	}

	select {
	case <-t.done:
	default:
		return nil, false
	}
	p.pending = nil
	t.cancel()

	if t.err != nil {
		p.recordOutcome("failed")
		p.log.Debug("prefetch failed, falling back to synchronous fetch",
			logger.KeyChunkStart, t.start, logger.KeyError, t.err)
		return nil, false
	}
	if t.full || t.start != start {
		// Full-body responses carry changed content and are only handled
		// on the synchronous path; mismatched offsets mean the cursor
		// jumped away before the prefetch landed.
		p.recordOutcome("stale")
		return nil, false
	}

	p.recordOutcome("consumed")
	return t.data, true
}

// close cancels any in-flight task and waits for its goroutine to exit.
func (p *prefetcher) close() {
	t := p.pending
	p.pending = nil
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (p *prefetcher) recordOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.RecordPrefetch(outcome)
	}
}
