package rangereader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/httprange/internal/logger"
)

// isRetryableError returns true if the error is transient and the fetch
// should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is never retryable
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Server errors worth another attempt
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	// Timeouts (including per-attempt deadline) are retryable
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Check error message for common connection failure patterns
	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "unexpected EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// backoffFor returns the backoff duration before retry number attempt.
func (r *Reader) backoffFor(attempt int) time.Duration {
	backoff := float64(r.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= r.backoffFactor
	}
	if backoff > float64(r.maxBackoff) {
		backoff = float64(r.maxBackoff)
	}
	return time.Duration(backoff)
}

// fetchRange performs a conditional range GET for the inclusive byte span
// [start, end], retrying transient failures with exponential backoff.
//
// The bool result reports a full-resource response: the server either
// ignored the range or failed the If-Range validation and sent the whole
// (possibly changed) resource as a 200. Callers must treat that body as an
// authoritative snapshot. A 416 yields empty bytes and no error; it
// signals end-of-stream, not a failure.
//
// fetchRange only touches fields that are immutable after initialization,
// so the prefetch goroutine can run it concurrently with a foreground
// fetch.
func (r *Reader) fetchRange(ctx context.Context, operation string, start, end int64) (data []byte, full bool, err error) {
	began := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveOperation(operation, time.Since(began), err)
			if err == nil {
				r.metrics.RecordBytes(operation, int64(len(data)))
			}
		}
	}()

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= int(r.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := r.backoffFor(attempt - 1)
			r.log.Debug("range fetch: retrying",
				logger.KeyBackoff, backoff,
				logger.KeyAttempt, attempt,
				logger.KeyChunkStart, start)

			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attempts++
		data, full, lastErr = r.rangeOnce(ctx, start, end)
		if lastErr == nil {
			return data, full, nil
		}

		if !isRetryableError(lastErr) {
			break
		}

		r.log.Debug("range fetch: transient error",
			logger.KeyAttempt, attempt+1,
			logger.KeyChunkStart, start,
			logger.KeyError, lastErr)
	}

	status := 0
	var se *statusError
	if errors.As(lastErr, &se) {
		status = se.code
	}

	return nil, false, &TransferError{Status: status, Attempts: attempts, Err: lastErr}
}

// rangeOnce issues a single range GET and interprets the response status.
func (r *Reader) rangeOnce(ctx context.Context, start, end int64) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	if r.validator != "" {
		req.Header.Set("If-Range", r.validator)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		// End-of-stream signal, not an error.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil

	case http.StatusPartialContent:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return body, false, nil

	case http.StatusOK:
		// Range ignored: full-resource snapshot.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return body, true, nil

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, &statusError{code: resp.StatusCode}
	}
}
