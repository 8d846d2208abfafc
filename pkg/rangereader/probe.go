package rangereader

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/httprange/internal/logger"
)

// probe determines the total resource size and whether the server supports
// byte ranges, capturing the validation token (ETag or Last-Modified) that
// later fetches attach as an If-Range header.
//
// It issues a HEAD first. When that leaves the size unknown or range
// support unconfirmed, it falls back to a conditional GET for bytes 0-0:
// a 206 confirms range support and reveals the total via Content-Range; a
// 200 means ranges are unsupported, in which case the full body doubles as
// the one and only resident chunk. Anything else is fatal.
func (r *Reader) probe(ctx context.Context) (err error) {
	began := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveOperation("probe", time.Since(began), err)
		}
	}()

	resp, err := r.doProbe(ctx, http.MethodHead, "")
	if err != nil {
		return &InitError{URL: r.url, Reason: "HEAD request failed", Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &InitError{URL: r.url, Reason: "HEAD request failed", Err: &statusError{code: resp.StatusCode}}
	}

	if resp.ContentLength > 0 {
		r.size = resp.ContentLength
	}
	r.supportsRanges = strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")

	if et := resp.Header.Get("ETag"); et != "" {
		r.validator = et
	} else if lm := resp.Header.Get("Last-Modified"); lm != "" {
		r.validator = lm
	}

	if r.size <= 0 || !r.supportsRanges {
		if err := r.probeRange(ctx); err != nil {
			return err
		}
	}

	if r.size <= 0 {
		return &InitError{URL: r.url, Reason: "unable to determine remote size"}
	}
	if !r.supportsRanges && r.windowEnd == 0 {
		return &InitError{URL: r.url, Reason: "server does not support HTTP byte ranges"}
	}

	r.log.Debug("probe complete",
		logger.KeySize, r.size,
		"supports_ranges", r.supportsRanges,
		"validator", r.validator != "")
	return nil
}

// probeRange resolves size and range support with a GET for bytes 0-0.
func (r *Reader) probeRange(ctx context.Context) error {
	resp, err := r.doProbe(ctx, http.MethodGet, "bytes=0-0")
	if err != nil {
		return &InitError{URL: r.url, Reason: "probe request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			r.size = total
		}
		r.supportsRanges = true
		return nil

	case http.StatusOK:
		// Ranges unsupported: the full body is the only chunk we will
		// ever have.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &InitError{URL: r.url, Reason: "failed to read full body", Err: err}
		}
		r.supportsRanges = false
		r.size = int64(len(body))
		r.installWindow(0, body)
		return nil

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &InitError{URL: r.url, Reason: "probe request failed", Err: &statusError{code: resp.StatusCode}}
	}
}

// doProbe performs one probe request with the same retry policy as range
// fetches.
func (r *Reader) doProbe(ctx context.Context, method, rangeHeader string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= int(r.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := r.backoffFor(attempt - 1)
			r.log.Debug("probe: retrying",
				logger.KeyBackoff, backoff,
				logger.KeyAttempt, attempt)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := r.probeOnce(ctx, method, rangeHeader)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(lastErr) {
			break
		}

		r.log.Debug("probe: transient error",
			logger.KeyAttempt, attempt+1,
			logger.KeyError, lastErr)
	}

	return nil, lastErr
}

// probeOnce issues a single probe request. Responses with a retryable
// error status are converted to errors so the retry loop can act on them;
// everything else is returned to the caller for interpretation.
func (r *Reader) probeOnce(ctx context.Context, method, rangeHeader string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)

	req, err := http.NewRequestWithContext(ctx, method, r.url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", r.userAgent)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		cancel()
		return nil, &statusError{code: resp.StatusCode}
	}

	// The caller drains and closes the body, releasing the timeout with it.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser ties a context cancel to the response body lifetime.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// parseContentRangeTotal extracts the total length from a Content-Range
// header of the form "bytes 0-0/2600". An unknown total ("bytes 0-0/*")
// reports false.
func parseContentRangeTotal(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	_, totalStr, found := strings.Cut(v, "/")
	if !found || totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(totalStr), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
