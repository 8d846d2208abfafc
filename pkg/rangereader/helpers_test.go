package rangereader

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// testChunkSize keeps scenario math small.
const testChunkSize = 1024

// backendRequest records one request seen by the fake backend.
type backendRequest struct {
	method    string
	rangeHdr  string
	ifRange   string
	userAgent string
}

// fakeBackend is a scripted HTTP server with precise control over range
// handling, used to exercise the probe/fetch/prefetch paths.
type fakeBackend struct {
	mu   sync.Mutex
	data []byte
	etag string

	requests []backendRequest

	// failRanges makes the next N range GETs answer 503.
	failRanges int
	// ignoreRange makes range GETs answer 200 with the full body.
	ignoreRange bool
	// noAcceptRanges hides the Accept-Ranges header from HEAD.
	noAcceptRanges bool
	// noHead makes HEAD answer 405 so clients must fall back.
	noHead bool
	// hideLength drops Content-Length from HEAD responses.
	hideLength bool
	// gate, when non-nil, blocks range GETs matching gateRange until
	// closed.
	gate      chan struct{}
	gateRange string
}

func newFakeBackend(data []byte) *fakeBackend {
	return &fakeBackend{data: data, etag: `"v1"`}
}

func (b *fakeBackend) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(srv.Close)
	return srv
}

// setContent swaps the resource content and bumps the validator, as a
// server-side mutation would.
func (b *fakeBackend) setContent(data []byte, etag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = data
	b.etag = etag
}

func (b *fakeBackend) rangeRequests() []backendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backendRequest
	for _, r := range b.requests {
		if r.method == http.MethodGet && r.rangeHdr != "" {
			out = append(out, r)
		}
	}
	return out
}

func (b *fakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.requests = append(b.requests, backendRequest{
		method:    r.Method,
		rangeHdr:  r.Header.Get("Range"),
		ifRange:   r.Header.Get("If-Range"),
		userAgent: r.Header.Get("User-Agent"),
	})
	data := b.data
	etag := b.etag
	failing := false
	if r.Header.Get("Range") != "" && r.Method == http.MethodGet && b.failRanges > 0 {
		b.failRanges--
		failing = true
	}
	gate := b.gate
	gateRange := b.gateRange
	b.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodHead:
		if b.noHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !b.noAcceptRanges {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		w.Header().Set("ETag", etag)
		if !b.hideLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		}
		w.WriteHeader(http.StatusOK)
		return

	case http.MethodGet:
		rangeHdr := r.Header.Get("Range")
		if rangeHdr == "" || b.ignoreRange {
			w.Header().Set("ETag", etag)
			_, _ = w.Write(data)
			return
		}

		// If-Range: serve the full changed body when the validator no
		// longer matches.
		if ir := r.Header.Get("If-Range"); ir != "" && ir != etag {
			w.Header().Set("ETag", etag)
			_, _ = w.Write(data)
			return
		}

		if gate != nil && rangeHdr == gateRange {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		start, end, ok := parseRangeHeader(rangeHdr)
		if !ok || start >= int64(len(data)) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(data)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[start : end+1])
		return

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func parseRangeHeader(v string) (start, end int64, ok bool) {
	span, found := strings.CutPrefix(v, "bytes=")
	if !found {
		return 0, 0, false
	}
	startStr, endStr, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// testPattern builds deterministic, position-identifiable content.
func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + (i/7+i)%26)
	}
	return data
}

// fastConfig returns a Config with small timeouts and backoffs suitable
// for tests.
func fastConfig(url string) Config {
	return Config{
		URL:            url,
		ChunkSize:      testChunkSize,
		Timeout:        5 * time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}
