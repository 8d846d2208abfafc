package rangereader

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openReader opens a Reader against a fresh fake backend serving data.
// Prefetch is disabled unless the test opts in, so request counts stay
// deterministic.
func openReader(t *testing.T, data []byte, mutate func(*Config)) (*Reader, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend(data)
	srv := backend.server(t)

	cfg := fastConfig(srv.URL)
	cfg.DisablePrefetch = true
	if mutate != nil {
		mutate(&cfg)
	}

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, backend
}

func TestReader_SequentialFullRead(t *testing.T) {
	data := testPattern(10*testChunkSize + 137) // short final chunk
	r, _ := openReader(t, data, nil)

	var got bytes.Buffer
	buf := make([]byte, testChunkSize)
	for {
		n, err := r.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	assert.True(t, bytes.Equal(got.Bytes(), data), "sequential read must reproduce the resource byte-for-byte")
	assert.Equal(t, int64(len(data)), r.Tell())
}

func TestReader_SeekClamps(t *testing.T) {
	data := testPattern(10)
	r, _ := openReader(t, data, func(cfg *Config) { cfg.ChunkSize = 4 })

	pos, err := r.Seek(999999, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)
	assert.Equal(t, int64(10), r.Tell())

	pos, err = r.Seek(-5, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	assert.Equal(t, int64(0), r.Tell())

	_, err = r.Seek(2, io.SeekStart)
	require.NoError(t, err)
	pos, err = r.Seek(-100, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	pos, err = r.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	_, err = r.Seek(0, 42)
	assert.Error(t, err, "invalid whence must be rejected")
}

func TestReader_BackwardSeekServedFromCache(t *testing.T) {
	data := testPattern(2600)
	r, backend := openReader(t, data, nil)

	// Read 80 bytes past nothing, then cross the first chunk boundary.
	head := make([]byte, 1100)
	n, err := r.Read(head)
	require.NoError(t, err)
	require.Equal(t, 1100, n)
	require.True(t, bytes.Equal(head, data[:1100]))

	fetchesAfterForward := len(backend.rangeRequests())

	// Seek back into the previous chunk; both chunks are resident.
	_, err = r.Seek(-120, io.SeekCurrent)
	require.NoError(t, err)

	back := make([]byte, 40)
	n, err = r.Read(back)
	require.NoError(t, err)
	require.Equal(t, 40, n)
	assert.True(t, bytes.Equal(back, data[980:1020]), "backward read must match the original data")

	assert.Equal(t, fetchesAfterForward, len(backend.rangeRequests()),
		"backward seek within the two resident chunks must not refetch")
}

func TestReader_ShortBackwardSeekScenario(t *testing.T) {
	// Resource of 2600 bytes, chunk size 1024: read 80, seek back 10,
	// read 20; the result is the 20 bytes straddling the first read end.
	data := testPattern(2600)
	r, _ := openReader(t, data, nil)

	first := make([]byte, 80)
	n, err := r.Read(first)
	require.NoError(t, err)
	require.Equal(t, 80, n)

	mid := r.Tell() - 10
	_, err = r.Seek(mid, io.SeekStart)
	require.NoError(t, err)

	second := make([]byte, 20)
	n, err = r.Read(second)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	assert.True(t, bytes.Equal(second, data[mid:mid+20]))
}

func TestReader_ReadCountContract(t *testing.T) {
	data := testPattern(1000)
	r, _ := openReader(t, data, func(cfg *Config) { cfg.ChunkSize = 256 })

	// len(read(n)) == min(n, size-position) at several positions.
	for _, tc := range []struct {
		pos  int64
		n    int
		want int
	}{
		{0, 10, 10},
		{990, 100, 10},
		{512, 1000, 488},
		{1000, 10, 0},
	} {
		_, err := r.Seek(tc.pos, io.SeekStart)
		require.NoError(t, err)

		buf := make([]byte, tc.n)
		n, err := r.Read(buf)
		assert.Equal(t, tc.want, n, "read at pos %d", tc.pos)
		if tc.want == 0 {
			assert.ErrorIs(t, err, io.EOF)
		} else {
			require.NoError(t, err)
			assert.Equal(t, tc.pos+int64(tc.want), r.Tell())
		}
	}
}

func TestReader_ZeroLengthRead(t *testing.T) {
	data := testPattern(100)
	r, _ := openReader(t, data, nil)

	n, err := r.Read(nil)
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestReader_EndOfStream(t *testing.T) {
	data := testPattern(100)
	r, _ := openReader(t, data, nil)

	_, err := r.Seek(0, io.SeekEnd)
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := r.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)

	// Repeated trailing reads stay at EOF without error.
	n, err = r.Read(buf)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_SizeStableAcrossAccessPatterns(t *testing.T) {
	data := testPattern(5000)
	r, _ := openReader(t, data, nil)

	sizes := []int64{r.Size()}
	buf := make([]byte, 700)

	_, _ = r.Read(buf)
	sizes = append(sizes, r.Size())
	_, _ = r.Seek(4000, io.SeekStart)
	_, _ = r.Read(buf)
	sizes = append(sizes, r.Size())
	_, _ = r.Seek(0, io.SeekStart)
	_, _ = r.Read(buf)
	sizes = append(sizes, r.Size())

	for _, s := range sizes {
		assert.Equal(t, int64(5000), s)
	}
}

func TestReader_TransferErrorSurfacesOnRead(t *testing.T) {
	data := testPattern(4096)
	r, backend := openReader(t, data, func(cfg *Config) { cfg.MaxRetries = 1 })

	backend.failRanges = 10

	buf := make([]byte, 100)
	_, err := r.Read(buf)
	var te *TransferError
	require.ErrorAs(t, err, &te)

	// Once the backend recovers, the same read succeeds.
	backend.failRanges = 0
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.True(t, bytes.Equal(buf, data[:100]))
}

func TestReader_PrefetchWarmsNextChunk(t *testing.T) {
	data := testPattern(8 * testChunkSize)
	backend := newFakeBackend(data)
	srv := backend.server(t)

	cfg := fastConfig(srv.URL)
	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var got bytes.Buffer
	buf := make([]byte, 900) // unaligned read size crosses chunk bounds
	for {
		n, rerr := r.Read(buf)
		got.Write(buf[:n])
		if rerr == io.EOF {
			break
		}
		require.NoError(t, rerr)
	}
	assert.True(t, bytes.Equal(got.Bytes(), data))
}

func TestReader_SupersededPrefetchNotInstalled(t *testing.T) {
	data := testPattern(16 * testChunkSize)
	backend := newFakeBackend(data)
	backend.gate = make(chan struct{})
	backend.gateRange = "bytes=1024-2047" // hold the first prefetch target
	srv := backend.server(t)

	r, err := New(context.Background(), fastConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	// Install chunk 0; the prefetch for 1024 starts and blocks.
	buf := make([]byte, 80)
	_, err = r.Read(buf)
	require.NoError(t, err)

	// Jump away before the prefetch lands.
	_, err = r.Seek(9000, io.SeekStart)
	require.NoError(t, err)
	_, err = r.Read(buf)
	require.NoError(t, err)
	require.True(t, bytes.Equal(buf, data[9000:9080]))

	// Release the stale fetch and give its goroutine a moment to finish.
	close(backend.gate)
	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	_, resident := r.cache.lookup(1024)
	r.mu.Unlock()
	assert.False(t, resident, "superseded prefetch result must not reach the cache")
}

func TestReader_ReadAt(t *testing.T) {
	data := testPattern(3000)
	r, _ := openReader(t, data, nil)

	// Position is untouched by ReadAt.
	_, err := r.Seek(5, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := r.ReadAt(buf, 2000)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.True(t, bytes.Equal(buf, data[2000:2064]))
	assert.Equal(t, int64(5), r.Tell())

	// Short read at the tail comes with io.EOF per io.ReaderAt.
	n, err = r.ReadAt(buf, 2990)
	assert.Equal(t, 10, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = r.ReadAt(buf, 5000)
	assert.ErrorIs(t, err, io.EOF)

	_, err = r.ReadAt(buf, -1)
	assert.Error(t, err)
}

func TestReader_FullBodyResponseAdoptedAsSnapshot(t *testing.T) {
	data := testPattern(2600)
	r, backend := openReader(t, data, nil)

	head := make([]byte, 100)
	_, err := r.Read(head)
	require.NoError(t, err)

	// The resource changes server-side; If-Range stops matching and the
	// next range request answers 200 with the new, longer body.
	grown := testPattern(4000)
	backend.setContent(grown, `"v2"`)

	_, err = r.Seek(2048, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 128)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 128, n)
	assert.True(t, bytes.Equal(buf, grown[2048:2176]), "read must serve the post-change snapshot")
	assert.Equal(t, int64(4000), r.Size(), "size must be revised upward from the snapshot")
}

func TestReader_CloseSemantics(t *testing.T) {
	data := testPattern(100)
	r, _ := openReader(t, data, nil)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")

	buf := make([]byte, 10)
	_, err := r.Read(buf)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReader_ExternalClientNotClosed(t *testing.T) {
	data := testPattern(256)
	backend := newFakeBackend(data)
	srv := backend.server(t)

	client := &http.Client{}
	cfg := fastConfig(srv.URL)
	cfg.Client = client

	r, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	// The externally supplied client must remain usable.
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReader_DisableRetries(t *testing.T) {
	data := testPattern(4096)
	r, backend := openReader(t, data, func(cfg *Config) { cfg.DisableRetries = true })

	backend.failRanges = 1 // a single failure is enough without retries

	buf := make([]byte, 10)
	_, err := r.Read(buf)
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Attempts)
}
