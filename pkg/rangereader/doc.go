// Package rangereader exposes a remote HTTP resource as a random-access
// byte stream. It issues byte-range requests on demand, keeps the two most
// recently used chunks resident, and speculatively prefetches the chunk
// following the read cursor so sequential consumers rarely wait on the
// network. The resulting Reader implements io.Reader, io.Seeker,
// io.ReaderAt and io.Closer, which is enough for consumers that expect a
// local file (archive/zip being the canonical example: it seeks to the
// central directory, then jumps to individual entries).
//
// The package is organised as:
//
//	config.go   - Config struct & defaults
//	reader.go   - Reader: cursor, window resolution, public surface
//	probe.go    - remote size / range-support detection at open time
//	fetch.go    - single conditional range GET with retry/backoff
//	cache.go    - two-slot LRU chunk cache
//	prefetch.go - single-slot speculative prefetcher
//	metrics.go  - optional observability hooks
//	errors.go   - error taxonomy
//
// A Reader is intended for one logical consumer at a time. Read, Seek,
// ReadAt and Close serialize on an internal lock, but the single position
// cursor makes interleaved use by independent readers meaningless.
package rangereader
