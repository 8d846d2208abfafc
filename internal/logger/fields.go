package logger

// Standard field keys for structured logging. Use these consistently so
// log lines from different parts of the reader aggregate cleanly.
const (
	// Stream identification
	KeyStream = "stream" // short correlation id, one per open stream
	KeyURL    = "url"    // remote resource URL

	// Range I/O
	KeyOffset     = "offset"      // logical stream offset
	KeyChunkStart = "chunk_start" // aligned start offset of a chunk
	KeyChunkEnd   = "chunk_end"   // inclusive end offset of a range request
	KeyCount      = "count"       // bytes requested
	KeyBytesRead  = "bytes_read"  // bytes actually returned
	KeySize       = "size"        // total remote resource size

	// Transport
	KeyStatus   = "status"   // HTTP status code
	KeyAttempt  = "attempt"  // retry attempt number
	KeyBackoff  = "backoff"  // backoff duration before a retry
	KeyDuration = "duration" // operation wall time
	KeyError    = "error"    // error detail
)
