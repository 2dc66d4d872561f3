package writer

import "time"

// WriterConfig configures batching.
type WriterConfig struct {
	BatchSize     int           // Rows per insert batch (default: 500)
	FlushInterval time.Duration // Max time a row waits in the batch (default: 1s)
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains writer counters.
type WriterMetrics struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
