package writer

import "errors"

// AsyncStoreStats provides statistics about write-behind operations.
type AsyncStoreStats struct {
	// QueueDepth is the number of operations waiting in the queues
	QueueDepth int `json:"queue_depth"`

	// Pending is the number of queued or in-progress operations
	Pending int64 `json:"pending"`

	// DroppedWrites is the total number of writes dropped due to backpressure
	DroppedWrites int64 `json:"dropped_writes"`

	// TotalWrites is the total number of writes queued
	TotalWrites int64 `json:"total_writes"`

	// FailedWrites is the total number of backend writes that failed
	FailedWrites int64 `json:"failed_writes"`
}

// Errors returned by write-behind operations.
var (
	// ErrQueueFull is returned when the write queue is full and MaxWaitTime exceeded
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned when attempting to write to a closed writer
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush gives up before the queues drain
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
