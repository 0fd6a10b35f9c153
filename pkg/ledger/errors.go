package ledger

import "errors"

var (
	// ErrColumnNotFound means a required column is missing from the header row.
	// It is a template problem and aborts the operation before anything is written.
	ErrColumnNotFound = errors.New("column not found")

	// ErrWriteBatchFailed means the store rejected or timed out the batch.
	// The core does not retry or roll back.
	ErrWriteBatchFailed = errors.New("write batch failed")
)
