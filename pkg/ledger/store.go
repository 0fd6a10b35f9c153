// Package ledger reconciles participant point changes against a header-driven
// tabular store. Columns are addressed by header name only; every operation reads
// a fresh snapshot and flushes its writes as a single batch.
package ledger

import "context"

// Store is the tabular backend. Rows and columns are 1-based; row 1 is the header.
// Reads return cell text with trailing empty cells trimmed.
type Store interface {
	// ReadRow returns the cells of row.
	ReadRow(ctx context.Context, row int) ([]string, error)
	// ReadColumn returns the cells of col from row 1 down to the last populated cell.
	ReadColumn(ctx context.Context, col int) ([]string, error)
	// ReadCell returns a single cell, empty when unset.
	ReadCell(ctx context.Context, row, col int) (string, error)
	// InsertRow inserts an empty row at position at, shifting rows at and below down.
	InsertRow(ctx context.Context, at int) error
	// SubmitBatch applies all writes in one request.
	SubmitBatch(ctx context.Context, writes []CellWrite) error
}
