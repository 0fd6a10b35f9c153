package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store. Batches are all-or-nothing. It backs tests and
// the memory ledger backend used for dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	rows    [][]CellValue
	failErr error

	submits int
	inserts []int
	batches [][]CellWrite
}

// NewMemoryStore creates a store whose rows are the given text cells.
// The first row is the header.
func NewMemoryStore(rows ...[]string) *MemoryStore {
	s := &MemoryStore{}
	for _, r := range rows {
		row := make([]CellValue, len(r))
		for i, cell := range r {
			row[i] = Text(cell)
		}
		s.rows = append(s.rows, row)
	}
	return s
}

// FailSubmits makes every following SubmitBatch return err without applying anything.
// Pass nil to clear.
func (s *MemoryStore) FailSubmits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Submits is the number of SubmitBatch calls that reached the store.
func (s *MemoryStore) Submits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

// Inserts returns the positions passed to InsertRow, in call order.
func (s *MemoryStore) Inserts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.inserts...)
}

// LastBatch returns the writes of the most recent successful batch.
func (s *MemoryStore) LastBatch() []CellWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil
	}
	return append([]CellWrite(nil), s.batches[len(s.batches)-1]...)
}

// Rows returns a text copy of the grid. Formula cells render as their source.
func (s *MemoryStore) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = trimTrailing(renderRow(r))
	}
	return out
}

// Cell returns the typed value at (row, col).
func (s *MemoryStore) Cell(row, col int) CellValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cell(row, col)
}

func (s *MemoryStore) ReadRow(_ context.Context, row int) ([]string, error) {
	if row < 1 {
		return nil, fmt.Errorf("invalid row %d", row)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row > len(s.rows) {
		return nil, nil
	}
	return trimTrailing(renderRow(s.rows[row-1])), nil
}

func (s *MemoryStore) ReadColumn(_ context.Context, col int) ([]string, error) {
	if col < 1 {
		return nil, fmt.Errorf("invalid column %d", col)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.rows))
	for i := range s.rows {
		out[i] = s.cell(i+1, col).String()
	}
	return trimTrailing(out), nil
}

func (s *MemoryStore) ReadCell(_ context.Context, row, col int) (string, error) {
	if row < 1 || col < 1 {
		return "", fmt.Errorf("invalid cell %d,%d", row, col)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cell(row, col).String(), nil
}

func (s *MemoryStore) InsertRow(_ context.Context, at int) error {
	if at < 2 {
		return fmt.Errorf("cannot insert at row %d", at)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, at)
	for len(s.rows) < at-1 {
		s.rows = append(s.rows, nil)
	}
	s.rows = append(s.rows, nil)
	copy(s.rows[at:], s.rows[at-1:])
	s.rows[at-1] = nil
	return nil
}

func (s *MemoryStore) SubmitBatch(ctx context.Context, writes []CellWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	for _, w := range writes {
		if w.Row < 1 || w.Col < 1 {
			return fmt.Errorf("invalid cell %d,%d", w.Row, w.Col)
		}
	}
	s.submits++
	for _, w := range writes {
		for len(s.rows) < w.Row {
			s.rows = append(s.rows, nil)
		}
		r := s.rows[w.Row-1]
		for len(r) < w.Col {
			r = append(r, CellValue{Kind: KindText})
		}
		r[w.Col-1] = w.Value
		s.rows[w.Row-1] = r
	}
	s.batches = append(s.batches, append([]CellWrite(nil), writes...))
	return nil
}

func (s *MemoryStore) cell(row, col int) CellValue {
	if row > len(s.rows) || col > len(s.rows[row-1]) {
		return CellValue{Kind: KindText}
	}
	return s.rows[row-1][col-1]
}

func renderRow(r []CellValue) []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}

func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && cells[n-1] == "" {
		n--
	}
	return cells[:n]
}
