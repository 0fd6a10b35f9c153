package ledger

import (
	"fmt"
	"strings"
)

// HeaderIndex maps normalized column names to 1-based column positions.
// It is built from the header row of a single read and must not outlive the operation
// that built it.
type HeaderIndex struct {
	positions map[string]int
}

// NewHeaderIndex builds an index from the header row cells, in column order.
// Blank cells are ignored and the first occurrence of a repeated name wins.
func NewHeaderIndex(header []string) *HeaderIndex {
	idx := &HeaderIndex{positions: make(map[string]int, len(header))}
	for i, cell := range header {
		key := normalizeColumn(cell)
		if key == "" {
			continue
		}
		if _, dup := idx.positions[key]; dup {
			continue
		}
		idx.positions[key] = i + 1
	}
	return idx
}

// Resolve returns the position of name or an error wrapping ErrColumnNotFound.
func (h *HeaderIndex) Resolve(name string) (int, error) {
	if pos, ok := h.Lookup(name); ok {
		return pos, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrColumnNotFound, strings.TrimSpace(name))
}

// Lookup returns the position of name and whether it exists.
func (h *HeaderIndex) Lookup(name string) (int, bool) {
	pos, ok := h.positions[normalizeColumn(name)]
	return pos, ok
}

// Len is the number of distinct named columns.
func (h *HeaderIndex) Len() int { return len(h.positions) }

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
