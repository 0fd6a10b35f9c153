package ledger

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind tells the store how to write a cell.
type ValueKind int

const (
	KindNumber ValueKind = iota
	KindText
	KindFormula
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindFormula:
		return "formula"
	default:
		return "unknown"
	}
}

// CellValue is a typed cell payload. Text is never evaluated by the store,
// so participant names that start with "=" stay literal.
type CellValue struct {
	Kind   ValueKind
	Number int
	Text   string
}

func Number(n int) CellValue { return CellValue{Kind: KindNumber, Number: n} }
func Text(s string) CellValue { return CellValue{Kind: KindText, Text: s} }
func Formula(f string) CellValue { return CellValue{Kind: KindFormula, Text: f} }
func (v CellValue) IsFormula() bool { return v.Kind == KindFormula }

// String renders the value the way a plain cell read would return it.
// Formulas render as their source text.
func (v CellValue) String() string {
	if v.Kind == KindNumber {
		return strconv.Itoa(v.Number)
	}
	return v.Text
}

// Address is a 1-based (row, column) cell position.
type Address struct {
	Row int
	Col int
}

// A1 renders the address in A1 notation, e.g. {3, 5} -> "E3".
func (a Address) A1() string {
	return ColumnLetter(a.Col) + strconv.Itoa(a.Row)
}

// CellWrite is one queued cell update.
type CellWrite struct {
	Address
	Value CellValue
}

// ColumnLetter converts a 1-based column position to its letter form (1 -> A, 27 -> AA).
func ColumnLetter(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append(b, byte('A'+col%26))
		col /= 26
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// MaxCount bounds every count the ledger writes. Larger integers are not exact
// once the spreadsheet stores them as doubles.
const MaxCount = 1<<53 - 1

// ParseCount reads a score cell. Empty or non-numeric content counts as 0 and
// reports ok=false. Integral decimals ("3.0") are accepted. Values beyond
// MaxCount saturate.
func ParseCount(s string) (n int, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return clampCount(n), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	switch {
	case f >= MaxCount:
		return MaxCount, true
	case f <= -MaxCount:
		return -MaxCount, true
	}
	return int(f), true
}

// AddCount returns a+b saturated to [-MaxCount, MaxCount]. It never wraps.
func AddCount(a, b int) int {
	a, b = clampCount(a), clampCount(b)
	// Both operands fit in 54 bits, so the sum cannot overflow int64.
	return clampCount(a + b)
}

func clampCount(n int) int {
	switch {
	case n > MaxCount:
		return MaxCount
	case n < -MaxCount:
		return -MaxCount
	}
	return n
}
