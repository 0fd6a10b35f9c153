package ledger

import (
	"sort"
	"strconv"
	"strings"
)

// TotalFormula builds the total formula for row r: every score column present in the
// header (weighted when it has a multiplier), plus the add adjustment, minus the
// subtract adjustment. Columns missing from the header are left out.
func TotalFormula(idx *HeaderIndex, schema Schema, r int) string {
	row := strconv.Itoa(r)

	var (
		terms    []string
		plain    []int
		weighted bool
	)
	for _, sc := range schema.ScoreColumns {
		pos, ok := idx.Lookup(sc.Name)
		if !ok {
			continue
		}
		ref := ColumnLetter(pos) + row
		if m := strings.TrimSpace(sc.Multiplier); m != "" {
			weighted = true
			ref += "*" + m
		}
		terms = append(terms, ref)
		plain = append(plain, pos)
	}

	var b strings.Builder
	b.WriteByte('=')
	switch {
	case len(terms) == 0:
		b.WriteString("0")
	case !weighted && len(plain) > 1 && contiguous(plain):
		lo, hi := minMax(plain)
		b.WriteString("SUM(" + ColumnLetter(lo) + row + ":" + ColumnLetter(hi) + row + ")")
	default:
		b.WriteString(strings.Join(terms, "+"))
	}

	if pos, ok := idx.Lookup(schema.AdjustAddColumn); ok && schema.AdjustAddColumn != "" {
		b.WriteString("+" + ColumnLetter(pos) + row)
	}
	if pos, ok := idx.Lookup(schema.AdjustSubtractColumn); ok && schema.AdjustSubtractColumn != "" {
		b.WriteString("-" + ColumnLetter(pos) + row)
	}
	return b.String()
}

func contiguous(positions []int) bool {
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return false
		}
	}
	return true
}

func minMax(positions []int) (int, int) {
	lo, hi := positions[0], positions[0]
	for _, p := range positions[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return lo, hi
}
