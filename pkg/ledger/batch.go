package ledger

import "sort"

// pendingBatch accumulates writes for one Apply call. Each address is held once;
// a later write to the same address replaces the earlier one.
type pendingBatch struct {
	writes map[Address]CellValue
	order  []Address
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{writes: make(map[Address]CellValue)}
}

func (b *pendingBatch) put(w CellWrite) {
	if _, ok := b.writes[w.Address]; !ok {
		b.order = append(b.order, w.Address)
	}
	b.writes[w.Address] = w.Value
}

func (b *pendingBatch) putAll(ws []CellWrite) {
	for _, w := range ws {
		b.put(w)
	}
}

func (b *pendingBatch) len() int { return len(b.order) }

// flatten returns the writes ordered by row, then column.
func (b *pendingBatch) flatten() []CellWrite {
	out := make([]CellWrite, 0, len(b.order))
	for _, addr := range b.order {
		out = append(out, CellWrite{Address: addr, Value: b.writes[addr]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out
}
