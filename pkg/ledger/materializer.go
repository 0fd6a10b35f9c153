package ledger

// rowMaterializer allocates rows for participants that are not in the ledger yet.
// Allocation starts right after the populated nickname column of the current snapshot,
// and a nickname seen twice in the same batch gets the same row.
type rowMaterializer struct {
	idx      *HeaderIndex
	schema   Schema
	nickCol  int
	userCol  int
	totalCol int

	nextRow   int
	allocated map[string]int
	order     []int
}

func newRowMaterializer(idx *HeaderIndex, schema Schema, cols columns, populated int) *rowMaterializer {
	// Row 1 is the header, even on an empty sheet.
	if populated < 1 {
		populated = 1
	}
	return &rowMaterializer{
		idx:       idx,
		schema:    schema,
		nickCol:   cols.nickname,
		userCol:   cols.username,
		totalCol:  cols.total,
		nextRow:   populated + 1,
		allocated: make(map[string]int),
	}
}

// CreateRow returns the row assigned to id and the writes that fully populate it:
// identity cells, seed in the target column, zero in every other score column present
// in the header, and the total formula. fresh is false when id already received a
// row earlier in this batch.
func (m *rowMaterializer) CreateRow(id Identity, targetCol, seed int) (row int, writes []CellWrite, fresh bool) {
	row, seen := m.allocated[id.Key()]
	if !seen {
		row = m.nextRow
		m.nextRow++
		m.allocated[id.Key()] = row
		m.order = append(m.order, row)
	}

	writes = append(writes,
		CellWrite{Address: Address{Row: row, Col: m.nickCol}, Value: Text(id.Key())},
		CellWrite{Address: Address{Row: row, Col: m.userCol}, Value: Text(id.Username)},
	)
	for _, sc := range m.schema.ScoreColumns {
		pos, ok := m.idx.Lookup(sc.Name)
		if !ok || pos == targetCol {
			continue
		}
		writes = append(writes, CellWrite{Address: Address{Row: row, Col: pos}, Value: Number(0)})
	}
	writes = append(writes,
		CellWrite{Address: Address{Row: row, Col: targetCol}, Value: Number(seed)},
		CellWrite{Address: Address{Row: row, Col: m.totalCol}, Value: Formula(TotalFormula(m.idx, m.schema, row))},
	)
	return row, writes, !seen
}

// Rows returns the allocated rows in allocation (ascending) order.
func (m *rowMaterializer) Rows() []int { return m.order }
