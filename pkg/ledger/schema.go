package ledger

// ScoreColumn is a tracked point category. Multiplier, when set, is an absolute A1
// reference (for example "Multipliers!$B$2") that weights the column in the total.
type ScoreColumn struct {
	Name       string
	Multiplier string
}

// Schema names the logical columns of the ledger. Positions are never stored here;
// they come from the header row on every operation.
type Schema struct {
	NicknameColumn       string
	UsernameColumn       string
	TotalColumn          string
	AdjustAddColumn      string
	AdjustSubtractColumn string
	ScoreColumns         []ScoreColumn
}

// RequiredColumns are the columns every mutation needs, in resolution order.
func (s Schema) RequiredColumns() []string {
	return []string{s.NicknameColumn, s.UsernameColumn, s.TotalColumn}
}

// IsScoreColumn reports whether name is one of the tracked score columns.
func (s Schema) IsScoreColumn(name string) bool {
	key := normalizeColumn(name)
	for _, c := range s.ScoreColumns {
		if normalizeColumn(c.Name) == key {
			return true
		}
	}
	return false
}

// Validate checks header against the schema: every required column must resolve.
// Missing score or adjustment columns are tolerated.
func (s Schema) Validate(header []string) error {
	idx := NewHeaderIndex(header)
	for _, name := range s.RequiredColumns() {
		if _, err := idx.Resolve(name); err != nil {
			return err
		}
	}
	return nil
}
