package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Floor is the lower bound policy applied to updated cells of existing rows.
type Floor int

const (
	// ClampAtZero keeps updated values at or above zero. It is the default.
	ClampAtZero Floor = iota
	// NoClamp applies the delta as is. Meant for increment-only call sites.
	NoClamp
)

type applyOptions struct {
	floor Floor
}

// ApplyOption tunes a single Apply call.
type ApplyOption func(*applyOptions)

// WithFloor selects the clamp policy for existing rows.
func WithFloor(f Floor) ApplyOption {
	return func(o *applyOptions) { o.floor = f }
}

// Result reports what an Apply call did.
type Result struct {
	// Affected are the participants that received a write, deduplicated, in input order.
	Affected []Identity
	// Created are the participants for whom a new row was allocated.
	Created []Identity
	// Writes is the number of cell writes in the submitted batch.
	Writes int
	// Applied is true when a batch was submitted.
	Applied bool
}

// columns holds the resolved positions of one operation.
type columns struct {
	nickname int
	username int
	total    int
	target   int
}

// Updater applies signed point deltas to a ledger.
type Updater struct {
	store  Store
	schema Schema
	logger *zap.Logger
}

// NewUpdater creates an Updater over store using schema for column names.
func NewUpdater(store Store, schema Schema, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{store: store, schema: schema, logger: logger}
}

// Schema returns the schema the updater was built with.
func (u *Updater) Schema() Schema { return u.schema }

// Apply adds delta to target for every participant.
//
// All participants are resolved against one snapshot of the nickname and target
// columns, so a participant listed twice gets delta applied once against the original
// value rather than twice. Existing rows receive one write each; unseen participants
// get a fully populated new row when delta is positive and are skipped otherwise.
// Everything is submitted in a single batch, or nothing is when no write was queued.
func (u *Updater) Apply(ctx context.Context, participants []Identity, target string, delta int, opts ...ApplyOption) (*Result, error) {
	o := applyOptions{floor: ClampAtZero}
	for _, opt := range opts {
		opt(&o)
	}

	idx, cols, err := u.resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	nicknames, err := u.store.ReadColumn(ctx, cols.nickname)
	if err != nil {
		return nil, fmt.Errorf("read nickname column: %w", err)
	}
	values, err := u.store.ReadColumn(ctx, cols.target)
	if err != nil {
		return nil, fmt.Errorf("read %q column: %w", target, err)
	}

	batch := newPendingBatch()
	mat := newRowMaterializer(idx, u.schema, cols, len(nicknames))
	res := &Result{}
	affected := make(map[string]bool, len(participants))

	for _, p := range participants {
		if p.Key() == "" {
			continue
		}
		if row, ok := FindRow(p.Key(), nicknames); ok {
			current := u.currentValue(values, row, p, target)
			next := AddCount(current, delta)
			if o.floor == ClampAtZero && next < 0 {
				next = 0
			}
			batch.put(CellWrite{Address: Address{Row: row, Col: cols.target}, Value: Number(next)})
		} else if delta > 0 {
			_, writes, fresh := mat.CreateRow(p, cols.target, AddCount(0, delta))
			batch.putAll(writes)
			if fresh {
				res.Created = append(res.Created, p)
			}
		} else {
			continue
		}
		if !affected[p.Key()] {
			affected[p.Key()] = true
			res.Affected = append(res.Affected, p)
		}
	}

	if batch.len() == 0 {
		u.logger.Debug("No ledger writes queued",
			zap.String("column", target),
			zap.Int("delta", delta),
			zap.Int("participants", len(participants)))
		return res, nil
	}

	for _, row := range mat.Rows() {
		if err := u.store.InsertRow(ctx, row); err != nil {
			return nil, fmt.Errorf("%w: insert row %d: %w", ErrWriteBatchFailed, row, err)
		}
	}

	writes := batch.flatten()
	if err := u.store.SubmitBatch(ctx, writes); err != nil {
		u.logger.Error("Ledger batch rejected",
			zap.String("column", target),
			zap.Int("writes", len(writes)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrWriteBatchFailed, err)
	}

	res.Writes = len(writes)
	res.Applied = true
	u.logger.Info("Ledger batch applied",
		zap.String("column", target),
		zap.Int("delta", delta),
		zap.Int("writes", res.Writes),
		zap.Int("affected", len(res.Affected)),
		zap.Int("created", len(res.Created)))
	return res, nil
}

// Standing is a participant's current total as rendered by the store.
type Standing struct {
	Identity Identity `json:"identity"`
	Total    string   `json:"total"`
	Found    bool     `json:"found"`
}

// Standings looks up each participant's total cell. Unknown participants are
// returned with Found=false.
func (u *Updater) Standings(ctx context.Context, participants []Identity) ([]Standing, error) {
	header, err := u.store.ReadRow(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	idx := NewHeaderIndex(header)
	nickCol, err := idx.Resolve(u.schema.NicknameColumn)
	if err != nil {
		return nil, err
	}
	totalCol, err := idx.Resolve(u.schema.TotalColumn)
	if err != nil {
		return nil, err
	}
	nicknames, err := u.store.ReadColumn(ctx, nickCol)
	if err != nil {
		return nil, fmt.Errorf("read nickname column: %w", err)
	}

	out := make([]Standing, 0, len(participants))
	for _, p := range participants {
		row, ok := FindRow(p.Key(), nicknames)
		if !ok {
			out = append(out, Standing{Identity: p})
			continue
		}
		total, err := u.store.ReadCell(ctx, row, totalCol)
		if err != nil {
			return nil, fmt.Errorf("read total for %q: %w", p.Key(), err)
		}
		out = append(out, Standing{Identity: p, Total: total, Found: true})
	}
	return out, nil
}

// resolve reads the header row and resolves every column the operation may touch.
// Any missing column fails the operation before anything is queued.
func (u *Updater) resolve(ctx context.Context, target string) (*HeaderIndex, columns, error) {
	header, err := u.store.ReadRow(ctx, 1)
	if err != nil {
		return nil, columns{}, fmt.Errorf("read header row: %w", err)
	}
	idx := NewHeaderIndex(header)

	var cols columns
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{u.schema.NicknameColumn, &cols.nickname},
		{u.schema.UsernameColumn, &cols.username},
		{u.schema.TotalColumn, &cols.total},
		{target, &cols.target},
	} {
		pos, err := idx.Resolve(c.name)
		if err != nil {
			return nil, columns{}, err
		}
		*c.dst = pos
	}
	return idx, cols, nil
}

func (u *Updater) currentValue(values []string, row int, p Identity, target string) int {
	if row-1 >= len(values) {
		return 0
	}
	raw := values[row-1]
	n, ok := ParseCount(raw)
	if !ok && raw != "" {
		u.logger.Debug("Malformed score cell treated as 0",
			zap.String("participant", p.Key()),
			zap.String("column", target),
			zap.Int("row", row),
			zap.String("value", raw))
	}
	return n
}
