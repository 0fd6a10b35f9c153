package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/questbot/questbot/pkg/ledger"
)

// Store is a ledger.Store backed by one worksheet of a Google spreadsheet.
// It holds no ledger state; every call goes to the API.
type Store struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	title         string
	sheetID       int64
	timeout       time.Duration
	logger        *zap.Logger
}

var _ ledger.Store = (*Store)(nil)

// ErrMisconfigured marks configuration errors that retrying cannot fix.
var ErrMisconfigured = errors.New("sheets store misconfigured")

// New connects with the service account key in cfg.CredentialsFile and resolves the
// worksheet. Extra options are appended after the credentials (tests use them to point
// at a local endpoint).
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: spreadsheet id is required", ErrMisconfigured)
	}
	if cfg.Worksheet == "" {
		cfg.Worksheet = DefaultWorksheet
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: service account key not found at path: %s", ErrMisconfigured, cfg.CredentialsFile)
		}
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(sheetsapi.SpreadsheetsScope))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheetsapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}

	s := &Store{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		title:         cfg.Worksheet,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
	if err := s.resolveSheetID(ctx); err != nil {
		return nil, err
	}

	logger.Info("Connected to ledger worksheet",
		zap.String("spreadsheet", s.spreadsheetID),
		zap.String("worksheet", s.title),
		zap.Int64("sheetId", s.sheetID))
	return s, nil
}

func (s *Store) resolveSheetID(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("open spreadsheet %s: %w", s.spreadsheetID, err)
	}
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.title {
			s.sheetID = sh.Properties.SheetId
			return nil
		}
	}
	return fmt.Errorf("%w: worksheet %q not found in spreadsheet %s", ErrMisconfigured, s.title, s.spreadsheetID)
}

// ReadRow returns the cells of row.
func (s *Store) ReadRow(ctx context.Context, row int) ([]string, error) {
	return s.readLine(ctx, fmt.Sprintf("%d:%d", row, row), "ROWS")
}

// ReadColumn returns column col from the header down to its last populated cell.
func (s *Store) ReadColumn(ctx context.Context, col int) ([]string, error) {
	letter := ledger.ColumnLetter(col)
	return s.readLine(ctx, letter+":"+letter, "COLUMNS")
}

// ReadCell returns one cell, empty when unset.
func (s *Store) ReadCell(ctx context.Context, row, col int) (string, error) {
	cells, err := s.readLine(ctx, ledger.Address{Row: row, Col: col}.A1(), "ROWS")
	if err != nil || len(cells) == 0 {
		return "", err
	}
	return cells[0], nil
}

func (s *Store) readLine(ctx context.Context, rng, dimension string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vr, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1(rng)).
		MajorDimension(dimension).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	out := make([]string, len(vr.Values[0]))
	for i, v := range vr.Values[0] {
		out[i] = cellText(v)
	}
	return out, nil
}

// InsertRow inserts one empty row at position at, inheriting the formatting of the row above.
func (s *Store) InsertRow(ctx context.Context, at int) error {
	if at < 2 {
		return fmt.Errorf("cannot insert at row %d", at)
	}
	return s.batchUpdate(ctx, []*sheetsapi.Request{s.insertRowRequest(at)})
}

// SubmitBatch writes all cells in a single batchUpdate call. Values are typed, so text
// is never parsed as a formula or number by the spreadsheet.
func (s *Store) SubmitBatch(ctx context.Context, writes []ledger.CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	reqs := make([]*sheetsapi.Request, 0, len(writes))
	for _, w := range writes {
		if w.Row < 1 || w.Col < 1 {
			return fmt.Errorf("invalid cell %d,%d", w.Row, w.Col)
		}
		reqs = append(reqs, s.updateCellRequest(w))
	}
	if err := s.batchUpdate(ctx, reqs); err != nil {
		return err
	}
	s.logger.Debug("Submitted ledger batch",
		zap.String("worksheet", s.title),
		zap.Int("cells", len(writes)))
	return nil
}

func (s *Store) batchUpdate(ctx context.Context, reqs []*sheetsapi.Request) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update (%d requests): %w", len(reqs), err)
	}
	return nil
}

func (s *Store) insertRowRequest(at int) *sheetsapi.Request {
	return &sheetsapi.Request{
		InsertDimension: &sheetsapi.InsertDimensionRequest{
			Range: &sheetsapi.DimensionRange{
				SheetId:         s.sheetID,
				Dimension:       "ROWS",
				StartIndex:      int64(at - 1),
				EndIndex:        int64(at),
				ForceSendFields: []string{"SheetId", "StartIndex"},
			},
			InheritFromBefore: true,
		},
	}
}

func (s *Store) updateCellRequest(w ledger.CellWrite) *sheetsapi.Request {
	return &sheetsapi.Request{
		UpdateCells: &sheetsapi.UpdateCellsRequest{
			Start: &sheetsapi.GridCoordinate{
				SheetId:         s.sheetID,
				RowIndex:        int64(w.Row - 1),
				ColumnIndex:     int64(w.Col - 1),
				ForceSendFields: []string{"SheetId", "RowIndex", "ColumnIndex"},
			},
			Rows: []*sheetsapi.RowData{{
				Values: []*sheetsapi.CellData{{UserEnteredValue: extendedValue(w.Value)}},
			}},
			Fields: "userEnteredValue",
		},
	}
}

func extendedValue(v ledger.CellValue) *sheetsapi.ExtendedValue {
	switch v.Kind {
	case ledger.KindNumber:
		n := float64(v.Number)
		return &sheetsapi.ExtendedValue{NumberValue: &n}
	case ledger.KindFormula:
		f := v.Text
		return &sheetsapi.ExtendedValue{FormulaValue: &f}
	default:
		t := v.Text
		return &sheetsapi.ExtendedValue{StringValue: &t}
	}
}

// a1 qualifies rng with the worksheet title, quoting it as A1 notation requires.
func (s *Store) a1(rng string) string {
	return "'" + strings.ReplaceAll(s.title, "'", "''") + "'!" + rng
}

func cellText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(t)
	}
}
