package layout

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/questbot/questbot/pkg/ledger"
)

// PointsCommand is the read-only lookup command. It cannot be bound to a column.
const PointsCommand = "points"

var validate = validator.New()

// Columns names the identity, total and adjustment columns of the ledger header.
type Columns struct {
	Nickname       string `yaml:"nickname" validate:"required"`
	Username       string `yaml:"username" validate:"required"`
	Total          string `yaml:"total" validate:"required"`
	AdjustAdd      string `yaml:"adjust_add"`
	AdjustSubtract string `yaml:"adjust_subtract"`
}

// ScoreColumn is a tracked point category, optionally weighted by a multiplier cell.
type ScoreColumn struct {
	Name       string `yaml:"name" validate:"required"`
	Multiplier string `yaml:"multiplier"`
}

// Command binds a chat command to the column it changes.
type Command struct {
	Name    string   `yaml:"name" validate:"required,lowercase,alphanum"`
	Column  string   `yaml:"column" validate:"required"`
	Aliases []string `yaml:"aliases" validate:"dive,required,lowercase,alphanum"`
}

// Layout describes the ledger template and the commands that write to it.
type Layout struct {
	Columns        Columns       `yaml:"columns"`
	ScoreColumns   []ScoreColumn `yaml:"score_columns" validate:"required,min=1,dive"`
	Commands       []Command     `yaml:"commands" validate:"required,min=1,dive"`
	ReactionColumn string        `yaml:"reaction_column" validate:"required"`
}

// Default returns the layout of the stock points tracking sheet.
func Default() *Layout {
	return &Layout{
		Columns: Columns{
			Nickname:       "Discord Nickname",
			Username:       "Discord Username",
			Total:          "Points (Total)",
			AdjustAdd:      "Manual Add",
			AdjustSubtract: "Manual Subtract",
		},
		ScoreColumns: []ScoreColumn{
			{Name: "1st Place"},
			{Name: "2nd Place"},
			{Name: "3rd Place"},
			{Name: "Quest"},
			{Name: "Bonus"},
			{Name: "Participation"},
		},
		Commands: []Command{
			{Name: "first", Column: "1st Place", Aliases: []string{"1st"}},
			{Name: "second", Column: "2nd Place", Aliases: []string{"2nd"}},
			{Name: "third", Column: "3rd Place", Aliases: []string{"3rd"}},
			{Name: "quest", Column: "Quest"},
			{Name: "bonus", Column: "Bonus"},
			{Name: "participation", Column: "Participation", Aliases: []string{"part"}},
		},
		ReactionColumn: "Quest",
	}
}

// Load reads a YAML layout from path. An empty path yields Default.
func Load(path string) (*Layout, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML layout.
func Parse(data []byte) (*Layout, error) {
	l := &Layout{}
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks struct tags plus the cross references between sections.
func (l *Layout) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}

	schema := l.Schema()
	var errs []error
	seen := map[string]bool{PointsCommand: true}
	for _, c := range l.Commands {
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if seen[name] {
				errs = append(errs, fmt.Errorf("command %q defined twice or reserved", name))
			}
			seen[name] = true
		}
		if !schema.IsScoreColumn(c.Column) && !l.isAdjustment(c.Column) {
			errs = append(errs, fmt.Errorf("command %q targets %q, which is not a score or adjustment column", c.Name, c.Column))
		}
	}
	if !schema.IsScoreColumn(l.ReactionColumn) {
		errs = append(errs, fmt.Errorf("reaction column %q is not a score column", l.ReactionColumn))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid layout: %w", errors.Join(errs...))
	}
	return nil
}

// Schema converts the layout to the ledger's column schema.
func (l *Layout) Schema() ledger.Schema {
	s := ledger.Schema{
		NicknameColumn:       l.Columns.Nickname,
		UsernameColumn:       l.Columns.Username,
		TotalColumn:          l.Columns.Total,
		AdjustAddColumn:      l.Columns.AdjustAdd,
		AdjustSubtractColumn: l.Columns.AdjustSubtract,
	}
	for _, c := range l.ScoreColumns {
		s.ScoreColumns = append(s.ScoreColumns, ledger.ScoreColumn{Name: c.Name, Multiplier: c.Multiplier})
	}
	return s
}

// Header returns a blank ledger header row for the layout: identity columns, score
// columns, adjustments, then the total.
func (l *Layout) Header() []string {
	h := []string{l.Columns.Nickname, l.Columns.Username}
	for _, c := range l.ScoreColumns {
		h = append(h, c.Name)
	}
	for _, c := range []string{l.Columns.AdjustAdd, l.Columns.AdjustSubtract} {
		if c != "" {
			h = append(h, c)
		}
	}
	return append(h, l.Columns.Total)
}

// CommandColumn returns the column a command name or alias writes to.
func (l *Layout) CommandColumn(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range l.Commands {
		if c.Name == name {
			return c.Column, true
		}
		for _, a := range c.Aliases {
			if a == name {
				return c.Column, true
			}
		}
	}
	return "", false
}

// CommandNames lists the primary command names in layout order.
func (l *Layout) CommandNames() []string {
	out := make([]string, 0, len(l.Commands))
	for _, c := range l.Commands {
		out = append(out, c.Name)
	}
	return out
}

func (l *Layout) isAdjustment(column string) bool {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return column != "" && (norm(column) == norm(l.Columns.AdjustAdd) || norm(column) == norm(l.Columns.AdjustSubtract))
}
