package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	l := Default()
	require.NoError(t, l.Validate())

	col, ok := l.CommandColumn("Quest")
	require.True(t, ok)
	assert.Equal(t, "Quest", col)

	col, ok = l.CommandColumn("1st")
	require.True(t, ok)
	assert.Equal(t, "1st Place", col)

	_, ok = l.CommandColumn("points")
	assert.False(t, ok)

	s := l.Schema()
	assert.Equal(t, "Discord Nickname", s.NicknameColumn)
	assert.Len(t, s.ScoreColumns, 6)
	assert.Equal(t, []string{"first", "second", "third", "quest", "bonus", "participation"}, l.CommandNames())
}

func TestParse(t *testing.T) {
	data := []byte(`
columns:
  nickname: Nick
  username: User
  total: Total
  adjust_add: Plus
score_columns:
  - name: Raid
    multiplier: "Multipliers!$B$2"
  - name: Quest
commands:
  - name: raid
    column: Raid
  - name: fix
    column: Plus
reaction_column: Quest
`)
	l, err := Parse(data)
	require.NoError(t, err)

	s := l.Schema()
	assert.Equal(t, "Plus", s.AdjustAddColumn)
	assert.Empty(t, s.AdjustSubtractColumn)
	assert.Equal(t, "Multipliers!$B$2", s.ScoreColumns[0].Multiplier)

	col, ok := l.CommandColumn("fix")
	require.True(t, ok)
	assert.Equal(t, "Plus", col)
}

func TestParseRejects(t *testing.T) {
	base := `
columns: {nickname: Nick, username: User, total: Total}
score_columns: [{name: Quest}]
`
	tests := []struct {
		name string
		yaml string
		msg  string
	}{
		{"missing total", `
columns: {nickname: Nick, username: User}
score_columns: [{name: Quest}]
commands: [{name: quest, column: Quest}]
reaction_column: Quest`, "Total"},
		{"unknown command column", base + `
commands: [{name: raid, column: Raid}]
reaction_column: Quest`, "not a score or adjustment column"},
		{"reserved name", base + `
commands: [{name: points, column: Quest}]
reaction_column: Quest`, "reserved"},
		{"duplicate alias", base + `
commands: [{name: quest, column: Quest, aliases: [q]}, {name: q2, column: Quest, aliases: [q]}]
reaction_column: Quest`, "defined twice"},
		{"uppercase command", base + `
commands: [{name: Quest, column: Quest}]
reaction_column: Quest`, "lowercase"},
		{"reaction not scored", base + `
commands: [{name: quest, column: Quest}]
reaction_column: Total`, "reaction column"},
		{"bad yaml", "columns: [", "decode layout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), l)

	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
columns: {nickname: Nick, username: User, total: Total}
score_columns: [{name: Quest}]
commands: [{name: quest, column: Quest}]
reaction_column: Quest
`), 0o600))
	l, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Nick", l.Columns.Nickname)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestHeader(t *testing.T) {
	h := Default().Header()
	assert.Equal(t, []string{
		"Discord Nickname", "Discord Username",
		"1st Place", "2nd Place", "3rd Place", "Quest", "Bonus", "Participation",
		"Manual Add", "Manual Subtract", "Points (Total)",
	}, h)
	assert.NoError(t, Default().Schema().Validate(h))
}
