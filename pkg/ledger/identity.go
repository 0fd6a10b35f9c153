package ledger

import "strings"

// Identity is a participant as seen by the ledger. Nickname is the lookup key;
// Username is persisted on row creation but never used for lookup.
type Identity struct {
	Nickname string `json:"nickname"`
	Username string `json:"username"`
}

// Key is the value matched against the nickname column.
func (i Identity) Key() string { return strings.TrimSpace(i.Nickname) }

// String implements fmt.Stringer.
func (i Identity) String() string { return i.Key() }

// FindRow scans the nickname column values (as read, header included at index 0)
// and returns the 1-based row of the first match. Nicknames that share a name
// resolve to the earliest row.
func FindRow(nickname string, column []string) (int, bool) {
	key := strings.TrimSpace(nickname)
	if key == "" {
		return 0, false
	}
	for i := 1; i < len(column); i++ {
		if strings.TrimSpace(column[i]) == key {
			return i + 1, true
		}
	}
	return 0, false
}
