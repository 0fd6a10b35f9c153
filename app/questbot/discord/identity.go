package discord

import (
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/questbot/questbot/pkg/ledger"
)

// IdentityOf builds the ledger identity of a guild user. The nickname is the guild
// nick when set, else the global display name, else the account username.
func IdentityOf(user *discordgo.User, member *discordgo.Member) ledger.Identity {
	if user == nil && member != nil {
		user = member.User
	}
	if user == nil {
		return ledger.Identity{}
	}
	id := ledger.Identity{Nickname: user.Username, Username: user.Username}
	if user.GlobalName != "" {
		id.Nickname = user.GlobalName
	}
	if member != nil && member.Nick != "" {
		id.Nickname = member.Nick
	}
	return id
}

// SplitCommand splits a prefixed chat message into a lower-cased command name and its
// argument tokens. ok is false when content is not a command.
func SplitCommand(content, prefix string) (name string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// HasRole reports whether any of roleIDs is a guild role whose name is one of names.
func HasRole(roleIDs []string, roles []*discordgo.Role, names []string) bool {
	if len(names) == 0 {
		return false
	}
	held := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}
	for _, r := range roles {
		if r == nil || !slices.Contains(names, r.Name) {
			continue
		}
		if _, ok := held[r.ID]; ok {
			return true
		}
	}
	return false
}
