package discord

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questbot/questbot/pkg/command"
	"github.com/questbot/questbot/pkg/ledger"
)

type fakeGuild struct {
	members  map[string]*discordgo.Member
	roles    []*discordgo.Role
	channels map[string]string
	messages map[string]*discordgo.Message
	replies  []string
	sent     []string
}

func newFakeGuild() *fakeGuild {
	return &fakeGuild{
		members: map[string]*discordgo.Member{
			"staff": {User: &discordgo.User{ID: "staff", Username: "sam"}, Nick: "Sam", Roles: []string{"r-staff"}},
			"ann":   {User: &discordgo.User{ID: "ann", Username: "ann_01", GlobalName: "Annie"}, Nick: "Ann"},
			"bob":   {User: &discordgo.User{ID: "bob", Username: "bobby"}},
		},
		roles: []*discordgo.Role{
			{ID: "r-staff", Name: "Staff"},
			{ID: "r-other", Name: "Member"},
		},
		channels: map[string]string{"c-quests": "quests", "c-general": "general"},
		messages: map[string]*discordgo.Message{
			"m1": {ID: "m1", Author: &discordgo.User{ID: "ann", Username: "ann_01"}},
		},
	}
}

func (g *fakeGuild) Member(_, userID string) (*discordgo.Member, error) {
	if m, ok := g.members[userID]; ok {
		return m, nil
	}
	return nil, errors.New("unknown member")
}

func (g *fakeGuild) Roles(string) ([]*discordgo.Role, error) { return g.roles, nil }

func (g *fakeGuild) ChannelName(channelID string) (string, error) {
	if n, ok := g.channels[channelID]; ok {
		return n, nil
	}
	return "", errors.New("unknown channel")
}

func (g *fakeGuild) Message(_, messageID string) (*discordgo.Message, error) {
	if m, ok := g.messages[messageID]; ok {
		return m, nil
	}
	return nil, errors.New("unknown message")
}

func (g *fakeGuild) Reply(_, _, content string) error {
	g.replies = append(g.replies, content)
	return nil
}

func (g *fakeGuild) Send(_, content string) error {
	g.sent = append(g.sent, content)
	return nil
}

type fakeHandler struct {
	events  []command.Event
	awards  []ledger.Identity
	outcome command.Outcome
}

func (h *fakeHandler) Handle(_ context.Context, ev command.Event) command.Outcome {
	h.events = append(h.events, ev)
	return h.outcome
}

func (h *fakeHandler) Award(_ context.Context, _ bool, author ledger.Identity) command.Outcome {
	h.awards = append(h.awards, author)
	return h.outcome
}

func testConfig() Config {
	return Config{Prefix: "!", RequiredRoles: []string{"Staff"}, TargetChannel: "quests"}
}

func TestIdentityOf(t *testing.T) {
	u := &discordgo.User{Username: "ann_01", GlobalName: "Annie"}
	assert.Equal(t, ledger.Identity{Nickname: "Ann", Username: "ann_01"}, IdentityOf(u, &discordgo.Member{Nick: "Ann"}))
	assert.Equal(t, ledger.Identity{Nickname: "Annie", Username: "ann_01"}, IdentityOf(u, nil))
	assert.Equal(t, ledger.Identity{Nickname: "bobby", Username: "bobby"}, IdentityOf(&discordgo.User{Username: "bobby"}, &discordgo.Member{}))
	assert.Equal(t, ledger.Identity{Nickname: "x", Username: "x"}, IdentityOf(nil, &discordgo.Member{User: &discordgo.User{Username: "x"}}))
	assert.Equal(t, ledger.Identity{}, IdentityOf(nil, nil))
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		cmd     string
		args    []string
		ok      bool
	}{
		{name: "plain", content: "!quest <@1>", cmd: "quest", args: []string{"<@1>"}, ok: true},
		{name: "upper case", content: "  !Quest remove 2 <@1> ", cmd: "quest", args: []string{"remove", "2", "<@1>"}, ok: true},
		{name: "no args", content: "!points", cmd: "points", args: []string{}, ok: true},
		{name: "no prefix", content: "quest <@1>", ok: false},
		{name: "prefix only", content: "!", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := SplitCommand(tt.content, "!")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.cmd, cmd)
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestHasRole(t *testing.T) {
	roles := []*discordgo.Role{{ID: "1", Name: "Staff"}, {ID: "2", Name: "staff"}}
	assert.True(t, HasRole([]string{"1"}, roles, []string{"Staff"}))
	assert.True(t, HasRole([]string{"2"}, roles, []string{"Mods", "staff"}))
	assert.False(t, HasRole([]string{"2"}, roles, []string{"Staff"}))
	assert.False(t, HasRole(nil, roles, []string{"Staff"}))
	assert.False(t, HasRole([]string{"1"}, roles, nil))
}

func TestHandleMessage(t *testing.T) {
	g := newFakeGuild()
	h := &fakeHandler{outcome: command.Outcome{Summary: "Added 2 Quest points for **Ann**, **bobby**."}}
	tr := newTransport(testConfig(), g, h, nil)

	tr.handleMessage(context.Background(), &discordgo.Message{
		ID:        "m9",
		GuildID:   "g",
		ChannelID: "c-general",
		Content:   "!quest 2 <@ann> <@bob> <@bot>",
		Author:    &discordgo.User{ID: "staff", Username: "sam"},
		Mentions: []*discordgo.User{
			{ID: "ann", Username: "ann_01", GlobalName: "Annie"},
			{ID: "bob", Username: "bobby"},
			{ID: "bot", Username: "questbot", Bot: true},
		},
	})

	require.Len(t, h.events, 1)
	ev := h.events[0]
	assert.Equal(t, "quest", ev.Command)
	assert.Equal(t, []string{"2", "<@ann>", "<@bob>", "<@bot>"}, ev.Args)
	assert.True(t, ev.IssuerPrivileged)
	assert.Equal(t, ledger.Identity{Nickname: "Sam", Username: "sam"}, ev.Issuer)
	assert.Equal(t, []ledger.Identity{
		{Nickname: "Ann", Username: "ann_01"},
		{Nickname: "bobby", Username: "bobby"},
	}, ev.Participants)
	assert.Equal(t, []string{"Added 2 Quest points for **Ann**, **bobby**."}, g.replies)
}

func TestHandleMessageIgnored(t *testing.T) {
	tests := []struct {
		name string
		msg  *discordgo.Message
	}{
		{name: "bot author", msg: &discordgo.Message{GuildID: "g", Content: "!quest", Author: &discordgo.User{ID: "b", Bot: true}}},
		{name: "direct message", msg: &discordgo.Message{Content: "!quest", Author: &discordgo.User{ID: "staff"}}},
		{name: "not a command", msg: &discordgo.Message{GuildID: "g", Content: "hello", Author: &discordgo.User{ID: "staff"}}},
		{name: "nil", msg: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGuild()
			h := &fakeHandler{}
			newTransport(testConfig(), g, h, nil).handleMessage(context.Background(), tt.msg)
			assert.Empty(t, h.events)
			assert.Empty(t, g.replies)
		})
	}
}

func TestHandleMessageUnprivileged(t *testing.T) {
	g := newFakeGuild()
	h := &fakeHandler{outcome: command.Outcome{Summary: "Only staff can change points."}}
	tr := newTransport(testConfig(), g, h, nil)

	tr.handleMessage(context.Background(), &discordgo.Message{
		GuildID: "g",
		Content: "!quest <@ann>",
		Author:  &discordgo.User{ID: "bob", Username: "bobby"},
	})

	require.Len(t, h.events, 1)
	assert.False(t, h.events[0].IssuerPrivileged)
	assert.Empty(t, h.events[0].Participants)
	assert.Equal(t, []string{"Only staff can change points."}, g.replies)
}

func TestHandleMessageUnknownCommandSilent(t *testing.T) {
	g := newFakeGuild()
	h := &fakeHandler{outcome: command.Outcome{
		Command: "play",
		Summary: "Unknown command.",
		Err:     fmt.Errorf("%w: %q", command.ErrUnknownCommand, "play"),
	}}
	tr := newTransport(testConfig(), g, h, nil)

	tr.handleMessage(context.Background(), &discordgo.Message{
		ID:        "m10",
		GuildID:   "g",
		ChannelID: "c-general",
		Content:   "!play some song",
		Author:    &discordgo.User{ID: "staff", Username: "sam"},
	})

	require.Len(t, h.events, 1)
	assert.Equal(t, "play", h.events[0].Command)
	assert.Empty(t, g.replies)
}

func TestHandleReaction(t *testing.T) {
	g := newFakeGuild()
	h := &fakeHandler{outcome: command.Outcome{Affected: []ledger.Identity{{Nickname: "Ann"}}}}
	tr := newTransport(testConfig(), g, h, nil)

	tr.handleReaction(context.Background(), &discordgo.MessageReaction{
		GuildID: "g", ChannelID: "c-quests", MessageID: "m1", UserID: "staff",
	})

	assert.Equal(t, []ledger.Identity{{Nickname: "Ann", Username: "ann_01"}}, h.awards)
	assert.Equal(t, []string{"Added quest point for **Ann**."}, g.sent)
}

func TestHandleReactionIgnored(t *testing.T) {
	tests := []struct {
		name string
		r    *discordgo.MessageReaction
	}{
		{name: "other channel", r: &discordgo.MessageReaction{GuildID: "g", ChannelID: "c-general", MessageID: "m1", UserID: "staff"}},
		{name: "unknown channel", r: &discordgo.MessageReaction{GuildID: "g", ChannelID: "c-x", MessageID: "m1", UserID: "staff"}},
		{name: "not staff", r: &discordgo.MessageReaction{GuildID: "g", ChannelID: "c-quests", MessageID: "m1", UserID: "bob"}},
		{name: "unknown message", r: &discordgo.MessageReaction{GuildID: "g", ChannelID: "c-quests", MessageID: "m2", UserID: "staff"}},
		{name: "direct message", r: &discordgo.MessageReaction{ChannelID: "c-quests", MessageID: "m1", UserID: "staff"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGuild()
			h := &fakeHandler{}
			newTransport(testConfig(), g, h, nil).handleReaction(context.Background(), tt.r)
			assert.Empty(t, h.awards)
			assert.Empty(t, g.sent)
		})
	}
}

func TestHandleReactionFailedAward(t *testing.T) {
	g := newFakeGuild()
	h := &fakeHandler{outcome: command.Outcome{Err: ledger.ErrWriteBatchFailed}}
	tr := newTransport(testConfig(), g, h, nil)

	tr.handleReaction(context.Background(), &discordgo.MessageReaction{
		GuildID: "g", ChannelID: "c-quests", MessageID: "m1", UserID: "staff",
	})

	assert.Len(t, h.awards, 1)
	assert.Empty(t, g.sent)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("REQUIRED_ROLE", "Staff, Mods")
	cfg := ConfigFromEnv()
	assert.Equal(t, []string{"Staff", "Mods"}, cfg.RequiredRoles)
	assert.Equal(t, "!", cfg.Prefix)
	assert.Equal(t, "quests", cfg.TargetChannel)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, &fakeHandler{}, nil)
	assert.Error(t, err)
}
