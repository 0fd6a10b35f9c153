package discord

import (
	"github.com/bwmarrin/discordgo"
)

// guild is the slice of the Discord API the transport needs.
type guild interface {
	Member(guildID, userID string) (*discordgo.Member, error)
	Roles(guildID string) ([]*discordgo.Role, error)
	ChannelName(channelID string) (string, error)
	Message(channelID, messageID string) (*discordgo.Message, error)
	Reply(channelID, messageID, content string) error
	Send(channelID, content string) error
}

// sessionGuild serves guild lookups from the session state cache, falling back to REST.
type sessionGuild struct {
	s *discordgo.Session
}

func (g *sessionGuild) Member(guildID, userID string) (*discordgo.Member, error) {
	if m, err := g.s.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	return g.s.GuildMember(guildID, userID)
}

func (g *sessionGuild) Roles(guildID string) ([]*discordgo.Role, error) {
	if gd, err := g.s.State.Guild(guildID); err == nil && len(gd.Roles) > 0 {
		return gd.Roles, nil
	}
	return g.s.GuildRoles(guildID)
}

func (g *sessionGuild) ChannelName(channelID string) (string, error) {
	if ch, err := g.s.State.Channel(channelID); err == nil {
		return ch.Name, nil
	}
	ch, err := g.s.Channel(channelID)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (g *sessionGuild) Message(channelID, messageID string) (*discordgo.Message, error) {
	return g.s.ChannelMessage(channelID, messageID)
}

func (g *sessionGuild) Reply(channelID, messageID, content string) error {
	_, err := g.s.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	})
	return err
}

func (g *sessionGuild) Send(channelID, content string) error {
	_, err := g.s.ChannelMessageSend(channelID, content)
	return err
}
