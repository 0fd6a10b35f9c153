// Package discord connects the command dispatcher to a Discord guild: prefixed chat
// commands and staff reactions in the quest channel become ledger operations.
package discord

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/questbot/questbot/pkg/command"
	"github.com/questbot/questbot/pkg/ledger"
	"github.com/questbot/questbot/pkg/utils"
)

// Config configures the Discord transport.
type Config struct {
	Token         string
	Prefix        string
	RequiredRoles []string
	TargetChannel string
}

// ConfigFromEnv reads the transport configuration.
// Environment variables:
//   - DISCORD_BOT_TOKEN: bot token (required)
//   - COMMAND_PREFIX: command prefix (default: "!")
//   - REQUIRED_ROLE: comma separated roles allowed to change points (default: "Staff")
//   - TARGET_CHANNEL: channel where staff reactions award points (default: "quests")
func ConfigFromEnv() Config {
	return Config{
		Token:         utils.Env("DISCORD_BOT_TOKEN", ""),
		Prefix:        utils.Env("COMMAND_PREFIX", "!"),
		RequiredRoles: utils.SplitList(utils.Env("REQUIRED_ROLE", "Staff")),
		TargetChannel: utils.Env("TARGET_CHANNEL", "quests"),
	}
}

// Handler runs ledger operations for chat events.
type Handler interface {
	Handle(ctx context.Context, ev command.Event) command.Outcome
	Award(ctx context.Context, issuerPrivileged bool, author ledger.Identity) command.Outcome
}

// Transport is the Discord side of the bot.
type Transport struct {
	cfg     Config
	session *discordgo.Session
	guild   guild
	handler Handler
	logger  *zap.Logger

	mu  sync.RWMutex
	ctx context.Context
}

// New creates a Transport. Call Open to connect.
func New(cfg Config, handler Handler, logger *zap.Logger) (*Transport, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord bot token is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildMembers

	t := newTransport(cfg, &sessionGuild{s: session}, handler, logger)
	t.session = session
	session.AddHandler(t.onReady)
	session.AddHandler(t.onMessageCreate)
	session.AddHandler(t.onReactionAdd)
	return t, nil
}

func newTransport(cfg Config, g guild, handler Handler, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	return &Transport{
		cfg:     cfg,
		guild:   g,
		handler: handler,
		logger:  logger.Named("discord"),
		ctx:     context.Background(),
	}
}

// Open connects to the gateway. Handlers run with ctx as their parent context.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
	if err := t.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (t *Transport) Close() error {
	if t.session == nil {
		return nil
	}
	return t.session.Close()
}

func (t *Transport) baseContext() context.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx
}

func (t *Transport) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		t.logger.Info("Bot is ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
	}
}

func (t *Transport) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	defer t.recoverHandler("message")
	t.handleMessage(t.baseContext(), m.Message)
}

func (t *Transport) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	defer t.recoverHandler("reaction")
	t.handleReaction(t.baseContext(), r.MessageReaction)
}

func (t *Transport) recoverHandler(kind string) {
	if rec := recover(); rec != nil {
		t.logger.Error("Panic in discord handler",
			zap.String("kind", kind),
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())))
	}
}

func (t *Transport) handleMessage(ctx context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}
	name, args, ok := SplitCommand(msg.Content, t.cfg.Prefix)
	if !ok {
		return
	}

	member := msg.Member
	if member == nil || member.Roles == nil {
		m, err := t.guild.Member(msg.GuildID, msg.Author.ID)
		if err != nil {
			t.logger.Warn("Unable to fetch issuer", zap.String("user", msg.Author.ID), zap.Error(err))
		} else {
			member = m
		}
	}

	ev := command.Event{
		Issuer:           IdentityOf(msg.Author, member),
		IssuerPrivileged: t.privileged(msg.GuildID, member),
		Command:          name,
		Args:             args,
		Participants:     t.participants(msg),
	}
	out := t.handler.Handle(ctx, ev)
	if errors.Is(out.Err, command.ErrUnknownCommand) {
		// other bots share the prefix
		t.logger.Debug("Ignoring unknown command", zap.String("command", name), zap.String("channel", msg.ChannelID))
		return
	}

	if err := t.guild.Reply(msg.ChannelID, msg.ID, out.Summary); err != nil {
		t.logger.Error("Unable to send reply", zap.String("channel", msg.ChannelID), zap.Error(err))
	}
}

// participants resolves the mentioned users in mention order. Bots are skipped.
func (t *Transport) participants(msg *discordgo.Message) []ledger.Identity {
	out := make([]ledger.Identity, 0, len(msg.Mentions))
	for _, u := range msg.Mentions {
		if u == nil || u.Bot {
			continue
		}
		member, err := t.guild.Member(msg.GuildID, u.ID)
		if err != nil {
			t.logger.Debug("Mentioned user is not a guild member", zap.String("user", u.ID), zap.Error(err))
			member = nil
		}
		out = append(out, IdentityOf(u, member))
	}
	return out
}

func (t *Transport) handleReaction(ctx context.Context, r *discordgo.MessageReaction) {
	if r == nil || r.GuildID == "" {
		return
	}
	channel, err := t.guild.ChannelName(r.ChannelID)
	if err != nil || channel != t.cfg.TargetChannel {
		return
	}

	reactor, err := t.guild.Member(r.GuildID, r.UserID)
	if err != nil || reactor == nil {
		return
	}
	if reactor.User != nil && reactor.User.Bot {
		return
	}
	// Reactions from non-staff are ordinary chat activity.
	if !t.privileged(r.GuildID, reactor) {
		return
	}

	msg, err := t.guild.Message(r.ChannelID, r.MessageID)
	if err != nil || msg.Author == nil {
		t.logger.Warn("Unable to fetch reacted message", zap.String("message", r.MessageID), zap.Error(err))
		return
	}
	author, err := t.guild.Member(r.GuildID, msg.Author.ID)
	if err != nil {
		author = nil
	}
	id := IdentityOf(msg.Author, author)

	out := t.handler.Award(ctx, true, id)
	if !out.OK() {
		// Failures are already logged by the dispatcher.
		return
	}
	if err := t.guild.Send(r.ChannelID, fmt.Sprintf("Added quest point for **%s**.", id.Key())); err != nil {
		t.logger.Error("Unable to send confirmation", zap.String("channel", r.ChannelID), zap.Error(err))
	}
}

func (t *Transport) privileged(guildID string, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	roles, err := t.guild.Roles(guildID)
	if err != nil {
		t.logger.Warn("Unable to fetch guild roles", zap.String("guild", guildID), zap.Error(err))
		return false
	}
	return HasRole(member.Roles, roles, t.cfg.RequiredRoles)
}
