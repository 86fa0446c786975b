// Package discord adapts a discordgo session to the vote-initiate services:
// REST calls behind services.Platform, slash command invocations behind
// services.Invocation, and gateway events routed by a Dispatcher.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
	"github.com/tbourn/vote-initiate-bot/internal/services"
)

// restAPI is the subset of *discordgo.Session used by Platform.
type restAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEdit(channelID, messageID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	MessageReactionRemove(channelID, messageID, emojiID, userID string, options ...discordgo.RequestOption) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// Platform implements services.Platform over the Discord REST API.
type Platform struct {
	api  restAPI
	self func() string
}

var _ services.Platform = (*Platform)(nil)

// NewPlatform wraps s. The bot's user ID is read from the session state, so
// it is only known once the gateway has sent READY.
func NewPlatform(s *discordgo.Session) *Platform {
	return &Platform{
		api: s,
		self: func() string {
			if s.State == nil || s.State.User == nil {
				return ""
			}
			return s.State.User.ID
		},
	}
}

func (p *Platform) SelfID() string { return p.self() }

func (p *Platform) SendMessage(ctx context.Context, channelID, content string) (*domain.Message, error) {
	m, err := p.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return toMessage(m), nil
}

func (p *Platform) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	_, err := p.api.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
	return mapError(err)
}

func (p *Platform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return mapError(p.api.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)))
}

func (p *Platform) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	if userID == "" {
		userID = "@me"
	}
	return mapError(p.api.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx)))
}

// ReactionState re-fetches the message and reads the aggregate for emoji.
func (p *Platform) ReactionState(ctx context.Context, channelID, messageID, emoji string) (domain.ReactionState, error) {
	m, err := p.api.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return domain.ReactionState{}, mapError(err)
	}
	want := services.NormalizeEmoji(emoji)
	for _, r := range m.Reactions {
		if r == nil || r.Emoji == nil {
			continue
		}
		if services.NormalizeEmoji(r.Emoji.APIName()) == want {
			return domain.ReactionState{Count: r.Count, IncludesSelf: r.Me}, nil
		}
	}
	return domain.ReactionState{}, nil
}

func (p *Platform) FetchGuild(ctx context.Context, guildID string) error {
	_, err := p.api.Guild(guildID, discordgo.WithContext(ctx))
	return mapError(err)
}

func (p *Platform) FetchTextChannel(ctx context.Context, guildID, channelID string) error {
	ch, err := p.api.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	if ch.GuildID != guildID {
		return fmt.Errorf("channel %s in guild %s: %w", channelID, guildID, services.ErrNotFound)
	}
	if !isTextChannel(ch.Type) {
		return fmt.Errorf("channel %s: %w", channelID, services.ErrNotTextChannel)
	}
	return nil
}

func (p *Platform) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	m, err := p.api.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return toMessage(m), nil
}

func isTextChannel(t discordgo.ChannelType) bool {
	switch t {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildNews,
		discordgo.ChannelTypeGuildVoice,
		discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

func toMessage(m *discordgo.Message) *domain.Message {
	return &domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		CreatedAt: m.Timestamp,
	}
}

// mapError turns REST 404s into services.ErrNotFound, keeping the original
// error in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", services.ErrNotFound, err)
	}
	return err
}
