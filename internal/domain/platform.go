package domain

import "time"

// Message identifies a message posted on the chat platform.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	CreatedAt time.Time
}

// ReactionState is the live state of one emoji on one message, as re-fetched
// from the platform. IncludesSelf is true when the bot itself has reacted.
type ReactionState struct {
	Count        int
	IncludesSelf bool
}

// ReactionEvent is a reaction added to or removed from a message.
type ReactionEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	// Emoji is the unicode emoji, or name:id for custom emoji.
	Emoji string
}
