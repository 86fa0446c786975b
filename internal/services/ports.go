package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

// VoteRecordRepo defines the repository contract required by
// VoteInitiateHandler. Missing rows are reported as gorm.ErrRecordNotFound.
type VoteRecordRepo interface {
	// CreateVoteRecord inserts a live record for the posted prompt message.
	CreateVoteRecord(ctx context.Context, db *gorm.DB, commandID, guildID, channelID, messageID string) (*domain.VoteRecord, error)

	// FindVoteRecord returns the live record of commandID in any of guildIDs.
	FindVoteRecord(ctx context.Context, db *gorm.DB, commandID string, guildIDs []string) (*domain.VoteRecord, error)

	// DestroyVoteRecord soft-deletes the record with the given ID.
	DestroyVoteRecord(ctx context.Context, db *gorm.DB, id string) error
}

// Platform is the subset of the chat platform the handler talks to.
// Lookups of missing resources must return an error wrapping ErrNotFound.
type Platform interface {
	// SelfID is the bot's own user ID.
	SelfID() string

	SendMessage(ctx context.Context, channelID, content string) (*domain.Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error

	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error

	// ReactionState re-fetches the live count for emoji on a message. A
	// message without that reaction yields a zero state, not an error.
	ReactionState(ctx context.Context, channelID, messageID, emoji string) (domain.ReactionState, error)

	FetchGuild(ctx context.Context, guildID string) error
	// FetchTextChannel checks that channelID belongs to guildID and accepts
	// text messages.
	FetchTextChannel(ctx context.Context, guildID, channelID string) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error)
}

// Invocation is one command invocation by a user. Replies are only visible to
// the invoker.
type Invocation interface {
	GuildID() string
	UserID() string

	// Reply answers the invocation, replacing any earlier answer.
	Reply(ctx context.Context, content string) error
	// Confirm shows prompt with confirm/cancel choices and waits up to
	// timeout. A timeout or cancel yields false with a nil error.
	Confirm(ctx context.Context, prompt string, timeout time.Duration) (bool, error)
	// EditReply replaces the content of the current answer.
	EditReply(ctx context.Context, content string) error
	// DeleteReply removes the current answer.
	DeleteReply(ctx context.Context) error
}

// Scheduler runs fn at the given wall-clock time. The returned function
// cancels the job and is safe to call more than once.
type Scheduler interface {
	ScheduleAt(at time.Time, fn func()) (cancel func())
}
