package domain

import (
	"slices"
	"time"
)

// VoteDefinition is the static configuration of one vote-initiate command.
// It is loaded once at startup and never mutated afterwards.
//
// Message templates may contain the tokens %n (reacts required), %h (duration
// in hours), %c (post channel mention), %e (relative expiry timestamp) and %r
// (trigger emoji).
type VoteDefinition struct {
	ID       string   `yaml:"id"        json:"id"`
	GuildIDs []string `yaml:"guild_ids" json:"guild_ids"`

	CommandName        string `yaml:"command_name"        json:"command_name"`
	CommandDescription string `yaml:"command_description" json:"command_description"`

	ConfirmationMessage   string `yaml:"confirmation_message"    json:"confirmation_message"`
	AlreadyRunningMessage string `yaml:"already_running_message" json:"already_running_message"`

	PostChannelID   string   `yaml:"post_channel_id"   json:"post_channel_id"`
	PostMessage     string   `yaml:"post_message"      json:"post_message"`
	PostNotifyRoles []string `yaml:"post_notify_roles" json:"post_notify_roles,omitempty"`

	TriggerEmoji   string  `yaml:"reaction"        json:"reaction"`
	ReactsRequired int     `yaml:"reacts_required" json:"reacts_required"`
	DurationHours  float64 `yaml:"duration_hours"  json:"duration_hours"`

	FailedMessage string `yaml:"failed_message" json:"failed_message"`

	PassedMessage     string   `yaml:"passed_message"      json:"passed_message"`
	PassedNotifyRoles []string `yaml:"passed_notify_roles" json:"passed_notify_roles,omitempty"`
}

// Duration converts DurationHours into a time.Duration.
func (d VoteDefinition) Duration() time.Duration {
	return time.Duration(d.DurationHours * float64(time.Hour))
}

// ExpiresAt returns the instant a vote posted at createdAt runs out.
func (d VoteDefinition) ExpiresAt(createdAt time.Time) time.Time {
	return createdAt.Add(d.Duration())
}

// AllowsGuild reports whether the definition may run in guildID.
func (d VoteDefinition) AllowsGuild(guildID string) bool {
	return guildID != "" && slices.Contains(d.GuildIDs, guildID)
}
