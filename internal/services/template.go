package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

// User-facing texts that are not part of a VoteDefinition.
const (
	InvalidGuildMessage    = "Invalid guild configuration. Please contact an administrator."
	InvalidChannelMessage  = "Invalid channel configuration. Please contact an administrator."
	UnexpectedErrorMessage = "An unexpected error occurred! Please report this to the admins/dev."

	createdReplyPrefix    = "Initiation message created: "
	originalMessagePrefix = "\n\nOriginal message: "
)

// MessageLink returns the permalink of a guild message.
func MessageLink(guildID, channelID, messageID string) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// NotifyRoles renders one role mention per line.
func NotifyRoles(roles []string) string {
	var b strings.Builder
	for _, id := range roles {
		b.WriteString("<@&")
		b.WriteString(id)
		b.WriteString(">\n")
	}
	return b.String()
}

// FormatMessage prefixes the role mentions and substitutes the first
// occurrence of each placeholder in template. created is the creation time of
// the vote message and anchors the %e expiry.
func FormatMessage(def domain.VoteDefinition, template string, roles []string, created time.Time) string {
	expiry := def.ExpiresAt(created)
	s := template
	s = strings.Replace(s, "%n", strconv.Itoa(def.ReactsRequired), 1)
	s = strings.Replace(s, "%h", strconv.FormatFloat(def.DurationHours, 'f', -1, 64), 1)
	s = strings.Replace(s, "%c", "<#"+def.PostChannelID+">", 1)
	s = strings.Replace(s, "%e", fmt.Sprintf("<t:%d:R>", expiry.Unix()), 1)
	s = strings.Replace(s, "%r", def.TriggerEmoji, 1)
	return NotifyRoles(roles) + s
}

// APIEmoji converts a configured emoji into the form reaction endpoints take:
// unicode as written, or name:id for custom emoji ("<:name:id>",
// "<a:name:id>", ":name:id").
func APIEmoji(e string) string {
	e = strings.TrimSpace(e)
	e = strings.TrimSuffix(strings.TrimPrefix(e, "<"), ">")
	e = strings.TrimPrefix(e, "a:")
	return strings.TrimPrefix(e, ":")
}

// NormalizeEmoji is APIEmoji without variation selectors. Use it only to
// compare emoji, never to send them.
func NormalizeEmoji(e string) string {
	return strings.ReplaceAll(APIEmoji(e), "\ufe0f", "")
}

// EffectiveCount is the number of reactions excluding the bot's own seed.
func EffectiveCount(s domain.ReactionState) int {
	n := s.Count
	if s.IncludesSelf {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}
