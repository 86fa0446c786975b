package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Intents covers slash commands, guild lookups and message reactions.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions

// NewSession creates a bot session (not yet connected) whose internal logging
// goes through log.
func NewSession(token string, log zerolog.Logger) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.LogLevel = sessionLogLevel(zerolog.GlobalLevel())
	BridgeLogger(log)
	return s, nil
}

// BridgeLogger sends discordgo's package-level log output to log.
func BridgeLogger(log zerolog.Logger) {
	lg := log.With().Str("component", "discordgo").Logger()
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		lg.WithLevel(zerologLevel(msgL)).Int("caller", caller).Msgf(format, a...)
	}
}

func zerologLevel(l int) zerolog.Level {
	switch l {
	case discordgo.LogError:
		return zerolog.ErrorLevel
	case discordgo.LogWarning:
		return zerolog.WarnLevel
	case discordgo.LogInformational:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func sessionLogLevel(l zerolog.Level) int {
	switch {
	case l <= zerolog.DebugLevel:
		return discordgo.LogDebug
	case l == zerolog.InfoLevel:
		return discordgo.LogInformational
	case l == zerolog.WarnLevel:
		return discordgo.LogWarning
	default:
		return discordgo.LogError
	}
}
