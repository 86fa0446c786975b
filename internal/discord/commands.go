package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

type commandAPI interface {
	ApplicationCommandCreate(appID string, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// adminOnly hides a command from everyone without Administrator until a
// server admin grants it.
var adminOnly int64 = 0

// BuildCommand returns the slash command for def.
func BuildCommand(def domain.VoteDefinition) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Type:                     discordgo.ChatApplicationCommand,
		Name:                     def.CommandName,
		Description:              def.CommandDescription,
		DefaultMemberPermissions: &adminOnly,
	}
}

// RegisterCommands creates (or overwrites) every definition's command in each
// of its guilds. Failures are collected and do not stop the remaining
// registrations.
func RegisterCommands(ctx context.Context, api commandAPI, appID string, defs []domain.VoteDefinition, log zerolog.Logger) error {
	var errs []error
	for _, def := range defs {
		cmd := BuildCommand(def)
		for _, guildID := range def.GuildIDs {
			if _, err := api.ApplicationCommandCreate(appID, guildID, cmd, discordgo.WithContext(ctx)); err != nil {
				errs = append(errs, fmt.Errorf("register /%s in guild %s: %w", def.CommandName, guildID, err))
				continue
			}
			log.Debug().
				Str("definition_id", def.ID).
				Str("command", def.CommandName).
				Str("guild_id", guildID).
				Msg("registered command")
		}
	}
	return errors.Join(errs...)
}

type commandDeleter interface {
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
}

// DeleteCommand removes a registered command. An empty guildID targets a
// global command.
func DeleteCommand(ctx context.Context, api commandDeleter, appID, guildID, commandID string) error {
	if appID == "" || commandID == "" {
		return errors.New("application id and command id are required")
	}
	if err := api.ApplicationCommandDelete(appID, guildID, commandID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete command %s: %w", commandID, mapError(err))
	}
	return nil
}
