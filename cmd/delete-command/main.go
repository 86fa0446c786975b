// Command delete-command removes a slash command left behind by a renamed or
// removed vote definition.
//
//	delete-command [-app APP_ID] <guild-id> <command-id>
//
// DISCORD_TOKEN (and CLIENT_ID when -app is omitted) are read from the
// environment or a .env file. Pass "" as guild-id for a global command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/vote-initiate-bot/internal/discord"
	"github.com/tbourn/vote-initiate-bot/internal/sysutil"
)

func main() {
	sysutil.InitLogging("info", true)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal().Err(err).Msg("read .env")
	}

	appID := flag.String("app", os.Getenv("CLIENT_ID"), "application (client) id")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: delete-command [-app APP_ID] <guild-id> <command-id>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	guildID, commandID := flag.Arg(0), flag.Arg(1)

	token := strings.TrimPrefix(strings.TrimSpace(os.Getenv("DISCORD_TOKEN")), "Bot ")
	if token == "" {
		log.Fatal().Msg("DISCORD_TOKEN must not be empty")
	}
	s, err := discord.NewSession(token, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Send()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().Str("guild_id", guildID).Str("command_id", commandID).Msg("deleting command")
	if err := discord.DeleteCommand(ctx, s, *appID, guildID, commandID); err != nil {
		log.Fatal().Err(err).Msg("delete failed")
	}
	log.Info().Msg("deleted")
}
