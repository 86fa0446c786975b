// Command bot runs the vote-initiate Discord bot and, optionally, its admin
// HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/vote-initiate-bot/internal/config"
	"github.com/tbourn/vote-initiate-bot/internal/discord"
	"github.com/tbourn/vote-initiate-bot/internal/domain"
	httpapi "github.com/tbourn/vote-initiate-bot/internal/http"
	"github.com/tbourn/vote-initiate-bot/internal/observability"
	"github.com/tbourn/vote-initiate-bot/internal/repo"
	"github.com/tbourn/vote-initiate-bot/internal/scheduler"
	"github.com/tbourn/vote-initiate-bot/internal/services"
	"github.com/tbourn/vote-initiate-bot/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := sysutil.InitLogging(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("bot exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	defs, err := config.LoadVoteDefinitions(cfg.VotesPath)
	if err != nil {
		return fmt.Errorf("load vote definitions: %w", err)
	}
	logger.Info().Int("definitions", len(defs)).Str("path", cfg.VotesPath).Str("version", version).Msg("starting")

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB(db, logger)
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	session, err := discord.NewSession(cfg.DiscordToken, logger)
	if err != nil {
		return err
	}

	sched := scheduler.New()
	defer sched.Stop()

	platform := discord.NewPlatform(session)
	handlers := buildHandlers(defs, db, platform, sched, cfg, logger)

	dispatcher := discord.NewDispatcher(asVoteHandlers(handlers), logger)
	dispatcher.Register(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("gateway close")
		}
	}()
	defer dispatcher.Close(cfg.ShutdownTimeout)

	srvErr := make(chan error, 1)
	var srv *http.Server
	if cfg.HTTPEnabled {
		srv = newHTTPServer(cfg, services.NewRegistry(handlers...))
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("admin api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-srvErr:
		logger.Error().Err(err).Msg("admin api failed")
	}

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("admin api shutdown")
		}
	}
	return nil
}

func buildHandlers(defs []domain.VoteDefinition, db *gorm.DB, p services.Platform, s services.Scheduler, cfg config.Config, logger zerolog.Logger) []*services.VoteInitiateHandler {
	out := make([]*services.VoteInitiateHandler, 0, len(defs))
	for _, def := range defs {
		h := services.NewVoteInitiateHandler(def, db, voteRecordRepoShim{}, p, s, logger)
		h.ConfirmTimeout = cfg.ConfirmTimeout
		out = append(out, h)
	}
	return out
}

func asVoteHandlers(hs []*services.VoteInitiateHandler) []discord.VoteHandler {
	out := make([]discord.VoteHandler, len(hs))
	for i, h := range hs {
		out[i] = h
	}
	return out
}

func newHTTPServer(cfg config.Config, votes *services.Registry) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.NewRouter(votes, cfg),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

func closeDB(db *gorm.DB, logger zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn().Err(err).Msg("database close")
	}
}

// voteRecordRepoShim adapts the repo free functions to services.VoteRecordRepo.
type voteRecordRepoShim struct{}

func (voteRecordRepoShim) CreateVoteRecord(ctx context.Context, db *gorm.DB, commandID, guildID, channelID, messageID string) (*domain.VoteRecord, error) {
	return repo.CreateVoteRecord(ctx, db, commandID, guildID, channelID, messageID)
}

func (voteRecordRepoShim) FindVoteRecord(ctx context.Context, db *gorm.DB, commandID string, guildIDs []string) (*domain.VoteRecord, error) {
	return repo.FindVoteRecord(ctx, db, commandID, guildIDs)
}

func (voteRecordRepoShim) DestroyVoteRecord(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DestroyVoteRecord(ctx, db, id)
}

var _ services.VoteRecordRepo = voteRecordRepoShim{}
