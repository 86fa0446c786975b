package discord

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
	"github.com/tbourn/vote-initiate-bot/internal/services"
	"github.com/tbourn/vote-initiate-bot/internal/sysutil"
)

// VoteHandler is what the dispatcher needs from a vote-initiate handler.
type VoteHandler interface {
	Definition() domain.VoteDefinition
	OnStartup(ctx context.Context)
	HandleInvocation(ctx context.Context, inv services.Invocation)
	OnReactionAdded(ctx context.Context, ev domain.ReactionEvent)
	OnReactionRemoved(ctx context.Context, ev domain.ReactionEvent)
	Close()
}

var _ VoteHandler = (*services.VoteInitiateHandler)(nil)

// Dispatcher routes gateway events to the vote handlers. Each event runs in
// its own goroutine; Close waits for them.
type Dispatcher struct {
	handlers  []VoteHandler
	byCommand map[string]VoteHandler
	waiters   *componentWaiters
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex // orders spawn against Close
	wg     sync.WaitGroup

	readyOnce sync.Once
}

// NewDispatcher indexes handlers by command name.
func NewDispatcher(handlers []VoteHandler, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handlers:  handlers,
		byCommand: make(map[string]VoteHandler, len(handlers)),
		waiters:   newComponentWaiters(),
		log:       log.With().Str("component", "dispatcher").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, h := range handlers {
		d.byCommand[h.Definition().CommandName] = h
	}
	return d
}

// Register attaches the dispatcher to s. Call before s.Open.
func (d *Dispatcher) Register(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) { d.onReady(s, r) })
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) { d.onInteraction(s, i.Interaction) })
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		d.onReaction(r.MessageReaction, VoteHandler.OnReactionAdded)
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		d.onReaction(r.MessageReaction, VoteHandler.OnReactionRemoved)
	})
}

// Close stops accepting events, waits up to timeout for running ones, and
// releases every handler's timers.
func (d *Dispatcher) Close(timeout time.Duration) {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		d.log.Warn().Dur("timeout", timeout).Msg("event handlers still running at shutdown")
	}
	for _, h := range d.handlers {
		h.Close()
	}
}

// onReady registers commands and runs recovery, once per process. Later
// READY events after reconnects are ignored.
func (d *Dispatcher) onReady(api commandAPI, r *discordgo.Ready) {
	d.readyOnce.Do(func() {
		var userID, appID string
		if r.User != nil {
			userID = r.User.ID
		}
		if r.Application != nil {
			appID = r.Application.ID
		}
		d.log.Info().Str("user_id", userID).Int("guilds", len(r.Guilds)).Msg("connected to gateway")

		defs := make([]domain.VoteDefinition, 0, len(d.handlers))
		for _, h := range d.handlers {
			defs = append(defs, h.Definition())
		}
		d.spawn(func(ctx context.Context) {
			if err := RegisterCommands(ctx, api, sysutil.FirstNonEmpty(appID, userID), defs, d.log); err != nil {
				d.log.Error().Err(err).Msg("command registration failed")
			}
		})
		for _, h := range d.handlers {
			d.spawn(h.OnStartup)
		}
	})
}

func (d *Dispatcher) onInteraction(api interactionAPI, i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		h, ok := d.byCommand[name]
		if !ok {
			d.log.Warn().Str("command", name).Msg("no handler for command")
			return
		}
		inv := newInvocation(api, i, d.waiters)
		d.spawn(func(ctx context.Context) { h.HandleInvocation(ctx, inv) })
	case discordgo.InteractionMessageComponent:
		if !d.waiters.dispatch(d.ctx, api, i) {
			d.log.Debug().Str("custom_id", i.MessageComponentData().CustomID).Msg("component interaction without waiter")
			if err := api.InteractionRespond(i, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredMessageUpdate,
			}, discordgo.WithContext(d.ctx)); err != nil {
				d.log.Warn().Err(err).Msg("could not acknowledge component interaction")
			}
		}
	}
}

func (d *Dispatcher) onReaction(r *discordgo.MessageReaction, fn func(VoteHandler, context.Context, domain.ReactionEvent)) {
	ev := domain.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
	}
	for _, h := range d.handlers {
		d.spawn(func(ctx context.Context) { fn(h, ctx, ev) })
	}
}

func (d *Dispatcher) spawn(fn func(context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(d.ctx)
	}()
}
