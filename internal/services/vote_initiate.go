// This file implements the vote-initiate state machine. One handler exists per
// configured VoteDefinition and owns at most one active vote at a time:
//
//	Idle --invocation/recovery--> Active --pass/fail--> Idle
//
// While Active, the handler keeps an in-memory watch (the persisted record, the
// posted message, and the expiry timer). Reaction events, the expiry timer and
// explicit re-checks all converge on the same resolution path, which tears the
// watch down before any outcome message is sent. Teardown only succeeds for
// the caller that still sees its watch as current, so a vote resolves exactly
// once no matter how those sources interleave.

package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
	"github.com/tbourn/vote-initiate-bot/internal/metrics"
)

// DefaultConfirmTimeout bounds how long the invoker has to confirm a new vote.
const DefaultConfirmTimeout = 60 * time.Second

// Event names used in logs, spans and error metrics.
const (
	EventStartup        = "startup"
	EventInvocation     = "invocation"
	EventReactionAdd    = "reaction_add"
	EventReactionRemove = "reaction_remove"
	EventExpiry         = "expiry"
	EventRecheck        = "recheck"
)

var tracer = otel.Tracer("github.com/tbourn/vote-initiate-bot/internal/services")

// activeWatch is the runtime state of a running vote. Its fields are set
// before it is published as the handler's current watch and never change.
type activeWatch struct {
	id      string
	record  *domain.VoteRecord
	message *domain.Message
	cancel  func()
}

// VoteInitiateHandler runs the vote-initiate lifecycle for one definition.
// All exported methods are safe for concurrent use.
type VoteInitiateHandler struct {
	Def       domain.VoteDefinition
	DB        *gorm.DB
	Repo      VoteRecordRepo
	Platform  Platform
	Scheduler Scheduler
	Log       zerolog.Logger

	// Now is the clock used for expiry checks and template timestamps.
	Now func() time.Time
	// ConfirmTimeout bounds the confirmation prompt.
	ConfirmTimeout time.Duration

	mu       sync.Mutex
	current  *activeWatch
	creating bool
}

// NewVoteInitiateHandler wires a handler with the system clock and the
// default confirmation timeout. The logger is scoped to the definition.
func NewVoteInitiateHandler(def domain.VoteDefinition, db *gorm.DB, r VoteRecordRepo, p Platform, s Scheduler, log zerolog.Logger) *VoteInitiateHandler {
	return &VoteInitiateHandler{
		Def:       def,
		DB:        db,
		Repo:      r,
		Platform:  p,
		Scheduler: s,
		Log: log.With().
			Str("component", "vote_initiate").
			Str("definition_id", def.ID).
			Str("command", def.CommandName).
			Logger(),
		Now:            time.Now,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

//
// Entry points. Each runs as a leaf task: failures are logged and counted,
// never returned to the dispatcher.
//

// OnStartup re-attaches to a vote persisted by a previous process, or drops
// its record when the message is gone. Call once the platform is connected.
func (h *VoteInitiateHandler) OnStartup(ctx context.Context) {
	_ = h.run(ctx, EventStartup, h.resume)
}

// HandleInvocation processes a request to start a new vote.
func (h *VoteInitiateHandler) HandleInvocation(ctx context.Context, inv Invocation) {
	_ = h.run(ctx, EventInvocation, func(ctx context.Context) error {
		err := h.invoke(ctx, inv)
		if err != nil {
			if rerr := inv.Reply(ctx, UnexpectedErrorMessage); rerr != nil {
				h.Log.Warn().Err(rerr).Msg("could not report error to invoker")
			}
		}
		return err
	})
}

// OnReactionAdded handles a reaction added anywhere; events for other
// messages or emoji are ignored.
func (h *VoteInitiateHandler) OnReactionAdded(ctx context.Context, ev domain.ReactionEvent) {
	w := h.watch()
	if !h.matches(w, ev) {
		return
	}
	_ = h.run(ctx, EventReactionAdd, func(ctx context.Context) error {
		state, err := h.reactionState(ctx, w)
		if err != nil || state == nil {
			return err
		}
		return h.countAndMaybePass(ctx, w, *state)
	})
}

// OnReactionRemoved re-seeds the trigger reaction when the last one is removed.
func (h *VoteInitiateHandler) OnReactionRemoved(ctx context.Context, ev domain.ReactionEvent) {
	w := h.watch()
	if !h.matches(w, ev) {
		return
	}
	_ = h.run(ctx, EventReactionRemove, func(ctx context.Context) error {
		state, err := h.reactionState(ctx, w)
		if err != nil || state == nil {
			return err
		}
		h.Log.Debug().Int("count", state.Count).Msg("reaction removed")
		if state.Count > 0 || !h.isCurrent(w) {
			return nil
		}
		if err := h.Platform.AddReaction(ctx, w.message.ChannelID, w.message.ID, h.emoji()); err != nil {
			return fmt.Errorf("re-add seed reaction: %w", err)
		}
		return nil
	})
}

// Recheck runs one reconciliation pass against the live message, resolving
// the vote if it has passed or expired. It is a no-op while Idle.
func (h *VoteInitiateHandler) Recheck(ctx context.Context) error {
	return h.run(ctx, EventRecheck, func(ctx context.Context) error {
		w := h.watch()
		if w == nil {
			return nil
		}
		return h.updateAndMaybeResolve(ctx, w)
	})
}

// Close cancels the expiry timer of the current watch without touching the
// persisted record, so the vote is resumed by the next process.
func (h *VoteInitiateHandler) Close() {
	h.mu.Lock()
	w := h.current
	h.current = nil
	h.mu.Unlock()
	if w != nil {
		w.cancel()
		metrics.VotesActive.WithLabelValues(h.Def.ID).Set(0)
	}
}

// run executes fn inside a span and turns every failure, panics included,
// into a log line and an error metric.
func (h *VoteInitiateHandler) run(ctx context.Context, event string, fn func(context.Context) error) (err error) {
	ctx, span := tracer.Start(ctx, "vote_initiate."+event, trace.WithAttributes(
		attribute.String("vote.definition_id", h.Def.ID),
		attribute.String("vote.event", event),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			h.Log.Error().
				Str("event", event).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("vote handler panicked")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.HandlerErrors.WithLabelValues(h.Def.ID, event).Inc()
		}
	}()

	if err = fn(ctx); err != nil {
		h.Log.Error().Err(err).Str("event", event).Msg("vote handler failed")
	}
	return err
}

//
// State machine
//

func (h *VoteInitiateHandler) resume(ctx context.Context) error {
	rec, err := h.Repo.FindVoteRecord(ctx, h.DB, h.Def.ID, h.Def.GuildIDs)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.Log.Debug().Msg("no existing vote message")
			return nil
		}
		return fmt.Errorf("find vote record: %w", err)
	}

	msg := h.findAssociatedMessage(ctx, rec)
	if msg == nil {
		h.Log.Warn().Str("record_id", rec.ID).Msg("deleting stale vote record")
		metrics.VotesResolved.WithLabelValues(h.Def.ID, metrics.OutcomeStale).Inc()
		if err := h.Repo.DestroyVoteRecord(ctx, h.DB, rec.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("destroy stale vote record: %w", err)
		}
		return nil
	}

	h.Log.Info().Str("message_id", msg.ID).Msg("found existing vote message, resuming")
	return h.startWatch(ctx, rec, msg)
}

func (h *VoteInitiateHandler) invoke(ctx context.Context, inv Invocation) error {
	if w := h.currentIfValid(ctx); w != nil {
		if err := h.updateAndMaybeResolve(ctx, w); err != nil {
			h.Log.Warn().Err(err).Msg("catch-up pass failed")
		}
	}
	if w := h.watch(); w != nil {
		return inv.Reply(ctx, h.alreadyRunning(w))
	}

	guildID := inv.GuildID()
	if !h.Def.AllowsGuild(guildID) {
		h.Log.Warn().Err(ErrInvalidGuild).Str("guild_id", guildID).Msg("invocation rejected")
		return inv.Reply(ctx, InvalidGuildMessage)
	}
	if err := h.Platform.FetchTextChannel(ctx, guildID, h.Def.PostChannelID); err != nil {
		h.Log.Warn().Err(fmt.Errorf("%w: %w", ErrInvalidChannel, err)).Str("channel_id", h.Def.PostChannelID).Msg("invocation rejected")
		return inv.Reply(ctx, InvalidChannelMessage)
	}

	ok, err := inv.Confirm(ctx, h.format(h.Def.ConfirmationMessage, nil, h.now()), h.ConfirmTimeout)
	if err != nil {
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	if !ok {
		h.Log.Debug().Str("user_id", inv.UserID()).Msg("vote not confirmed")
		return inv.DeleteReply(ctx)
	}

	// Another invocation may have started a vote while we were waiting.
	if !h.beginCreate() {
		if w := h.watch(); w != nil {
			return inv.EditReply(ctx, h.alreadyRunning(w))
		}
		return inv.EditReply(ctx, h.Def.AlreadyRunningMessage)
	}
	defer h.endCreate()

	link, err := h.createVote(ctx, inv, guildID)
	if err != nil {
		return err
	}
	return inv.EditReply(ctx, createdReplyPrefix+link)
}

// createVote posts the prompt, persists it, seeds the reaction and starts
// watching, in that order. A persistence failure leaves an orphaned message
// but no record that would block the next attempt.
func (h *VoteInitiateHandler) createVote(ctx context.Context, inv Invocation, guildID string) (string, error) {
	h.Log.Info().Str("user_id", inv.UserID()).Msg("creating new initiation message")

	now := h.now()
	msg, err := h.Platform.SendMessage(ctx, h.Def.PostChannelID, h.format(h.Def.PostMessage, h.Def.PostNotifyRoles, now))
	if err != nil {
		return "", fmt.Errorf("send vote message: %w", err)
	}
	if msg.GuildID == "" {
		msg.GuildID = guildID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	rec, err := h.Repo.CreateVoteRecord(ctx, h.DB, h.Def.ID, guildID, msg.ChannelID, msg.ID)
	if err != nil {
		h.Log.Error().Err(err).Str("message_id", msg.ID).Msg("vote message posted but not persisted; message is orphaned")
		return "", fmt.Errorf("persist vote record: %w", err)
	}
	metrics.VotesStarted.WithLabelValues(h.Def.ID).Inc()

	if err := h.Platform.AddReaction(ctx, msg.ChannelID, msg.ID, h.emoji()); err != nil {
		h.Log.Warn().Err(err).Str("message_id", msg.ID).Msg("could not seed trigger reaction")
	}

	if err := h.startWatch(ctx, rec, msg); err != nil {
		return "", err
	}
	return MessageLink(guildID, msg.ChannelID, msg.ID), nil
}

// startWatch arms the expiry timer, publishes the watch and runs one
// reconciliation pass. The timer callback ignores any watch that is not
// current, so arming it before publication is safe.
func (h *VoteInitiateHandler) startWatch(ctx context.Context, rec *domain.VoteRecord, msg *domain.Message) error {
	w := &activeWatch{id: uuid.NewString(), record: rec, message: msg}
	expiresAt := h.Def.ExpiresAt(msg.CreatedAt)
	w.cancel = h.Scheduler.ScheduleAt(expiresAt, func() { h.onExpiry(w) })

	h.mu.Lock()
	if h.current != nil {
		h.mu.Unlock()
		w.cancel()
		return ErrVoteAlreadyRunning
	}
	h.current = w
	h.mu.Unlock()

	metrics.VotesActive.WithLabelValues(h.Def.ID).Set(1)
	h.Log.Info().
		Str("watch_id", w.id).
		Str("message_id", msg.ID).
		Time("expires_at", expiresAt).
		Str("expires", humanize.Time(expiresAt)).
		Msg("started listening for reactions")

	return h.updateAndMaybeResolve(ctx, w)
}

func (h *VoteInitiateHandler) onExpiry(w *activeWatch) {
	if !h.isCurrent(w) {
		return
	}
	_ = h.run(context.Background(), EventExpiry, func(ctx context.Context) error {
		return h.updateAndMaybeResolve(ctx, w)
	})
}

// updateAndMaybeResolve is the idempotent reconciliation routine: check for a
// pass against the live reaction state first, then for expiry.
func (h *VoteInitiateHandler) updateAndMaybeResolve(ctx context.Context, w *activeWatch) error {
	if !h.isCurrent(w) {
		return nil
	}

	state, err := h.reactionState(ctx, w)
	switch {
	case err != nil:
		// Still let the expiry check run; a flaky read must not keep a vote alive.
		h.Log.Warn().Err(err).Msg("could not read reaction state")
	case state != nil && state.Count > 0:
		if err := h.countAndMaybePass(ctx, w, *state); err != nil {
			return err
		}
	}

	if !h.isCurrent(w) {
		return nil
	}
	if !h.now().Before(h.Def.ExpiresAt(w.message.CreatedAt)) {
		return h.fail(ctx, w)
	}
	return nil
}

// reactionState re-fetches the trigger reaction. A nil state with a nil error
// means the message is gone and the watch has been torn down.
func (h *VoteInitiateHandler) reactionState(ctx context.Context, w *activeWatch) (*domain.ReactionState, error) {
	state, err := h.Platform.ReactionState(ctx, w.message.ChannelID, w.message.ID, h.emoji())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.Log.Warn().Str("message_id", w.message.ID).Msg("vote message disappeared")
			if h.teardown(ctx, w) {
				metrics.VotesResolved.WithLabelValues(h.Def.ID, metrics.OutcomeStale).Inc()
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read reaction state: %w", err)
	}
	return &state, nil
}

// countAndMaybePass removes the bot's seed reaction once a real user has
// reacted, then passes the vote if enough users have. The effective count is
// derived from the fetched state and does not depend on the removal.
func (h *VoteInitiateHandler) countAndMaybePass(ctx context.Context, w *activeWatch, state domain.ReactionState) error {
	h.Log.Debug().Int("count", state.Count).Bool("includes_self", state.IncludesSelf).Msg("reaction count")

	if state.Count > 1 && state.IncludesSelf {
		if err := h.Platform.RemoveReaction(ctx, w.message.ChannelID, w.message.ID, h.emoji(), h.Platform.SelfID()); err != nil {
			h.Log.Warn().Err(err).Msg("could not remove seed reaction")
		}
	}
	if EffectiveCount(state) >= h.Def.ReactsRequired {
		return h.pass(ctx, w)
	}
	return nil
}

func (h *VoteInitiateHandler) pass(ctx context.Context, w *activeWatch) error {
	if !h.teardown(ctx, w) {
		return nil
	}
	h.Log.Info().Str("message_id", w.message.ID).Msg("vote passed")
	metrics.VotesResolved.WithLabelValues(h.Def.ID, metrics.OutcomePassed).Inc()

	content := h.format(h.Def.PassedMessage, h.Def.PassedNotifyRoles, w.message.CreatedAt) +
		originalMessagePrefix + MessageLink(w.record.GuildID, w.record.PostChannelID, w.record.PostMessageID)
	// The record is gone, so the outcome must be delivered even during shutdown.
	if _, err := h.Platform.SendMessage(context.WithoutCancel(ctx), w.message.ChannelID, content); err != nil {
		return fmt.Errorf("send passed message: %w", err)
	}
	return nil
}

func (h *VoteInitiateHandler) fail(ctx context.Context, w *activeWatch) error {
	if !h.teardown(ctx, w) {
		return nil
	}
	h.Log.Info().Str("message_id", w.message.ID).Msg("time expired, vote failed")
	metrics.VotesResolved.WithLabelValues(h.Def.ID, metrics.OutcomeFailed).Inc()

	content := h.format(h.Def.FailedMessage, h.Def.PostNotifyRoles, w.message.CreatedAt)
	if err := h.Platform.EditMessage(context.WithoutCancel(ctx), w.message.ChannelID, w.message.ID, content); err != nil {
		return fmt.Errorf("edit failed message: %w", err)
	}
	return nil
}

// teardown ends w if it is still the current watch and reports whether this
// call did so. Only the winning caller cancels the timer and destroys the
// record.
func (h *VoteInitiateHandler) teardown(ctx context.Context, w *activeWatch) bool {
	h.mu.Lock()
	if w == nil || h.current != w {
		h.mu.Unlock()
		return false
	}
	h.current = nil
	h.mu.Unlock()

	w.cancel()
	metrics.VotesActive.WithLabelValues(h.Def.ID).Set(0)

	// The record must go even if the triggering request is cancelled.
	if err := h.Repo.DestroyVoteRecord(context.WithoutCancel(ctx), h.DB, w.record.ID); err != nil {
		h.Log.Error().Err(err).Str("record_id", w.record.ID).Msg("could not destroy vote record")
	}
	h.Log.Info().Str("watch_id", w.id).Msg("stopped listening for reactions")
	return true
}

// currentIfValid returns the current watch after checking its message still
// exists; a watch whose message is gone is torn down.
func (h *VoteInitiateHandler) currentIfValid(ctx context.Context) *activeWatch {
	w := h.watch()
	if w == nil {
		return nil
	}
	if h.findAssociatedMessage(ctx, w.record) == nil {
		if h.teardown(ctx, w) {
			metrics.VotesResolved.WithLabelValues(h.Def.ID, metrics.OutcomeStale).Inc()
		}
		return nil
	}
	return w
}

// findAssociatedMessage resolves guild, channel and message of rec. Any
// failure makes the record stale and yields nil.
func (h *VoteInitiateHandler) findAssociatedMessage(ctx context.Context, rec *domain.VoteRecord) *domain.Message {
	lg := h.Log.With().Str("record_id", rec.ID).Logger()

	if err := h.Platform.FetchGuild(ctx, rec.GuildID); err != nil {
		lg.Warn().Err(err).Str("guild_id", rec.GuildID).Msg("guild unreachable")
		return nil
	}
	if rec.PostChannelID != h.Def.PostChannelID {
		lg.Warn().Str("channel_id", rec.PostChannelID).Msg("post channel id mismatch")
		return nil
	}
	if err := h.Platform.FetchTextChannel(ctx, rec.GuildID, rec.PostChannelID); err != nil {
		lg.Warn().Err(err).Msg("post channel is not a valid text channel")
		return nil
	}
	msg, err := h.Platform.FetchMessage(ctx, rec.PostChannelID, rec.PostMessageID)
	if err != nil {
		lg.Warn().Err(err).Str("message_id", rec.PostMessageID).Msg("message not found")
		return nil
	}
	if msg.GuildID == "" {
		msg.GuildID = rec.GuildID
	}
	return msg
}

//
// Helpers
//

func (h *VoteInitiateHandler) watch() *activeWatch {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *VoteInitiateHandler) isCurrent(w *activeWatch) bool {
	return w != nil && h.watch() == w
}

func (h *VoteInitiateHandler) beginCreate() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil || h.creating {
		return false
	}
	h.creating = true
	return true
}

func (h *VoteInitiateHandler) endCreate() {
	h.mu.Lock()
	h.creating = false
	h.mu.Unlock()
}

func (h *VoteInitiateHandler) matches(w *activeWatch, ev domain.ReactionEvent) bool {
	return w != nil &&
		ev.MessageID == w.message.ID &&
		NormalizeEmoji(ev.Emoji) == NormalizeEmoji(h.Def.TriggerEmoji)
}

// emoji is the trigger in the spelling sent to the platform.
func (h *VoteInitiateHandler) emoji() string {
	return APIEmoji(h.Def.TriggerEmoji)
}

func (h *VoteInitiateHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h *VoteInitiateHandler) format(template string, roles []string, created time.Time) string {
	return FormatMessage(h.Def, template, roles, created)
}

func (h *VoteInitiateHandler) alreadyRunning(w *activeWatch) string {
	return h.Def.AlreadyRunningMessage + MessageLink(w.record.GuildID, w.message.ChannelID, w.message.ID)
}
