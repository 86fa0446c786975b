package discord

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
	"github.com/tbourn/vote-initiate-bot/internal/services"
)

// ----- Fake handler -----

type fakeHandler struct {
	def domain.VoteDefinition

	mu          sync.Mutex
	startups    int
	invocations []services.Invocation
	added       []domain.ReactionEvent
	removed     []domain.ReactionEvent
	closed      bool
}

func (h *fakeHandler) Definition() domain.VoteDefinition { return h.def }

func (h *fakeHandler) OnStartup(context.Context) {
	h.mu.Lock()
	h.startups++
	h.mu.Unlock()
}

func (h *fakeHandler) HandleInvocation(_ context.Context, inv services.Invocation) {
	h.mu.Lock()
	h.invocations = append(h.invocations, inv)
	h.mu.Unlock()
}

func (h *fakeHandler) OnReactionAdded(_ context.Context, ev domain.ReactionEvent) {
	h.mu.Lock()
	h.added = append(h.added, ev)
	h.mu.Unlock()
}

func (h *fakeHandler) OnReactionRemoved(_ context.Context, ev domain.ReactionEvent) {
	h.mu.Lock()
	h.removed = append(h.removed, ev)
	h.mu.Unlock()
}

func (h *fakeHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// ----- Fake command API -----

type fakeCommandAPI struct {
	mu      sync.Mutex
	created []string // appID/guildID/name
	failFor string
}

func (f *fakeCommandAPI) ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if guildID == f.failFor {
		return nil, errors.New("missing access")
	}
	f.created = append(f.created, appID+"/"+guildID+"/"+cmd.Name)
	return cmd, nil
}

func newTestDispatcher() (*Dispatcher, *fakeHandler, *fakeHandler) {
	kick := &fakeHandler{def: domain.VoteDefinition{ID: "kick", CommandName: "votekick", GuildIDs: []string{"g1", "g2"}}}
	ban := &fakeHandler{def: domain.VoteDefinition{ID: "ban", CommandName: "voteban", GuildIDs: []string{"g1"}}}
	return NewDispatcher([]VoteHandler{kick, ban}, zerolog.New(io.Discard)), kick, ban
}

// ----- Tests -----

func TestDispatcher_ReadyRunsOnce(t *testing.T) {
	d, kick, ban := newTestDispatcher()
	api := &fakeCommandAPI{}
	ready := &discordgo.Ready{User: &discordgo.User{ID: "bot"}, Application: &discordgo.Application{ID: "app"}}

	d.onReady(api, ready)
	d.onReady(api, ready)
	d.Close(time.Second)

	if kick.startups != 1 || ban.startups != 1 {
		t.Fatalf("startups = %d/%d, want 1/1", kick.startups, ban.startups)
	}
	if len(api.created) != 3 {
		t.Fatalf("created = %v", api.created)
	}
	for _, c := range api.created {
		if !strings.HasPrefix(c, "app/") {
			t.Fatalf("registered with wrong application id: %s", c)
		}
	}
}

func TestDispatcher_RoutesCommandsByName(t *testing.T) {
	d, kick, ban := newTestDispatcher()
	i := commandInteraction("u1")
	i.Data = discordgo.ApplicationCommandInteractionData{Name: "voteban"}

	d.onInteraction(newFakeInteractionAPI(), i)
	unknown := commandInteraction("u1")
	unknown.Data = discordgo.ApplicationCommandInteractionData{Name: "other"}
	d.onInteraction(newFakeInteractionAPI(), unknown)
	d.Close(time.Second)

	if len(ban.invocations) != 1 || len(kick.invocations) != 0 {
		t.Fatalf("invocations kick=%d ban=%d", len(kick.invocations), len(ban.invocations))
	}
	if ban.invocations[0].UserID() != "u1" || ban.invocations[0].GuildID() != "g1" {
		t.Fatalf("invocation ids wrong")
	}
}

func TestDispatcher_AcknowledgesOrphanedClicks(t *testing.T) {
	d, _, _ := newTestDispatcher()
	api := newFakeInteractionAPI()

	d.onInteraction(api, buttonClick("u1", "expired-prompt:yes"))
	d.Close(time.Second)

	if len(api.responds) != 1 || api.responds[0].resp.Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Fatalf("late click not acknowledged: %+v", api.responds)
	}
}

func TestDispatcher_FansOutReactions(t *testing.T) {
	d, kick, ban := newTestDispatcher()
	r := &discordgo.MessageReaction{
		UserID: "u1", MessageID: "m1", ChannelID: "c1", GuildID: "g1",
		Emoji: discordgo.Emoji{Name: "party", ID: "42"},
	}

	d.onReaction(r, VoteHandler.OnReactionAdded)
	d.onReaction(r, VoteHandler.OnReactionRemoved)
	d.Close(time.Second)

	for _, h := range []*fakeHandler{kick, ban} {
		if len(h.added) != 1 || len(h.removed) != 1 {
			t.Fatalf("%s: added=%d removed=%d", h.def.ID, len(h.added), len(h.removed))
		}
		want := domain.ReactionEvent{GuildID: "g1", ChannelID: "c1", MessageID: "m1", UserID: "u1", Emoji: "party:42"}
		if h.added[0] != want {
			t.Fatalf("event = %+v", h.added[0])
		}
	}
}

func TestDispatcher_CloseStopsNewWorkAndClosesHandlers(t *testing.T) {
	d, kick, ban := newTestDispatcher()
	d.Close(time.Second)

	d.onReaction(&discordgo.MessageReaction{MessageID: "m1", Emoji: discordgo.Emoji{Name: "👍"}}, VoteHandler.OnReactionAdded)

	if len(kick.added) != 0 {
		t.Fatalf("event handled after Close")
	}
	if !kick.closed || !ban.closed {
		t.Fatalf("handlers not closed")
	}
}

func TestRegisterCommands_CollectsErrors(t *testing.T) {
	api := &fakeCommandAPI{failFor: "g2"}
	defs := []domain.VoteDefinition{{ID: "kick", CommandName: "votekick", CommandDescription: "Start a kick vote", GuildIDs: []string{"g1", "g2", "g3"}}}

	err := RegisterCommands(context.Background(), api, "app", defs, zerolog.New(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "guild g2") {
		t.Fatalf("err = %v", err)
	}
	if len(api.created) != 2 {
		t.Fatalf("created = %v; later guilds should still register", api.created)
	}
}

func TestBuildCommand(t *testing.T) {
	cmd := BuildCommand(domain.VoteDefinition{CommandName: "votekick", CommandDescription: "Start a kick vote"})
	if cmd.Name != "votekick" || cmd.Description != "Start a kick vote" || cmd.Type != discordgo.ChatApplicationCommand {
		t.Fatalf("cmd = %+v", cmd)
	}
	if cmd.DefaultMemberPermissions == nil || *cmd.DefaultMemberPermissions != 0 {
		t.Fatalf("command must default to administrators only")
	}
}

func TestLogLevelMapping(t *testing.T) {
	if zerologLevel(discordgo.LogError) != zerolog.ErrorLevel || zerologLevel(discordgo.LogDebug) != zerolog.DebugLevel {
		t.Fatalf("zerologLevel mapping wrong")
	}
	if sessionLogLevel(zerolog.InfoLevel) != discordgo.LogInformational || sessionLogLevel(zerolog.ErrorLevel) != discordgo.LogError {
		t.Fatalf("sessionLogLevel mapping wrong")
	}
}

type fakeDeleter struct {
	calls [][3]string
	err   error
}

func (f *fakeDeleter) ApplicationCommandDelete(appID, guildID, cmdID string, _ ...discordgo.RequestOption) error {
	f.calls = append(f.calls, [3]string{appID, guildID, cmdID})
	return f.err
}

func TestDeleteCommand(t *testing.T) {
	api := &fakeDeleter{}
	if err := DeleteCommand(context.Background(), api, "app", "g1", "c1"); err != nil {
		t.Fatalf("DeleteCommand: %v", err)
	}
	if len(api.calls) != 1 || api.calls[0] != [3]string{"app", "g1", "c1"} {
		t.Fatalf("calls = %v", api.calls)
	}
	if err := DeleteCommand(context.Background(), api, "", "g1", "c1"); err == nil {
		t.Fatalf("missing app id should fail")
	}

	api.err = notFound()
	if err := DeleteCommand(context.Background(), api, "app", "g1", "gone"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
