package discord

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/tbourn/vote-initiate-bot/internal/services"
	"github.com/tbourn/vote-initiate-bot/internal/sysutil"
)

const (
	confirmLabel = "Create vote"
	cancelLabel  = "Cancel"

	confirmSuffix = ":yes"
	cancelSuffix  = ":no"
)

// interactionAPI is the subset of *discordgo.Session used to answer
// interactions.
type interactionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
}

// Invocation is one slash command interaction. Every answer is ephemeral.
type Invocation struct {
	api     interactionAPI
	i       *discordgo.Interaction
	waiters *componentWaiters

	mu        sync.Mutex
	responded bool
}

var _ services.Invocation = (*Invocation)(nil)

func newInvocation(api interactionAPI, i *discordgo.Interaction, w *componentWaiters) *Invocation {
	return &Invocation{api: api, i: i, waiters: w}
}

func (inv *Invocation) GuildID() string { return inv.i.GuildID }

func (inv *Invocation) UserID() string { return interactionUserID(inv.i) }

// Reply sends content as the first answer, or replaces the existing one.
func (inv *Invocation) Reply(ctx context.Context, content string) error {
	if inv.hasResponded() {
		return inv.EditReply(ctx, content)
	}
	return inv.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// Confirm answers with prompt and two buttons, then waits for the invoker to
// click one. Clicks by other users are acknowledged and ignored.
func (inv *Invocation) Confirm(ctx context.Context, prompt string, timeout time.Duration) (bool, error) {
	prefix := uuid.NewString()
	clicks := inv.waiters.add(prefix, inv.UserID())
	defer inv.waiters.remove(prefix)

	err := inv.respond(ctx, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    prompt,
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: confirmButtons(prefix),
		},
	})
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case click := <-clicks.ch:
		// Drop the buttons; the prompt text stays until the next edit.
		err := inv.api.InteractionRespond(click.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    prompt,
				Components: []discordgo.MessageComponent{},
			},
		}, discordgo.WithContext(ctx))
		return click.customID == prefix+confirmSuffix, err
	case <-timer.C:
		// Strip the buttons so nobody clicks a dead prompt.
		_, err := inv.api.InteractionResponseEdit(inv.i, &discordgo.WebhookEdit{
			Components: &[]discordgo.MessageComponent{},
		}, discordgo.WithContext(ctx))
		return false, err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (inv *Invocation) EditReply(ctx context.Context, content string) error {
	_, err := inv.api.InteractionResponseEdit(inv.i, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &[]discordgo.MessageComponent{},
	}, discordgo.WithContext(ctx))
	return err
}

func (inv *Invocation) DeleteReply(ctx context.Context) error {
	return inv.api.InteractionResponseDelete(inv.i, discordgo.WithContext(ctx))
}

// respond sends the initial response. The interaction only counts as
// answered once the platform has accepted it.
func (inv *Invocation) respond(ctx context.Context, resp *discordgo.InteractionResponse) error {
	if err := inv.api.InteractionRespond(inv.i, resp, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	inv.mu.Lock()
	inv.responded = true
	inv.mu.Unlock()
	return nil
}

func (inv *Invocation) hasResponded() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.responded
}

func confirmButtons(prefix string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: confirmLabel, Style: discordgo.DangerButton, CustomID: prefix + confirmSuffix},
			discordgo.Button{Label: cancelLabel, Style: discordgo.SecondaryButton, CustomID: prefix + cancelSuffix},
		}},
	}
}

func interactionUserID(i *discordgo.Interaction) string {
	var member, user string
	if i.Member != nil && i.Member.User != nil {
		member = i.Member.User.ID
	}
	if i.User != nil {
		user = i.User.ID
	}
	return sysutil.FirstNonEmpty(member, user)
}

//
// Component routing
//

type click struct {
	interaction *discordgo.Interaction
	customID    string
}

type waiter struct {
	userID string
	ch     chan click
}

// componentWaiters routes button clicks to the Confirm call that rendered
// them, keyed by the custom ID prefix.
type componentWaiters struct {
	mu sync.Mutex
	m  map[string]*waiter
}

func newComponentWaiters() *componentWaiters {
	return &componentWaiters{m: map[string]*waiter{}}
}

func (c *componentWaiters) add(prefix, userID string) *waiter {
	w := &waiter{userID: userID, ch: make(chan click, 1)}
	c.mu.Lock()
	c.m[prefix] = w
	c.mu.Unlock()
	return w
}

func (c *componentWaiters) remove(prefix string) {
	c.mu.Lock()
	delete(c.m, prefix)
	c.mu.Unlock()
}

// dispatch hands a component interaction to its waiter. It reports false
// when nobody is waiting for it (expired or unknown prompt); the caller
// should still acknowledge such clicks.
func (c *componentWaiters) dispatch(ctx context.Context, api interactionAPI, i *discordgo.Interaction) bool {
	customID := i.MessageComponentData().CustomID
	prefix, _, ok := strings.Cut(customID, ":")
	if !ok {
		return false
	}

	c.mu.Lock()
	w, found := c.m[prefix]
	if found && w.userID == interactionUserID(i) {
		delete(c.m, prefix)
	}
	c.mu.Unlock()

	if !found {
		return false
	}
	if w.userID != interactionUserID(i) {
		_ = api.InteractionRespond(i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		}, discordgo.WithContext(ctx))
		return true
	}
	w.ch <- click{interaction: i, customID: customID}
	return true
}
