package services

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

// VoteStatus is a point-in-time view of a handler, used by the admin API.
type VoteStatus struct {
	DefinitionID string     `json:"definition_id"`
	Command      string     `json:"command"`
	Active       bool       `json:"active"`
	GuildID      string     `json:"guild_id,omitempty"`
	ChannelID    string     `json:"channel_id,omitempty"`
	MessageID    string     `json:"message_id,omitempty"`
	Link         string     `json:"link,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ExpiresIn    string     `json:"expires_in,omitempty"`
}

// Definition returns the definition the handler runs.
func (h *VoteInitiateHandler) Definition() domain.VoteDefinition { return h.Def }

// Status reports whether a vote is being watched and where.
func (h *VoteInitiateHandler) Status() VoteStatus {
	st := VoteStatus{DefinitionID: h.Def.ID, Command: h.Def.CommandName}
	w := h.watch()
	if w == nil {
		return st
	}
	expiresAt := h.Def.ExpiresAt(w.message.CreatedAt).UTC()
	st.Active = true
	st.GuildID = w.record.GuildID
	st.ChannelID = w.message.ChannelID
	st.MessageID = w.message.ID
	st.Link = MessageLink(w.record.GuildID, w.message.ChannelID, w.message.ID)
	st.ExpiresAt = &expiresAt
	st.ExpiresIn = humanize.RelTime(expiresAt, h.now(), "ago", "from now")
	return st
}
