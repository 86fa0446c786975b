// Package domain defines the persistence models and value types shared by the
// repository, service, and transport layers of the vote-initiate bot. The
// persisted types are mapped with GORM.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// VoteRecord is the durable pointer to the prompt message of a vote that is
// currently running. It is what survives a restart: on startup the handler for
// CommandID looks the record up and re-attaches to the message it points at.
//
// At most one live (non-deleted) row may exist per (CommandID, GuildID). The
// partial unique index enforces that at the database level; resolved votes are
// soft-deleted, which takes them out of the index.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - CommandID: VoteDefinition.ID of the owning definition.
//   - GuildID / PostChannelID / PostMessageID: Discord snowflakes of the prompt.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker, set when the vote resolves.
type VoteRecord struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	CommandID     string         `json:"command_id"      gorm:"type:varchar(64);not null;index;uniqueIndex:ux_vote_records_live,priority:1,where:deleted_at IS NULL"`
	GuildID       string         `json:"guild_id"        gorm:"type:varchar(32);not null;uniqueIndex:ux_vote_records_live,priority:2,where:deleted_at IS NULL"`
	PostChannelID string         `json:"post_channel_id" gorm:"type:varchar(32);not null"`
	PostMessageID string         `json:"post_message_id" gorm:"type:varchar(32);not null"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for VoteRecord.
func (VoteRecord) TableName() string { return "vote_records" }
