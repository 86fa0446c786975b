// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for VoteRecord, the
// durable pointer to a running vote's prompt message.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the "thin repository" approach: no business logic, only persistence.
//
// Error semantics:
//   - Missing records yield ErrNotFound (gorm.ErrRecordNotFound).
//   - A second live record for the same (command, guild) yields ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound so callers can match either.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a live vote record already exists for the
// given (command_id, guild_id) pair.
var ErrDuplicate = errors.New("duplicate")

// CreateVoteRecord inserts a live record pointing at the prompt message.
// The ID is a random UUID and CreatedAt is set to UTC.
func CreateVoteRecord(ctx context.Context, db *gorm.DB, commandID, guildID, channelID, messageID string) (*domain.VoteRecord, error) {
	rec := &domain.VoteRecord{
		ID:            uuid.NewString(),
		CommandID:     commandID,
		GuildID:       guildID,
		PostChannelID: channelID,
		PostMessageID: messageID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// FindVoteRecord returns the live record of commandID in any of guildIDs.
// When several guilds have one, the most recent wins. Returns ErrNotFound
// when there is none (or guildIDs is empty).
func FindVoteRecord(ctx context.Context, db *gorm.DB, commandID string, guildIDs []string) (*domain.VoteRecord, error) {
	if len(guildIDs) == 0 {
		return nil, ErrNotFound
	}
	var rec domain.VoteRecord
	err := db.WithContext(ctx).
		Where("command_id = ? AND guild_id IN ?", commandID, guildIDs).
		Order("created_at desc").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DestroyVoteRecord soft-deletes the record with the given id. It returns
// ErrNotFound when no live row was affected.
func DestroyVoteRecord(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.VoteRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes UNIQUE failures; glebarez/sqlite often
// returns them as plain-text errors.
func isUniqueViolation(err error) bool {
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
