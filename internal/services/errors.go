// Package services contains the vote-initiate business logic. This file
// centralizes service-level error values so that callers (the Discord adapter,
// the admin API) can match them with errors.Is.
package services

import "errors"

var (
	// ErrNotFound is returned by Platform implementations when a guild,
	// channel, or message does not exist (or is no longer reachable).
	ErrNotFound = errors.New("not found")

	// ErrNotTextChannel indicates that a channel exists but cannot receive
	// text messages.
	ErrNotTextChannel = errors.New("channel is not a text channel")

	// ErrVoteAlreadyRunning is returned when a watch is started while another
	// one is active for the same definition.
	ErrVoteAlreadyRunning = errors.New("vote already running")

	// ErrInvalidGuild marks an invocation from a guild the definition is not
	// configured for.
	ErrInvalidGuild = errors.New("guild not configured for vote")

	// ErrInvalidChannel marks a post channel that is missing or unusable.
	ErrInvalidChannel = errors.New("invalid post channel")

	// ErrUnknownDefinition is returned when no handler is registered for a
	// definition ID.
	ErrUnknownDefinition = errors.New("unknown vote definition")
)
