package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

// VotesFile is the layout of the vote definitions file:
//
//	votes:
//	  - id: kick
//	    guild_ids: ["123"]
//	    command_name: votekick
//	    ...
type VotesFile struct {
	Votes []domain.VoteDefinition `yaml:"votes"`
}

// Slash command names: lowercase, 1-32 chars, no spaces.
var commandNameRe = regexp.MustCompile(`^[-_\p{Ll}\p{Lo}\p{N}]{1,32}$`)

// LoadVoteDefinitions reads and validates the vote definitions at path.
func LoadVoteDefinitions(path string) ([]domain.VoteDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defs, err := ParseVoteDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return defs, nil
}

// ParseVoteDefinitions decodes YAML into validated definitions. Unknown keys
// are rejected so that typos in optional fields do not go unnoticed.
func ParseVoteDefinitions(data []byte) ([]domain.VoteDefinition, error) {
	var f VotesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	for i := range f.Votes {
		normalizeDefinition(&f.Votes[i])
	}
	if err := ValidateVoteDefinitions(f.Votes); err != nil {
		return nil, err
	}
	return f.Votes, nil
}

// ValidateVoteDefinitions checks every definition and the uniqueness of ids
// and command names.
func ValidateVoteDefinitions(defs []domain.VoteDefinition) error {
	if len(defs) == 0 {
		return errors.New("no vote definitions configured")
	}
	ids := make(map[string]struct{}, len(defs))
	commands := make(map[string]struct{}, len(defs))
	var errs []error
	for i, d := range defs {
		if err := validateDefinition(d); err != nil {
			errs = append(errs, fmt.Errorf("votes[%d] (%s): %w", i, d.ID, err))
			continue
		}
		if _, dup := ids[d.ID]; dup {
			errs = append(errs, fmt.Errorf("votes[%d]: duplicate id %q", i, d.ID))
		}
		if _, dup := commands[d.CommandName]; dup {
			errs = append(errs, fmt.Errorf("votes[%d]: duplicate command_name %q", i, d.CommandName))
		}
		ids[d.ID] = struct{}{}
		commands[d.CommandName] = struct{}{}
	}
	return errors.Join(errs...)
}

func normalizeDefinition(d *domain.VoteDefinition) {
	d.ID = strings.TrimSpace(d.ID)
	d.CommandName = strings.ToLower(strings.TrimSpace(d.CommandName))
	d.PostChannelID = strings.TrimSpace(d.PostChannelID)
	d.TriggerEmoji = strings.TrimSpace(d.TriggerEmoji)
	d.GuildIDs = splitIDs(d.GuildIDs)
	d.PostNotifyRoles = splitIDs(d.PostNotifyRoles)
	d.PassedNotifyRoles = splitIDs(d.PassedNotifyRoles)
	if d.CommandDescription == "" {
		d.CommandDescription = "Start a vote"
	}
}

func splitIDs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return splitCSV(strings.Join(in, ","))
}

func validateDefinition(d domain.VoteDefinition) error {
	switch {
	case d.ID == "":
		return errors.New("id must not be empty")
	case !commandNameRe.MatchString(d.CommandName):
		return fmt.Errorf("command_name %q must be 1-32 lowercase characters without spaces", d.CommandName)
	case len(d.CommandDescription) > 100:
		return errors.New("command_description must be at most 100 characters")
	case len(d.GuildIDs) == 0:
		return errors.New("guild_ids must not be empty")
	case d.PostChannelID == "":
		return errors.New("post_channel_id must not be empty")
	case d.TriggerEmoji == "":
		return errors.New("reaction must not be empty")
	case d.ReactsRequired < 1:
		return errors.New("reacts_required must be >= 1")
	case d.DurationHours <= 0:
		return errors.New("duration_hours must be > 0")
	}
	templates := map[string]string{
		"confirmation_message":    d.ConfirmationMessage,
		"already_running_message": d.AlreadyRunningMessage,
		"post_message":            d.PostMessage,
		"failed_message":          d.FailedMessage,
		"passed_message":          d.PassedMessage,
	}
	for _, key := range []string{"confirmation_message", "already_running_message", "post_message", "failed_message", "passed_message"} {
		if strings.TrimSpace(templates[key]) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}
	return nil
}
