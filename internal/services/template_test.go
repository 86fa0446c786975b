package services

import (
	"testing"
	"time"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

func TestFormatMessage_ReplacesFirstOccurrence(t *testing.T) {
	def := domain.VoteDefinition{
		PostChannelID:  "c1",
		TriggerEmoji:   "👍",
		ReactsRequired: 5,
		DurationHours:  1.5,
	}
	created := time.Unix(1700000000, 0)

	got := FormatMessage(def, "%n votes in %h h on %c with %r until %e (%n)", nil, created)
	want := "5 votes in 1.5 h on <#c1> with 👍 until <t:1700005400:R> (%n)"
	if got != want {
		t.Fatalf("FormatMessage = %q\nwant %q", got, want)
	}
}

func TestFormatMessage_PrefixesRoles(t *testing.T) {
	def := domain.VoteDefinition{ReactsRequired: 1, DurationHours: 24}
	got := FormatMessage(def, "vote for %h hours", []string{"1", "2"}, time.Now())
	if want := "<@&1>\n<@&2>\nvote for 24 hours"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMessageLink(t *testing.T) {
	if got := MessageLink("g", "c", "m"); got != "https://discord.com/channels/g/c/m" {
		t.Fatalf("MessageLink = %q", got)
	}
}

func TestNormalizeEmoji(t *testing.T) {
	cases := map[string]string{
		"👍":             "👍",
		" 👍 ":           "👍",
		"\u2764\ufe0f":  "\u2764",
		"<:party:123>":  "party:123",
		"<a:dance:456>": "dance:456",
		":party:123":    "party:123",
		"party:123":     "party:123",
	}
	for in, want := range cases {
		if got := NormalizeEmoji(in); got != want {
			t.Errorf("NormalizeEmoji(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestAPIEmoji(t *testing.T) {
	cases := map[string]string{
		"\u2764\ufe0f": "\u2764\ufe0f",
		" 👍 ":          "👍",
		"<:party:123>": "party:123",
		"<a:dance:456>": "dance:456",
	}
	for in, want := range cases {
		if got := APIEmoji(in); got != want {
			t.Errorf("APIEmoji(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestEffectiveCount(t *testing.T) {
	cases := []struct {
		s    domain.ReactionState
		want int
	}{
		{domain.ReactionState{Count: 3, IncludesSelf: true}, 2},
		{domain.ReactionState{Count: 3}, 3},
		{domain.ReactionState{Count: 0, IncludesSelf: true}, 0},
		{domain.ReactionState{}, 0},
	}
	for _, tc := range cases {
		if got := EffectiveCount(tc.s); got != tc.want {
			t.Errorf("EffectiveCount(%+v) = %d; want %d", tc.s, got, tc.want)
		}
	}
}
