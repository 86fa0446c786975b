package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *fixture, *fixture) {
	t.Helper()
	kick := newFixture(t)
	ban := newFixture(t)
	ban.h.Def.ID = "ban"
	ban.h.Def.CommandName = "ban"
	return NewRegistry(kick.h, ban.h), kick, ban
}

func TestRegistry_ListPage(t *testing.T) {
	reg, kick, _ := newTestRegistry(t)
	kick.startVote(t)

	items, total, err := reg.ListPage(context.Background(), 1, 1)
	if err != nil || total != 2 || len(items) != 1 {
		t.Fatalf("page 1 = %v, %d, %v", items, total, err)
	}
	if items[0].DefinitionID != "ban" || items[0].Active {
		t.Fatalf("expected idle ban first, got %+v", items[0])
	}

	items, _, _ = reg.ListPage(context.Background(), 2, 1)
	if len(items) != 1 || items[0].DefinitionID != "kick" || !items[0].Active {
		t.Fatalf("page 2 = %+v", items)
	}
	if items[0].Link != voteLink || items[0].ExpiresIn != "1 hour from now" {
		t.Fatalf("status = %+v", items[0])
	}

	items, _, _ = reg.ListPage(context.Background(), 3, 1)
	if items == nil || len(items) != 0 {
		t.Fatalf("past the end should be an empty slice, got %v", items)
	}
}

func TestRegistry_GetAndRecheck(t *testing.T) {
	reg, kick, _ := newTestRegistry(t)

	if _, err := reg.Get(context.Background(), "nope"); !errors.Is(err, ErrUnknownDefinition) {
		t.Fatalf("Get unknown err = %v", err)
	}
	if _, err := reg.Recheck(context.Background(), "nope"); !errors.Is(err, ErrUnknownDefinition) {
		t.Fatalf("Recheck unknown err = %v", err)
	}

	kick.startVote(t)
	kick.plat.setState(domain.ReactionState{Count: 3, IncludesSelf: true})

	st, err := reg.Recheck(context.Background(), "kick")
	if err != nil {
		t.Fatalf("Recheck: %v", err)
	}
	if st.Active {
		t.Fatalf("vote should have passed on recheck")
	}
	if kick.repo.liveCount() != 0 {
		t.Fatalf("record not destroyed")
	}
	st, _ = reg.Get(context.Background(), "kick")
	if st.Active {
		t.Fatalf("Get after pass = %+v", st)
	}
}
