package services

import (
	"context"
	"sort"

	"github.com/tbourn/vote-initiate-bot/internal/utils"
)

// Registry indexes the running handlers by definition ID for the admin API.
// It is read-only after construction.
type Registry struct {
	ordered []*VoteInitiateHandler
	byID    map[string]*VoteInitiateHandler
}

// NewRegistry indexes handlers, ordered by definition ID.
func NewRegistry(handlers ...*VoteInitiateHandler) *Registry {
	r := &Registry{byID: make(map[string]*VoteInitiateHandler, len(handlers))}
	for _, h := range handlers {
		r.byID[h.Def.ID] = h
		r.ordered = append(r.ordered, h)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Def.ID < r.ordered[j].Def.ID })
	return r
}

// Handlers returns the registered handlers in ID order.
func (r *Registry) Handlers() []*VoteInitiateHandler {
	return append([]*VoteInitiateHandler(nil), r.ordered...)
}

// ListPage returns one page of statuses (1-based) and the total count.
func (r *Registry) ListPage(_ context.Context, page, pageSize int) ([]VoteStatus, int64, error) {
	start, end := utils.PageBounds(page, pageSize, len(r.ordered))
	out := make([]VoteStatus, 0, end-start)
	for _, h := range r.ordered[start:end] {
		out = append(out, h.Status())
	}
	return out, int64(len(r.ordered)), nil
}

// Get returns the status of one definition.
func (r *Registry) Get(_ context.Context, id string) (*VoteStatus, error) {
	h, ok := r.byID[id]
	if !ok {
		return nil, ErrUnknownDefinition
	}
	st := h.Status()
	return &st, nil
}

// Recheck forces a reconciliation pass and returns the resulting status.
func (r *Registry) Recheck(ctx context.Context, id string) (*VoteStatus, error) {
	h, ok := r.byID[id]
	if !ok {
		return nil, ErrUnknownDefinition
	}
	if err := h.Recheck(ctx); err != nil {
		return nil, err
	}
	st := h.Status()
	return &st, nil
}
