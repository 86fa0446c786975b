// Vote status HTTP handlers.
//
//   - GET  /votes              (list, paginated)
//   - GET  /votes/{id}         (one definition)
//   - POST /votes/{id}/recheck (force a reconciliation pass)
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/vote-initiate-bot/internal/services"
	"github.com/tbourn/vote-initiate-bot/internal/utils"
)

// VoteService is the read side of the running vote handlers.
//
// Implementations must be safe for concurrent use.
type VoteService interface {
	// ListPage returns a page of statuses ordered by definition ID, and the
	// total number of definitions.
	ListPage(ctx context.Context, page, pageSize int) ([]services.VoteStatus, int64, error)
	// Get returns one status or services.ErrUnknownDefinition.
	Get(ctx context.Context, id string) (*services.VoteStatus, error)
	// Recheck reconciles the live vote (if any) and returns the new status.
	Recheck(ctx context.Context, id string) (*services.VoteStatus, error)
}

// Handlers groups the admin endpoints.
type Handlers struct {
	votes VoteService
}

// New binds the handlers to a VoteService.
func New(votes VoteService) *Handlers {
	return &Handlers{votes: votes}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListVotesResponse wraps a page of statuses.
type ListVotesResponse struct {
	Votes      []services.VoteStatus `json:"votes"`
	Pagination Pagination            `json:"pagination"`
}

// clampPagination parses page and page_size, bounding them to sane values.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListVotes returns every configured vote definition with its live state.
func (h *Handlers) ListVotes(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.votes.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListVotesResponse{
		Votes: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetVote returns the status of one definition.
func (h *Handlers) GetVote(c *gin.Context) {
	id, valid := definitionID(c)
	if !valid {
		return
	}
	st, err := h.votes.Get(c.Request.Context(), id)
	if err != nil {
		failLookup(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, st)
}

// RecheckVote reconciles the live vote against the message's reactions,
// passing or failing it if due, and returns the resulting status.
func (h *Handlers) RecheckVote(c *gin.Context) {
	id, valid := definitionID(c)
	if !valid {
		return
	}
	st, err := h.votes.Recheck(c.Request.Context(), id)
	if err != nil {
		failLookup(c, err, ErrCodeRecheckFailed)
		return
	}
	ok(c, http.StatusOK, st)
}

func definitionID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "definition id required")
		return "", false
	}
	return id, true
}

func failLookup(c *gin.Context, err error, code string) {
	if errors.Is(err, services.ErrUnknownDefinition) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	fail(c, http.StatusInternalServerError, code, err.Error())
}
