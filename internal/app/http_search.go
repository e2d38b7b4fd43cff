package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"commentary/api/internal/search"
)

// CommentSearch answers full-text queries over comments.
type CommentSearch interface {
	Search(ctx context.Context, q search.Query) search.Response
}

// WithSearch enables GET /api/search. Without it the route answers 404.
func (s *HTTPServer) WithSearch(searcher CommentSearch) *HTTPServer {
	s.search = searcher
	return s
}

func (s *HTTPServer) handleSearch(c *gin.Context) {
	if s.search == nil {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Search is not configured", nil)
		return
	}
	text := strings.TrimSpace(c.Query("q"))
	if text == "" {
		fail(c, rejected("q is required"))
		return
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	resp := s.search.Search(c.Request.Context(), search.Query{
		Text:            text,
		CommontableType: strings.TrimSpace(c.Query("type")),
		CommontableID:   strings.TrimSpace(c.Query("id")),
		Limit:           limit,
		Offset:          offset,
	})

	visible, err := s.readableResults(c, resp.Results)
	if err != nil {
		fail(c, err)
		return
	}
	resp.Total -= len(resp.Results) - len(visible)
	resp.Results = visible
	c.JSON(http.StatusOK, resp)
}

// readableResults drops hits on threads the caller cannot read. Each thread
// is loaded once per request; threads deleted since indexing are skipped.
func (s *HTTPServer) readableResults(c *gin.Context, results []search.Result) ([]search.Result, error) {
	actor := actorFrom(c)
	readable := map[string]bool{}
	visible := make([]search.Result, 0, len(results))
	for _, result := range results {
		allowed, seen := readable[result.ThreadID]
		if !seen {
			t, err := s.service.Load(c.Request.Context(), result.ThreadID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				allowed = false
			case err != nil:
				return nil, err
			default:
				allowed = !t.IsArchived() && t.CanBeReadBy(actor)
			}
			readable[result.ThreadID] = allowed
		}
		if allowed {
			visible = append(visible, result)
		}
	}
	return visible, nil
}
