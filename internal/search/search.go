package search

import (
	"context"
	"time"

	"commentary/api/internal/store"
)

// Result is a single comment hit returned to the caller.
type Result struct {
	CommentID   string    `json:"commentId"`
	ThreadID    string    `json:"threadId"`
	Commontable store.Ref `json:"commontable"`
	Creator     store.Ref `json:"creator"`
	Snippet     string    `json:"snippet"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Query describes a search request. CommontableType and CommontableID narrow
// the search to one kind of commontable or to a single one.
type Query struct {
	Text            string
	CommontableType string
	CommontableID   string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over comments.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// CommentRecord is the data we index for a live comment on an open or closed
// (never archived) thread.
type CommentRecord struct {
	ID              string    `json:"id" db:"id"`
	ThreadID        string    `json:"threadId" db:"thread_id"`
	CommontableType string    `json:"commontableType" db:"commontable_type"`
	CommontableID   string    `json:"commontableId" db:"commontable_id"`
	CreatorType     string    `json:"creatorType" db:"creator_type"`
	CreatorID       string    `json:"creatorId" db:"creator_id"`
	Body            string    `json:"body" db:"body"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

func (r CommentRecord) result(snippet string) Result {
	if snippet == "" {
		snippet = r.Body
	}
	return Result{
		CommentID:   r.ID,
		ThreadID:    r.ThreadID,
		Commontable: store.Ref{Type: r.CommontableType, ID: r.CommontableID},
		Creator:     store.Ref{Type: r.CreatorType, ID: r.CreatorID},
		Snippet:     snippet,
		CreatedAt:   r.CreatedAt,
	}
}

func normalize(q Query) Query {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
