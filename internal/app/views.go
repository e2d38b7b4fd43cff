package app

import (
	"time"

	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

type threadResponse struct {
	ID           string        `json:"id"`
	Commontable  *store.Ref    `json:"commontable"`
	Archived     bool          `json:"archived"`
	Closed       bool          `json:"closed"`
	ClosedAt     *time.Time    `json:"closedAt"`
	Closer       *store.Ref    `json:"closer"`
	Order        thread.Order  `json:"order"`
	PerPage      int           `json:"perPage"`
	Paginated    bool          `json:"paginated"`
	Filtered     bool          `json:"filtered"`
	CanModerate  bool          `json:"canModerate"`
	CanSubscribe bool          `json:"canSubscribe"`
	Subscription *subscription `json:"subscription"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type subscription struct {
	ID         string    `json:"id"`
	LastReadAt time.Time `json:"lastReadAt"`
}

type commentResponse struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"threadId"`
	Creator   store.Ref  `json:"creator"`
	Body      string     `json:"body"`
	VotesUp   int        `json:"votesUp"`
	VotesDown int        `json:"votesDown"`
	Score     int        `json:"score"`
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	Deleter   *store.Ref `json:"deleter,omitempty"`
	Modified  bool       `json:"modified"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	Editor    *store.Ref `json:"editor,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type pageResponse struct {
	Comments   []commentResponse `json:"comments"`
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
}

func newThreadResponse(t *thread.Thread, actor *thread.Actor, sub *store.Subscription) threadResponse {
	cfg := t.Config()
	resp := threadResponse{
		ID:           t.ID,
		Commontable:  t.Commontable,
		Archived:     t.IsArchived(),
		Closed:       t.IsClosed(),
		ClosedAt:     t.ClosedAt,
		Closer:       t.Closer,
		Order:        cfg.CommentOrder,
		PerPage:      cfg.CommentsPerPage,
		Paginated:    t.WillPaginate(),
		Filtered:     t.IsFiltered(),
		CanModerate:  t.CanBeEditedBy(actor),
		CanSubscribe: t.CanSubscribe(actor),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if sub != nil {
		resp.Subscription = &subscription{ID: sub.ID, LastReadAt: sub.UpdatedAt}
	}
	return resp
}

func newCommentResponse(c store.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		ThreadID:  c.ThreadID,
		Creator:   c.Creator,
		Body:      c.Body,
		VotesUp:   c.VotesUp,
		VotesDown: c.VotesDown,
		Score:     c.NetScore(),
		Deleted:   c.IsDeleted(),
		DeletedAt: c.DeletedAt,
		Deleter:   c.Deleter,
		Modified:  c.IsModified(),
		EditedAt:  c.EditedAt,
		Editor:    c.Editor,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func newPageResponse(p thread.Page) pageResponse {
	comments := make([]commentResponse, 0, len(p.Comments))
	for _, c := range p.Comments {
		comments = append(comments, newCommentResponse(c))
	}
	return pageResponse{
		Comments:   comments,
		Page:       p.Number,
		PerPage:    p.PerPage,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}
