// Package thread implements discussion threads attached to commentable
// resources: lifecycle, comment listing, subscriptions and access control.
package thread

import (
	"commentary/api/internal/store"
)

// Thread is the aggregate root. Its Config is resolved from the Registry when
// the thread is loaded and stays fixed for the lifetime of the value.
type Thread struct {
	store.Thread
	config Config
	policy AccessPolicy
}

func (t *Thread) Config() Config {
	return t.config
}

func (t *Thread) IsClosed() bool {
	return t.ClosedAt != nil
}

// IsArchived reports whether the thread lost its commontable to a clear.
func (t *Thread) IsArchived() bool {
	return t.Commontable == nil
}

func (t *Thread) IsFiltered() bool {
	return t.config.CommentFilter != nil
}

func (t *Thread) WillPaginate() bool {
	return t.config.CommentsPerPage > 0
}

func (t *Thread) CanBeReadBy(actor *Actor) bool {
	return t.policy.CanRead(t, actor)
}

func (t *Thread) CanBeEditedBy(actor *Actor) bool {
	return t.policy.CanModerate(t, actor)
}

func (t *Thread) CanEditComment(c store.Comment, actor *Actor) bool {
	return t.policy.CanEditComment(t, c, actor)
}

func (t *Thread) CanSubscribe(actor *Actor) bool {
	return t.policy.CanSubscribe(t, actor)
}

// Comments builds a CommentView over comments, which must belong to t.
func (t *Thread) Comments(comments []store.Comment) CommentView {
	return NewCommentView(t.config, comments)
}
