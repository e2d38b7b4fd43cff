package thread

import "commentary/api/internal/store"

// CommentIndexer mirrors the comments readers can reach into a search
// index. Calls are best effort and must return quickly.
type CommentIndexer interface {
	IndexComment(t *Thread, c store.Comment)
	RemoveComments(ids ...string)
}

type nopIndexer struct{}

func (nopIndexer) IndexComment(*Thread, store.Comment) {}

func (nopIndexer) RemoveComments(...string) {}
