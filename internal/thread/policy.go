package thread

import "commentary/api/internal/store"

// AccessPolicy answers read, moderate, subscribe and comment-edit questions
// for a thread. It is pure given its Config and the commentator registry.
type AccessPolicy struct {
	config   Config
	registry *Registry
}

func NewAccessPolicy(config Config, registry *Registry) AccessPolicy {
	return AccessPolicy{config: config, registry: registry}
}

// CanRead is true for moderators, and otherwise for callers the read
// predicate admits while the thread still has its commontable.
func (p AccessPolicy) CanRead(t *Thread, actor *Actor) bool {
	if p.CanModerate(t, actor) {
		return true
	}
	return !t.IsArchived() && p.config.ThreadRead != nil && p.config.ThreadRead(t, actor)
}

func (p AccessPolicy) CanModerate(t *Thread, actor *Actor) bool {
	return !t.IsArchived() &&
		p.registry.IsCommentator(actor) &&
		p.config.ThreadModerator != nil && p.config.ThreadModerator(t, actor)
}

// CanSubscribe does not require moderator status in moderators-only mode;
// that mode restricts where the subscribe control is offered, not who may
// use it.
func (p AccessPolicy) CanSubscribe(t *Thread, actor *Actor) bool {
	mode := p.config.ThreadSubscription
	return !t.IsClosed() &&
		p.registry.IsCommentator(actor) &&
		(mode == SubscriptionModeratorsOnly || mode == SubscriptionBoth) &&
		p.CanRead(t, actor)
}

// CanEditComment covers body edits and deletion. Moderators may always edit;
// a creator may edit their own comment while the thread is open.
func (p AccessPolicy) CanEditComment(t *Thread, c store.Comment, actor *Actor) bool {
	if p.CanModerate(t, actor) {
		return true
	}
	return actor != nil && c.Creator == actor.Ref &&
		!t.IsClosed() &&
		p.registry.IsCommentator(actor) &&
		p.CanRead(t, actor)
}
