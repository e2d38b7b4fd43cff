package thread

import (
	"commentary/api/internal/store"
)

// Order selects how comments are listed.
type Order string

const (
	// OrderLatest lists newest comments first.
	OrderLatest Order = "l"
	// OrderEarliest lists oldest comments first.
	OrderEarliest Order = "e"
	// OrderVotesEarliest ranks by net score, ties oldest first.
	OrderVotesEarliest Order = "ve"
	// OrderVotesLatest ranks by net score, ties newest first.
	OrderVotesLatest Order = "vl"
)

// SubscriptionMode governs whether actors may subscribe to a thread.
type SubscriptionMode string

const (
	SubscriptionDisabled       SubscriptionMode = "n"
	SubscriptionModeratorsOnly SubscriptionMode = "m"
	SubscriptionBoth           SubscriptionMode = "b"
)

// Predicate decides a capability of actor on thread. actor is nil for
// anonymous callers.
type Predicate func(t *Thread, actor *Actor) bool

// CommentFilter reports whether a comment is visible in the filtered view.
type CommentFilter func(c store.Comment) bool

// Config is the per-commontable-type thread configuration.
type Config struct {
	CommentFilter CommentFilter
	CommentOrder  Order
	// CommentsPerPage of zero disables pagination.
	CommentsPerPage    int
	ThreadRead         Predicate
	ThreadModerator    Predicate
	ThreadSubscription SubscriptionMode
}

// DefaultConfig is used for commontable types without their own
// registration and for archived threads.
func DefaultConfig() Config {
	return Config{
		CommentOrder:       OrderEarliest,
		CommentsPerPage:    20,
		ThreadRead:         AllowAll,
		ThreadModerator:    DenyAll,
		ThreadSubscription: SubscriptionDisabled,
	}
}

// withDefaults fills unset fields of c from defaults. CommentFilter and
// CommentsPerPage are taken as given since their zero values are meaningful.
func (c Config) withDefaults(defaults Config) Config {
	if c.CommentOrder == "" {
		c.CommentOrder = defaults.CommentOrder
	}
	if c.ThreadRead == nil {
		c.ThreadRead = defaults.ThreadRead
	}
	if c.ThreadModerator == nil {
		c.ThreadModerator = defaults.ThreadModerator
	}
	if c.ThreadSubscription == "" {
		c.ThreadSubscription = defaults.ThreadSubscription
	}
	return c
}

// NotDeleted hides soft-deleted comments.
func NotDeleted(c store.Comment) bool {
	return !c.IsDeleted()
}
