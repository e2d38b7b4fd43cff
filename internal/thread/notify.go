package thread

import (
	"context"
	"time"

	"commentary/api/internal/store"
)

type NotificationKind string

const (
	NotificationCommentCreated NotificationKind = "comment.created"
	NotificationThreadReopened NotificationKind = "thread.reopened"
)

// Notification tells subscribers that something happened on a thread they
// follow. Recipients never include the actor.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	ThreadID    string           `json:"threadId"`
	Commontable *store.Ref       `json:"commontable,omitempty"`
	Actor       *store.Ref       `json:"actor,omitempty"`
	ActorName   string           `json:"actorName,omitempty"`
	CommentID   string           `json:"commentId,omitempty"`
	Body        string           `json:"body,omitempty"`
	Recipients  []store.Ref      `json:"recipients"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

// Notifier delivers notifications. Implementations live in internal/notify.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }
