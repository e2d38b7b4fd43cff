package thread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"commentary/api/internal/metrics"
	"commentary/api/internal/store"
	"commentary/api/internal/util"
)

// Store is the persistence the Service needs. *store.PostgresStore is the
// production implementation.
type Store interface {
	Ping(context.Context) error
	InsertThread(context.Context, store.Thread) error
	GetThread(context.Context, string) (store.Thread, error)
	FindThreadByCommontable(context.Context, store.Ref) (store.Thread, error)
	UpdateThread(context.Context, store.Thread) error
	DeleteThread(context.Context, string) error
	WithThreadLock(context.Context, string, func(store.Tx) error) error
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	SoftDeleteComment(context.Context, string, string, *store.Ref, time.Time) (bool, error)
	RestoreComment(context.Context, string, string, time.Time) (bool, error)
	UpdateCommentBody(context.Context, string, string, string, *store.Ref, time.Time) (bool, error)
	ToggleCommentVote(context.Context, string, string, store.Ref, int) error
	FindSubscription(context.Context, string, store.Ref) (store.Subscription, error)
	InsertSubscription(context.Context, store.Subscription) error
	DeleteSubscription(context.Context, string) (bool, error)
	TouchSubscription(context.Context, string, time.Time) (bool, error)
	ListSubscriptions(context.Context, string) ([]store.Subscription, error)
}

type Service struct {
	store    Store
	registry *Registry
	notifier Notifier
	indexer  CommentIndexer
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a Service. A nil notifier drops notifications and a nil
// logger discards log output.
func NewService(dataStore Store, registry *Registry, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    dataStore,
		registry: registry,
		notifier: notifier,
		indexer:  nopIndexer{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UseIndexer mirrors comment changes into ix from now on.
func (s *Service) UseIndexer(ix CommentIndexer) {
	if ix == nil {
		ix = nopIndexer{}
	}
	s.indexer = ix
}

func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) wrap(row store.Thread) *Thread {
	cfg := s.registry.ConfigFor(row.Commontable)
	return &Thread{Thread: row, config: cfg, policy: NewAccessPolicy(cfg, s.registry)}
}

// Load returns the thread with threadID; sql.ErrNoRows when it does not exist.
func (s *Service) Load(ctx context.Context, threadID string) (*Thread, error) {
	row, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return s.wrap(row), nil
}

// ThreadFor returns the live thread of commontable, creating it on first
// access. A creator that loses the uniqueness race reads the winner's row.
func (s *Service) ThreadFor(ctx context.Context, commontable store.Ref) (*Thread, error) {
	if !s.registry.IsCommontable(commontable.Type) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommontable, commontable.Type)
	}

	row, err := s.store.FindThreadByCommontable(ctx, commontable)
	if err == nil {
		return s.wrap(row), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find thread: %w", err)
	}

	now := s.now()
	ref := commontable
	row = store.Thread{
		ID:          util.NewID("thr"),
		Commontable: &ref,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertThread(ctx, row); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		row, err = s.store.FindThreadByCommontable(ctx, commontable)
		if err != nil {
			return nil, fmt.Errorf("find thread after duplicate: %w", err)
		}
		return s.wrap(row), nil
	}
	s.logger.Info("thread created", zap.String("thread_id", row.ID), zap.Stringer("commontable", commontable))
	return s.wrap(row), nil
}

// Close marks an open thread closed by actor (nil for the system). It
// returns false when the thread is already closed.
func (s *Service) Close(ctx context.Context, t *Thread, actor *Actor) (bool, error) {
	if t.IsClosed() {
		return false, nil
	}
	now := s.now()
	updated := t.Thread
	updated.ClosedAt = &now
	updated.Closer = actor.ref()
	updated.UpdatedAt = now
	if err := s.store.UpdateThread(ctx, updated); err != nil {
		return false, err
	}
	t.Thread = updated

	metrics.ThreadTransitions.WithLabelValues("close").Inc()
	s.logger.Info("thread closed", zap.String("thread_id", t.ID), zap.Stringp("closer", refString(updated.Closer)))
	return true, nil
}

// Reopen returns a closed thread that still has its commontable to the open
// state. Subscribers other than actor are notified.
func (s *Service) Reopen(ctx context.Context, t *Thread, actor *Actor) (bool, error) {
	if !t.IsClosed() || t.IsArchived() {
		return false, nil
	}
	updated := t.Thread
	updated.ClosedAt = nil
	updated.Closer = nil
	updated.UpdatedAt = s.now()
	if err := s.store.UpdateThread(ctx, updated); err != nil {
		return false, err
	}
	t.Thread = updated

	metrics.ThreadTransitions.WithLabelValues("reopen").Inc()
	s.logger.Info("thread reopened", zap.String("thread_id", t.ID))
	s.notifySubscribers(ctx, t, NotificationThreadReopened, actor, nil)
	return true, nil
}

// Clear archives a closed thread and hands its commontable and subscriptions
// to a fresh open thread, all under the thread's row lock. The guard is
// checked again against the locked row, so of two concurrent calls the
// second one blocks and then finds the thread archived. It returns the
// replacement thread, or nil when nothing was done.
func (s *Service) Clear(ctx context.Context, t *Thread) (*Thread, error) {
	if t.IsArchived() || !t.IsClosed() {
		return nil, nil
	}

	var (
		observed    store.Thread
		replacement *store.Thread
		moved       int
	)
	err := s.store.WithThreadLock(ctx, t.ID, func(tx store.Tx) error {
		current, err := tx.GetThread(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("reload locked thread: %w", err)
		}
		observed = current
		if current.Commontable == nil || current.ClosedAt == nil {
			return nil
		}

		now := s.now()
		archived := current
		archived.Commontable = nil
		archived.UpdatedAt = now
		if err := tx.UpdateThread(ctx, archived); err != nil {
			return fmt.Errorf("archive thread: %w", err)
		}

		next := store.Thread{
			ID:          util.NewID("thr"),
			Commontable: current.Commontable,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertThread(ctx, next); err != nil {
			return fmt.Errorf("insert replacement thread: %w", err)
		}

		subs, err := tx.ListSubscriptions(ctx, current.ID)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if err := tx.MoveSubscription(ctx, sub.ID, next.ID); err != nil {
				return fmt.Errorf("move subscription %s: %w", sub.ID, err)
			}
		}

		observed = archived
		replacement = &next
		moved = len(subs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.Thread = observed
	if replacement == nil {
		return nil, nil
	}
	s.unindexThread(ctx, t.ID)
	metrics.ThreadTransitions.WithLabelValues("clear").Inc()
	s.logger.Info("thread cleared",
		zap.String("thread_id", t.ID),
		zap.String("replacement_id", replacement.ID),
		zap.Int("subscriptions_moved", moved),
	)
	return s.wrap(*replacement), nil
}

// Delete removes the thread with its comments, votes and subscriptions.
func (s *Service) Delete(ctx context.Context, t *Thread) error {
	comments, err := s.store.ListComments(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, t.ID); err != nil {
		return err
	}
	s.indexer.RemoveComments(commentIDs(comments)...)
	metrics.ThreadTransitions.WithLabelValues("delete").Inc()
	s.logger.Info("thread deleted", zap.String("thread_id", t.ID))
	return nil
}

func (s *Service) PaginatedComments(ctx context.Context, t *Thread, page, perPage int, showAll bool) (Page, error) {
	comments, err := s.store.ListComments(ctx, t.ID)
	if err != nil {
		return Page{}, err
	}
	return t.Comments(comments).Paginate(page, perPage, showAll), nil
}

// NewCommentPage is the page a comment posted now would appear on.
func (s *Service) NewCommentPage(ctx context.Context, t *Thread, perPage int) (int, error) {
	comments, err := s.store.ListComments(ctx, t.ID)
	if err != nil {
		return 0, err
	}
	return t.Comments(comments).LocatePage(perPage), nil
}

// PostComment adds a comment by actor to an open thread and returns it with
// the page it landed on.
func (s *Service) PostComment(ctx context.Context, t *Thread, actor *Actor, body string) (store.Comment, int, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, 0, fmt.Errorf("%w: comment body is required", ErrValidation)
	}
	if !s.registry.IsCommentator(actor) || !t.CanBeReadBy(actor) {
		return store.Comment{}, 0, ErrNotPermitted
	}
	if t.IsArchived() || t.IsClosed() {
		return store.Comment{}, 0, fmt.Errorf("%w: thread is closed", ErrValidation)
	}

	now := s.now()
	comment := store.Comment{
		ID:        util.NewID("cmt"),
		ThreadID:  t.ID,
		Creator:   actor.Ref,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, 0, err
	}
	metrics.CommentsPosted.Inc()
	s.indexer.IndexComment(t, comment)

	page, err := s.NewCommentPage(ctx, t, 0)
	if err != nil {
		return store.Comment{}, 0, err
	}
	s.notifySubscribers(ctx, t, NotificationCommentCreated, actor, &comment)
	return comment, page, nil
}

// EditComment replaces the body of a live comment. Moderators may edit any
// comment; creators may edit their own while the thread is open.
func (s *Service) EditComment(ctx context.Context, t *Thread, commentID string, actor *Actor, body string) (store.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, fmt.Errorf("%w: comment body is required", ErrValidation)
	}
	comment, err := s.store.GetComment(ctx, t.ID, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	if !t.CanEditComment(comment, actor) {
		return store.Comment{}, ErrNotPermitted
	}
	if comment.IsDeleted() {
		return store.Comment{}, fmt.Errorf("%w: comment is deleted", ErrValidation)
	}

	ok, err := s.store.UpdateCommentBody(ctx, t.ID, commentID, body, actor.ref(), s.now())
	if err != nil {
		return store.Comment{}, err
	}
	if !ok {
		return store.Comment{}, fmt.Errorf("%w: comment is deleted", ErrValidation)
	}
	edited, err := s.store.GetComment(ctx, t.ID, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	s.indexer.IndexComment(t, edited)
	s.logger.Info("comment edited",
		zap.String("thread_id", t.ID),
		zap.String("comment_id", commentID),
		zap.Stringer("editor", actor.Ref),
	)
	return edited, nil
}

// DeleteComment soft-deletes a comment for its creator on an open thread or
// for a moderator. It returns false when the comment is missing or already
// deleted.
func (s *Service) DeleteComment(ctx context.Context, t *Thread, commentID string, actor *Actor) (bool, error) {
	comment, err := s.store.GetComment(ctx, t.ID, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !t.CanEditComment(comment, actor) {
		return false, ErrNotPermitted
	}
	ok, err := s.store.SoftDeleteComment(ctx, t.ID, commentID, actor.ref(), s.now())
	if err != nil || !ok {
		return false, err
	}
	s.indexer.RemoveComments(commentID)
	s.logger.Info("comment deleted", zap.String("thread_id", t.ID), zap.String("comment_id", commentID))
	return true, nil
}

func (s *Service) UndeleteComment(ctx context.Context, t *Thread, commentID string) (bool, error) {
	ok, err := s.store.RestoreComment(ctx, t.ID, commentID, s.now())
	if err != nil || !ok {
		return false, err
	}
	if restored, err := s.store.GetComment(ctx, t.ID, commentID); err == nil {
		s.indexer.IndexComment(t, restored)
	} else {
		s.logger.Warn("reload restored comment for indexing", zap.String("comment_id", commentID), zap.Error(err))
	}
	s.logger.Info("comment restored", zap.String("thread_id", t.ID), zap.String("comment_id", commentID))
	return true, nil
}

// VoteComment casts an up or down vote; repeating the same vote withdraws it.
// Votes are only taken on open threads, for live comments by someone else.
func (s *Service) VoteComment(ctx context.Context, t *Thread, commentID string, actor *Actor, up bool) (store.Comment, error) {
	if !s.registry.IsCommentator(actor) {
		return store.Comment{}, ErrNotPermitted
	}
	comment, err := s.store.GetComment(ctx, t.ID, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	switch {
	case t.IsArchived() || t.IsClosed():
		return store.Comment{}, fmt.Errorf("%w: thread is closed", ErrValidation)
	case comment.IsDeleted():
		return store.Comment{}, fmt.Errorf("%w: comment is deleted", ErrValidation)
	case comment.Creator == actor.Ref:
		return store.Comment{}, fmt.Errorf("%w: cannot vote on own comment", ErrValidation)
	}

	vote := -1
	if up {
		vote = 1
	}
	if err := s.store.ToggleCommentVote(ctx, t.ID, commentID, actor.Ref, vote); err != nil {
		return store.Comment{}, err
	}
	return s.store.GetComment(ctx, t.ID, commentID)
}

// notifySubscribers never fails the calling operation; problems are logged
// and counted.
func (s *Service) notifySubscribers(ctx context.Context, t *Thread, kind NotificationKind, actor *Actor, comment *store.Comment) {
	subs, err := s.store.ListSubscriptions(ctx, t.ID)
	if err != nil {
		metrics.NotificationFailures.WithLabelValues("subscribers").Inc()
		s.logger.Warn("list subscribers for notification", zap.String("thread_id", t.ID), zap.Error(err))
		return
	}

	recipients := make([]store.Ref, 0, len(subs))
	for _, sub := range subs {
		if actor != nil && sub.Subscriber == actor.Ref {
			continue
		}
		recipients = append(recipients, sub.Subscriber)
	}
	if len(recipients) == 0 {
		return
	}

	n := Notification{
		Kind:        kind,
		ThreadID:    t.ID,
		Commontable: t.Commontable,
		Actor:       actor.ref(),
		Recipients:  recipients,
		OccurredAt:  s.now(),
	}
	if actor != nil {
		n.ActorName = actor.Name
	}
	if comment != nil {
		n.CommentID = comment.ID
		n.Body = comment.Body
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		metrics.NotificationFailures.WithLabelValues("notifier").Inc()
		s.logger.Warn("notify subscribers",
			zap.String("thread_id", t.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// unindexThread drops the comments of a thread that readers can no longer
// reach from the search index.
func (s *Service) unindexThread(ctx context.Context, threadID string) {
	comments, err := s.store.ListComments(ctx, threadID)
	if err != nil {
		s.logger.Warn("list comments for unindexing", zap.String("thread_id", threadID), zap.Error(err))
		return
	}
	s.indexer.RemoveComments(commentIDs(comments)...)
}

func commentIDs(comments []store.Comment) []string {
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	return ids
}

func refString(ref *store.Ref) *string {
	if ref == nil {
		return nil
	}
	value := ref.String()
	return &value
}
