// Package threadtest provides an in-memory thread.Store for tests.
package threadtest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"commentary/api/internal/store"
)

type voteKey struct {
	commentID string
	voter     store.Ref
}

// Store keeps threads, comments, votes and subscriptions in maps and enforces
// the same uniqueness rules as the Postgres schema. WithThreadLock serializes
// callers per thread and undoes every write made through the Tx when the
// callback fails.
//
// The *Fn hooks, when set, replace the named operation so tests can inject
// failures.
type Store struct {
	mu            sync.Mutex
	threads       map[string]store.Thread
	comments      map[string]store.Comment
	votes         map[voteKey]int
	subscriptions map[string]store.Subscription
	locks         map[string]*sync.Mutex

	PingFn               func(context.Context) error
	UpdateThreadFn       func(context.Context, store.Thread) error
	InsertSubscriptionFn func(context.Context, store.Subscription) error
	ListSubscriptionsFn  func(context.Context, string) ([]store.Subscription, error)
	MoveSubscriptionFn   func(context.Context, string, string) error
	// LockedFn runs once the thread lock is held, before the callback.
	LockedFn func(threadID string)
}

func New() *Store {
	return &Store{
		threads:       make(map[string]store.Thread),
		comments:      make(map[string]store.Comment),
		votes:         make(map[voteKey]int),
		subscriptions: make(map[string]store.Subscription),
		locks:         make(map[string]*sync.Mutex),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if s.PingFn != nil {
		return s.PingFn(ctx)
	}
	return nil
}

func (s *Store) InsertThread(_ context.Context, thread store.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putThread(thread, true)
}

func (s *Store) GetThread(_ context.Context, threadID string) (store.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return store.Thread{}, sql.ErrNoRows
	}
	return thread, nil
}

func (s *Store) FindThreadByCommontable(_ context.Context, commontable store.Ref) (store.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, thread := range s.threads {
		if thread.Commontable != nil && *thread.Commontable == commontable {
			return thread, nil
		}
	}
	return store.Thread{}, sql.ErrNoRows
}

func (s *Store) UpdateThread(ctx context.Context, thread store.Thread) error {
	if s.UpdateThreadFn != nil {
		return s.UpdateThreadFn(ctx, thread)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putThread(thread, false)
}

func (s *Store) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[threadID]; !ok {
		return sql.ErrNoRows
	}
	for id, comment := range s.comments {
		if comment.ThreadID != threadID {
			continue
		}
		for key := range s.votes {
			if key.commentID == id {
				delete(s.votes, key)
			}
		}
		delete(s.comments, id)
	}
	for id, sub := range s.subscriptions {
		if sub.ThreadID == threadID {
			delete(s.subscriptions, id)
		}
	}
	delete(s.threads, threadID)
	return nil
}

func (s *Store) WithThreadLock(ctx context.Context, threadID string, fn func(store.Tx) error) error {
	s.mu.Lock()
	if _, ok := s.threads[threadID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("lock thread: %w", sql.ErrNoRows)
	}
	lock, ok := s.locks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[threadID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	if s.LockedFn != nil {
		s.LockedFn(threadID)
	}

	tx := &memTx{
		store:         s,
		threads:       make(map[string]*store.Thread),
		subscriptions: make(map[string]store.Subscription),
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) InsertComment(_ context.Context, comment store.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[comment.ThreadID]; !ok {
		return fmt.Errorf("insert comment: thread %s does not exist", comment.ThreadID)
	}
	s.comments[comment.ID] = comment
	return nil
}

func (s *Store) GetComment(_ context.Context, threadID, commentID string) (store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok || comment.ThreadID != threadID {
		return store.Comment{}, sql.ErrNoRows
	}
	return comment, nil
}

func (s *Store) ListComments(_ context.Context, threadID string) ([]store.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]store.Comment, 0)
	for _, comment := range s.comments {
		if comment.ThreadID == threadID {
			items = append(items, comment)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) SoftDeleteComment(_ context.Context, threadID, commentID string, deleter *store.Ref, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok || comment.ThreadID != threadID || comment.IsDeleted() {
		return false, nil
	}
	comment.DeletedAt = &at
	comment.Deleter = deleter
	comment.UpdatedAt = at
	s.comments[commentID] = comment
	return true, nil
}

func (s *Store) RestoreComment(_ context.Context, threadID, commentID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok || comment.ThreadID != threadID || !comment.IsDeleted() {
		return false, nil
	}
	comment.DeletedAt = nil
	comment.Deleter = nil
	comment.UpdatedAt = at
	s.comments[commentID] = comment
	return true, nil
}

func (s *Store) UpdateCommentBody(_ context.Context, threadID, commentID, body string, editor *store.Ref, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok || comment.ThreadID != threadID || comment.IsDeleted() {
		return false, nil
	}
	comment.Body = body
	comment.EditedAt = &at
	comment.Editor = editor
	comment.UpdatedAt = at
	s.comments[commentID] = comment
	return true, nil
}

func (s *Store) ToggleCommentVote(_ context.Context, threadID, commentID string, voter store.Ref, vote int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok || comment.ThreadID != threadID {
		return sql.ErrNoRows
	}
	key := voteKey{commentID: commentID, voter: voter}
	if existing, ok := s.votes[key]; ok && existing == vote {
		delete(s.votes, key)
	} else {
		s.votes[key] = vote
	}

	comment.VotesUp, comment.VotesDown = 0, 0
	for k, v := range s.votes {
		if k.commentID != commentID {
			continue
		}
		if v > 0 {
			comment.VotesUp++
		} else {
			comment.VotesDown++
		}
	}
	s.comments[commentID] = comment
	return nil
}

func (s *Store) FindSubscription(_ context.Context, threadID string, subscriber store.Ref) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.ThreadID == threadID && sub.Subscriber == subscriber {
			return sub, nil
		}
	}
	return store.Subscription{}, sql.ErrNoRows
}

func (s *Store) InsertSubscription(ctx context.Context, sub store.Subscription) error {
	if s.InsertSubscriptionFn != nil {
		return s.InsertSubscriptionFn(ctx, sub)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subscriptions {
		if existing.ThreadID == sub.ThreadID && existing.Subscriber == sub.Subscriber {
			return store.ErrDuplicate
		}
	}
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, subscriptionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[subscriptionID]; !ok {
		return false, nil
	}
	delete(s.subscriptions, subscriptionID)
	return true, nil
}

func (s *Store) TouchSubscription(_ context.Context, subscriptionID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return false, nil
	}
	sub.UpdatedAt = at
	s.subscriptions[subscriptionID] = sub
	return true, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, threadID string) ([]store.Subscription, error) {
	if s.ListSubscriptionsFn != nil {
		return s.ListSubscriptionsFn(ctx, threadID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSubscriptions(threadID), nil
}

// Threads returns a snapshot of every stored thread ordered by creation.
func (s *Store) Threads() []store.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]store.Thread, 0, len(s.threads))
	for _, thread := range s.threads {
		items = append(items, thread)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (s *Store) putThread(thread store.Thread, insert bool) error {
	_, exists := s.threads[thread.ID]
	if insert && exists {
		return store.ErrDuplicate
	}
	if !insert && !exists {
		return sql.ErrNoRows
	}
	if thread.Commontable != nil {
		for id, other := range s.threads {
			if id != thread.ID && other.Commontable != nil && *other.Commontable == *thread.Commontable {
				return store.ErrDuplicate
			}
		}
	}
	s.threads[thread.ID] = thread
	return nil
}

func (s *Store) listSubscriptions(threadID string) []store.Subscription {
	items := make([]store.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.ThreadID == threadID {
			items = append(items, sub)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// memTx records the prior value of every row it writes so a failed callback
// can be undone. A nil entry in threads means the row did not exist.
type memTx struct {
	store         *Store
	threads       map[string]*store.Thread
	subscriptions map[string]store.Subscription
}

func (t *memTx) GetThread(ctx context.Context, threadID string) (store.Thread, error) {
	return t.store.GetThread(ctx, threadID)
}

func (t *memTx) InsertThread(_ context.Context, thread store.Thread) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t.rememberThread(thread.ID)
	return s.putThread(thread, true)
}

func (t *memTx) UpdateThread(ctx context.Context, thread store.Thread) error {
	s := t.store
	if s.UpdateThreadFn != nil {
		return s.UpdateThreadFn(ctx, thread)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.rememberThread(thread.ID)
	return s.putThread(thread, false)
}

func (t *memTx) ListSubscriptions(ctx context.Context, threadID string) ([]store.Subscription, error) {
	return t.store.ListSubscriptions(ctx, threadID)
}

func (t *memTx) MoveSubscription(ctx context.Context, subscriptionID, threadID string) error {
	s := t.store
	if s.MoveSubscriptionFn != nil {
		return s.MoveSubscriptionFn(ctx, subscriptionID, threadID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[subscriptionID]
	if !ok {
		return sql.ErrNoRows
	}
	for _, other := range s.subscriptions {
		if other.ID != sub.ID && other.ThreadID == threadID && other.Subscriber == sub.Subscriber {
			return store.ErrDuplicate
		}
	}
	if _, seen := t.subscriptions[subscriptionID]; !seen {
		t.subscriptions[subscriptionID] = sub
	}
	sub.ThreadID = threadID
	s.subscriptions[subscriptionID] = sub
	return nil
}

// rememberThread must be called with the store mutex held.
func (t *memTx) rememberThread(threadID string) {
	if _, seen := t.threads[threadID]; seen {
		return
	}
	if prior, ok := t.store.threads[threadID]; ok {
		t.threads[threadID] = &prior
		return
	}
	t.threads[threadID] = nil
}

func (t *memTx) rollback() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, prior := range t.threads {
		if prior == nil {
			delete(s.threads, id)
			continue
		}
		s.threads[id] = *prior
	}
	for id, prior := range t.subscriptions {
		s.subscriptions[id] = prior
	}
}
