package thread

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"commentary/api/internal/metrics"
	"commentary/api/internal/store"
	"commentary/api/internal/util"
)

// Subscription returns subscriber's subscription to t, or nil when there is
// none or subscriber is not a commentator.
func (s *Service) Subscription(ctx context.Context, t *Thread, subscriber *Actor) (*store.Subscription, error) {
	if !s.registry.IsCommentator(subscriber) {
		return nil, nil
	}
	sub, err := s.store.FindSubscription(ctx, t.ID, subscriber.Ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Subscribe returns false when subscriber is not a commentator or is already
// subscribed.
func (s *Service) Subscribe(ctx context.Context, t *Thread, subscriber *Actor) (bool, error) {
	if !s.registry.IsCommentator(subscriber) {
		return false, nil
	}
	existing, err := s.Subscription(ctx, t, subscriber)
	if err != nil || existing != nil {
		return false, err
	}

	now := s.now()
	sub := store.Subscription{
		ID:         util.NewID("sub"),
		ThreadID:   t.ID,
		Subscriber: subscriber.Ref,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertSubscription(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	metrics.SubscriptionChanges.WithLabelValues("subscribe").Inc()
	s.logger.Info("subscribed", zap.String("thread_id", t.ID), zap.Stringer("subscriber", subscriber.Ref))
	return true, nil
}

func (s *Service) Unsubscribe(ctx context.Context, t *Thread, subscriber *Actor) (bool, error) {
	sub, err := s.Subscription(ctx, t, subscriber)
	if err != nil || sub == nil {
		return false, err
	}
	ok, err := s.store.DeleteSubscription(ctx, sub.ID)
	if err != nil || !ok {
		return false, err
	}
	metrics.SubscriptionChanges.WithLabelValues("unsubscribe").Inc()
	s.logger.Info("unsubscribed", zap.String("thread_id", t.ID), zap.Stringer("subscriber", subscriber.Ref))
	return true, nil
}

// MarkRead moves the subscription's last-read marker to now.
func (s *Service) MarkRead(ctx context.Context, t *Thread, subscriber *Actor) (bool, error) {
	sub, err := s.Subscription(ctx, t, subscriber)
	if err != nil || sub == nil {
		return false, err
	}
	return s.store.TouchSubscription(ctx, sub.ID, s.now())
}

func (s *Service) Subscribers(ctx context.Context, t *Thread) ([]store.Ref, error) {
	subs, err := s.store.ListSubscriptions(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	refs := make([]store.Ref, 0, len(subs))
	for _, sub := range subs {
		refs = append(refs, sub.Subscriber)
	}
	return refs, nil
}
