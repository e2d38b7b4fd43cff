package thread

import (
	"context"
	"sync"
	"testing"
	"time"

	"commentary/api/internal/rbac"
	"commentary/api/internal/store"
	"commentary/api/internal/thread/threadtest"
)

var _ Store = (*threadtest.Store)(nil)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

func testRegistry() *Registry {
	registry := NewRegistry(DefaultConfig())
	registry.RegisterCommontable("post", Config{
		CommentFilter:      NotDeleted,
		CommentOrder:       OrderEarliest,
		CommentsPerPage:    10,
		ThreadRead:         AllowAll,
		ThreadModerator:    RoleAtLeast(rbac.RoleModerator),
		ThreadSubscription: SubscriptionBoth,
	})
	registry.RegisterCommentator("user")
	return registry
}

func newTestService(t *testing.T) (*Service, *threadtest.Store, *recordingNotifier) {
	t.Helper()
	ds := threadtest.New()
	notifier := &recordingNotifier{}
	svc := NewService(ds, testRegistry(), notifier, nil)
	svc.now = func() time.Time { return testNow }
	return svc, ds, notifier
}

func user(id string) *Actor {
	return &Actor{Ref: store.Ref{Type: "user", ID: id}, Name: "User " + id, Role: rbac.RoleCommenter}
}

func moderator(id string) *Actor {
	return &Actor{Ref: store.Ref{Type: "user", ID: id}, Name: "Mod " + id, Role: rbac.RoleModerator}
}

func openThread(t *testing.T, svc *Service, postID string) *Thread {
	t.Helper()
	th, err := svc.ThreadFor(context.Background(), store.Ref{Type: "post", ID: postID})
	if err != nil {
		t.Fatalf("ThreadFor() error = %v", err)
	}
	return th
}

func closedThread(t *testing.T, svc *Service, postID string) *Thread {
	t.Helper()
	th := openThread(t, svc, postID)
	if ok, err := svc.Close(context.Background(), th, moderator("m1")); err != nil || !ok {
		t.Fatalf("Close() = %v, %v", ok, err)
	}
	return th
}
