package thread

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"commentary/api/internal/store"
)

var sortRefs = cmpopts.SortSlices(func(a, b store.Ref) bool { return a.String() < b.String() })

func TestThreadForCreatesOnceAndReuses(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()

	first := openThread(t, svc, "1")
	second := openThread(t, svc, "1")
	if first.ID != second.ID {
		t.Fatalf("expected the same thread, got %s and %s", first.ID, second.ID)
	}
	if first.IsClosed() || first.IsArchived() {
		t.Fatal("new thread should be open")
	}
	if got := len(ds.Threads()); got != 1 {
		t.Fatalf("expected 1 stored thread, got %d", got)
	}

	if _, err := svc.ThreadFor(ctx, store.Ref{Type: "photo", ID: "1"}); !errors.Is(err, ErrUnknownCommontable) {
		t.Fatalf("expected ErrUnknownCommontable, got %v", err)
	}
}

func TestThreadForConcurrentCreatorsShareOneThread(t *testing.T) {
	svc, ds, _ := newTestService(t)

	var wg sync.WaitGroup
	got := make([]string, 8)
	errs := make([]error, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th, err := svc.ThreadFor(context.Background(), store.Ref{Type: "post", ID: "race"})
			if err != nil {
				errs[i] = err
				return
			}
			got[i] = th.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if got[i] != got[0] {
			t.Fatalf("caller %d got thread %s, want %s", i, got[i], got[0])
		}
	}
	if n := len(ds.Threads()); n != 1 {
		t.Fatalf("expected exactly one thread, got %d", n)
	}
}

func TestThreadUniquenessPerCommontable(t *testing.T) {
	_, ds, _ := newTestService(t)
	ctx := context.Background()
	ref := store.Ref{Type: "post", ID: "1"}

	if err := ds.InsertThread(ctx, store.Thread{ID: "thr_a", Commontable: &ref}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := ds.InsertThread(ctx, store.Thread{ID: "thr_b", Commontable: &ref}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("second insert error = %v, want ErrDuplicate", err)
	}
}

func TestCloseAndReopen(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	commontable := *th.Commontable
	closer := moderator("m1")

	ok, err := svc.Close(ctx, th, closer)
	if err != nil || !ok {
		t.Fatalf("Close() = %v, %v", ok, err)
	}
	if !th.IsClosed() || !th.ClosedAt.Equal(testNow) {
		t.Fatalf("closed_at = %v, want %v", th.ClosedAt, testNow)
	}
	if th.Closer == nil || *th.Closer != closer.Ref {
		t.Fatalf("closer = %v, want %v", th.Closer, closer.Ref)
	}

	if ok, err := svc.Close(ctx, th, user("u1")); err != nil || ok {
		t.Fatalf("second Close() = %v, %v; want false, nil", ok, err)
	}
	if *th.Closer != closer.Ref {
		t.Fatal("second close must not change the closer")
	}

	ok, err = svc.Reopen(ctx, th, closer)
	if err != nil || !ok {
		t.Fatalf("Reopen() = %v, %v", ok, err)
	}
	if th.IsClosed() || th.Closer != nil {
		t.Fatal("reopen should clear closed_at and closer")
	}
	if diff := cmp.Diff(commontable, *th.Commontable); diff != "" {
		t.Fatalf("commontable changed (-want +got):\n%s", diff)
	}

	stored, err := ds.GetThread(ctx, th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ClosedAt != nil {
		t.Fatal("reopen was not persisted")
	}

	if ok, err := svc.Reopen(ctx, th, closer); err != nil || ok {
		t.Fatalf("Reopen() on open thread = %v, %v; want false, nil", ok, err)
	}
}

func TestClosePersistenceFailureLeavesThreadOpen(t *testing.T) {
	svc, ds, _ := newTestService(t)
	th := openThread(t, svc, "1")
	boom := errors.New("disk full")
	ds.UpdateThreadFn = func(context.Context, store.Thread) error { return boom }

	ok, err := svc.Close(context.Background(), th, nil)
	if !errors.Is(err, boom) || ok {
		t.Fatalf("Close() = %v, %v; want false, %v", ok, err, boom)
	}
	if th.IsClosed() {
		t.Fatal("in-memory thread must stay open after a failed write")
	}
}

func TestReopenArchivedThreadFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	th := closedThread(t, svc, "1")
	if _, err := svc.Clear(ctx, th); err != nil {
		t.Fatal(err)
	}
	if !th.IsArchived() || !th.IsClosed() {
		t.Fatal("expected archived thread that still carries closed_at")
	}

	if ok, err := svc.Reopen(ctx, th, nil); err != nil || ok {
		t.Fatalf("Reopen() archived = %v, %v; want false, nil", ok, err)
	}
}

func TestClearMovesCommontableAndSubscriptions(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	commontable := *th.Commontable

	for _, id := range []string{"u1", "u2", "u3"} {
		if ok, err := svc.Subscribe(ctx, th, user(id)); err != nil || !ok {
			t.Fatalf("Subscribe(%s) = %v, %v", id, ok, err)
		}
	}
	if _, err := svc.Close(ctx, th, moderator("m1")); err != nil {
		t.Fatal(err)
	}

	replacement, err := svc.Clear(ctx, th)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if replacement == nil {
		t.Fatal("expected a replacement thread")
	}

	if !th.IsArchived() {
		t.Fatal("old thread should be archived")
	}
	if replacement.IsClosed() || replacement.IsArchived() {
		t.Fatal("replacement should be open")
	}
	if diff := cmp.Diff(commontable, *replacement.Commontable); diff != "" {
		t.Fatalf("replacement commontable mismatch (-want +got):\n%s", diff)
	}
	if got := len(ds.Threads()); got != 2 {
		t.Fatalf("expected exactly one new thread, have %d threads", got)
	}

	live := openThread(t, svc, "1")
	if live.ID != replacement.ID {
		t.Fatalf("commontable resolves to %s, want replacement %s", live.ID, replacement.ID)
	}

	oldSubs, err := svc.Subscribers(ctx, th)
	if err != nil {
		t.Fatal(err)
	}
	if len(oldSubs) != 0 {
		t.Fatalf("old thread still has subscribers: %v", oldSubs)
	}
	newSubs, err := svc.Subscribers(ctx, replacement)
	if err != nil {
		t.Fatal(err)
	}
	want := []store.Ref{{Type: "user", ID: "u1"}, {Type: "user", ID: "u2"}, {Type: "user", ID: "u3"}}
	if diff := cmp.Diff(want, newSubs, sortRefs); diff != "" {
		t.Fatalf("replacement subscribers mismatch (-want +got):\n%s", diff)
	}
}

func TestClearIsNoOpUnlessClosedWithCommontable(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()

	open := openThread(t, svc, "1")
	if replacement, err := svc.Clear(ctx, open); err != nil || replacement != nil {
		t.Fatalf("Clear() open = %v, %v; want nil, nil", replacement, err)
	}

	closed := closedThread(t, svc, "2")
	if _, err := svc.Clear(ctx, closed); err != nil {
		t.Fatal(err)
	}
	before := len(ds.Threads())
	if replacement, err := svc.Clear(ctx, closed); err != nil || replacement != nil {
		t.Fatalf("Clear() archived = %v, %v; want nil, nil", replacement, err)
	}
	if after := len(ds.Threads()); after != before {
		t.Fatalf("thread count changed from %d to %d", before, after)
	}
}

func TestClearRechecksStateUnderLock(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()
	th := closedThread(t, svc, "1")

	stale, err := svc.Load(ctx, th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Clear(ctx, th); err != nil {
		t.Fatal(err)
	}

	replacement, err := svc.Clear(ctx, stale)
	if err != nil || replacement != nil {
		t.Fatalf("Clear() stale = %v, %v; want nil, nil", replacement, err)
	}
	if !stale.IsArchived() {
		t.Fatal("stale value should be refreshed from the locked row")
	}
	if got := len(ds.Threads()); got != 2 {
		t.Fatalf("expected 2 threads, got %d", got)
	}
}

func TestConcurrentClearCreatesOneReplacement(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()
	th := closedThread(t, svc, "1")

	const callers = 6
	threads := make([]*Thread, callers)
	for i := range threads {
		loaded, err := svc.Load(ctx, th.ID)
		if err != nil {
			t.Fatal(err)
		}
		threads[i] = loaded
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		replacements int
		failures     []error
	)
	for _, loaded := range threads {
		wg.Add(1)
		go func(loaded *Thread) {
			defer wg.Done()
			replacement, err := svc.Clear(ctx, loaded)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
			}
			if replacement != nil {
				replacements++
			}
		}(loaded)
	}
	wg.Wait()

	if len(failures) != 0 {
		t.Fatalf("unexpected errors: %v", failures)
	}
	if replacements != 1 {
		t.Fatalf("expected exactly one replacement, got %d", replacements)
	}
	if got := len(ds.Threads()); got != 2 {
		t.Fatalf("expected 2 threads, got %d", got)
	}
}

func TestClearFailureRollsBackEveryStep(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	if ok, err := svc.Subscribe(ctx, th, user("u1")); err != nil || !ok {
		t.Fatalf("Subscribe() = %v, %v", ok, err)
	}
	if _, err := svc.Close(ctx, th, nil); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("connection reset")
	ds.MoveSubscriptionFn = func(context.Context, string, string) error { return boom }

	replacement, err := svc.Clear(ctx, th)
	if !errors.Is(err, boom) || replacement != nil {
		t.Fatalf("Clear() = %v, %v; want nil, %v", replacement, err, boom)
	}
	if th.IsArchived() {
		t.Fatal("in-memory thread must keep its commontable after a failed clear")
	}

	threads := ds.Threads()
	if len(threads) != 1 {
		t.Fatalf("replacement thread survived rollback: %d threads", len(threads))
	}
	if threads[0].Commontable == nil {
		t.Fatal("stored thread lost its commontable despite rollback")
	}
	subs, err := svc.Subscribers(ctx, th)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected subscription to stay on the original thread, got %v", subs)
	}
}

func TestClearMissingThread(t *testing.T) {
	svc, _, _ := newTestService(t)
	closedAt := testNow
	ghost := svc.wrap(store.Thread{ID: "thr_missing", Commontable: &store.Ref{Type: "post", ID: "x"}, ClosedAt: &closedAt})

	if _, err := svc.Clear(context.Background(), ghost); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Clear() error = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, ds, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	if _, _, err := svc.PostComment(ctx, th, user("u1"), "hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(ctx, th, user("u2")); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, th); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Load(ctx, th.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Load() after delete error = %v, want sql.ErrNoRows", err)
	}
	comments, _ := ds.ListComments(ctx, th.ID)
	subs, _ := ds.ListSubscriptions(ctx, th.ID)
	if len(comments) != 0 || len(subs) != 0 {
		t.Fatalf("expected cascade, left %d comments and %d subscriptions", len(comments), len(subs))
	}
}

func TestPostComment(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	author := user("u1")
	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := svc.Subscribe(ctx, th, user(id)); err != nil {
			t.Fatal(err)
		}
	}

	var page int
	for i := 0; i < 11; i++ {
		comment, p, err := svc.PostComment(ctx, th, author, "  comment  ")
		if err != nil {
			t.Fatalf("PostComment() #%d error = %v", i, err)
		}
		if comment.Body != "comment" || comment.Creator != author.Ref {
			t.Fatalf("unexpected comment %+v", comment)
		}
		page = p
	}
	if page != 2 {
		t.Fatalf("eleventh comment landed on page %d, want 2", page)
	}

	sent := notifier.notifications()
	if len(sent) != 11 {
		t.Fatalf("expected 11 notifications, got %d", len(sent))
	}
	last := sent[len(sent)-1]
	if last.Kind != NotificationCommentCreated || last.ActorName != author.Name || last.Body != "comment" {
		t.Fatalf("unexpected notification %+v", last)
	}
	wantRecipients := []store.Ref{{Type: "user", ID: "u2"}, {Type: "user", ID: "u3"}}
	if diff := cmp.Diff(wantRecipients, last.Recipients, sortRefs); diff != "" {
		t.Fatalf("recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestPostCommentRejections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	open := openThread(t, svc, "1")
	closed := closedThread(t, svc, "2")

	cases := []struct {
		name  string
		th    *Thread
		actor *Actor
		body  string
		want  error
	}{
		{name: "empty body", th: open, actor: user("u1"), body: "   ", want: ErrValidation},
		{name: "anonymous", th: open, actor: nil, body: "hi", want: ErrNotPermitted},
		{name: "not a commentator", th: open, actor: &Actor{Ref: store.Ref{Type: "bot", ID: "1"}}, body: "hi", want: ErrNotPermitted},
		{name: "closed thread", th: closed, actor: user("u1"), body: "hi", want: ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.PostComment(ctx, tc.th, tc.actor, tc.body); !errors.Is(err, tc.want) {
				t.Fatalf("PostComment() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	notifier.err = errors.New("broker down")
	th := openThread(t, svc, "1")
	if _, err := svc.Subscribe(ctx, th, user("u2")); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.PostComment(ctx, th, user("u1"), "hi"); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if _, err := svc.Close(ctx, th, nil); err != nil {
		t.Fatal(err)
	}
	if ok, err := svc.Reopen(ctx, th, moderator("m1")); err != nil || !ok {
		t.Fatalf("Reopen() = %v, %v", ok, err)
	}
	sent := notifier.notifications()
	if len(sent) != 2 || sent[1].Kind != NotificationThreadReopened {
		t.Fatalf("expected comment and reopen notifications, got %+v", sent)
	}
}

func TestNoNotificationWithoutOtherSubscribers(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	if _, err := svc.Subscribe(ctx, th, user("u1")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := svc.PostComment(ctx, th, user("u1"), "talking to myself"); err != nil {
		t.Fatal(err)
	}
	if sent := notifier.notifications(); len(sent) != 0 {
		t.Fatalf("expected no notifications, got %+v", sent)
	}
}

func TestSoftDeleteAndRestoreComment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	comment, _, err := svc.PostComment(ctx, th, user("u1"), "oops")
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := svc.DeleteComment(ctx, th, comment.ID, moderator("m1")); err != nil || !ok {
		t.Fatalf("DeleteComment() = %v, %v", ok, err)
	}
	if ok, err := svc.DeleteComment(ctx, th, comment.ID, moderator("m1")); err != nil || ok {
		t.Fatalf("second DeleteComment() = %v, %v; want false, nil", ok, err)
	}

	visible, err := svc.PaginatedComments(ctx, th, 1, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if visible.Total != 0 {
		t.Fatalf("deleted comment still visible: %+v", visible.Comments)
	}
	all, err := svc.PaginatedComments(ctx, th, 1, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 1 || all.Comments[0].Deleter == nil || all.Comments[0].Deleter.ID != "m1" {
		t.Fatalf("show_all listing = %+v", all.Comments)
	}

	if ok, err := svc.UndeleteComment(ctx, th, comment.ID); err != nil || !ok {
		t.Fatalf("UndeleteComment() = %v, %v", ok, err)
	}
	if ok, err := svc.UndeleteComment(ctx, th, "cmt_missing"); err != nil || ok {
		t.Fatalf("UndeleteComment() missing = %v, %v; want false, nil", ok, err)
	}
}

func TestEditComment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	comment, _, err := svc.PostComment(ctx, th, user("u1"), "first draft")
	if err != nil {
		t.Fatal(err)
	}
	if comment.IsModified() {
		t.Fatal("a fresh comment should not be modified")
	}

	edited, err := svc.EditComment(ctx, th, comment.ID, user("u1"), "  second draft ")
	if err != nil {
		t.Fatalf("EditComment() by creator error = %v", err)
	}
	if edited.Body != "second draft" || !edited.IsModified() || !edited.EditedAt.Equal(testNow) {
		t.Fatalf("edited comment = %+v", edited)
	}

	if _, err := svc.EditComment(ctx, th, comment.ID, user("u2"), "hijack"); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("EditComment() by stranger error = %v, want ErrNotPermitted", err)
	}
	if _, err := svc.EditComment(ctx, th, comment.ID, nil, "anon"); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("EditComment() anonymous error = %v, want ErrNotPermitted", err)
	}
	if _, err := svc.EditComment(ctx, th, comment.ID, user("u1"), "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("EditComment() blank error = %v, want ErrValidation", err)
	}
	if _, err := svc.EditComment(ctx, th, "cmt_missing", user("u1"), "x"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("EditComment() missing error = %v, want sql.ErrNoRows", err)
	}

	byMod, err := svc.EditComment(ctx, th, comment.ID, moderator("m1"), "tidied")
	if err != nil {
		t.Fatalf("EditComment() by moderator error = %v", err)
	}
	if byMod.Editor == nil || byMod.Editor.ID != "m1" || byMod.Creator.ID != "u1" {
		t.Fatalf("moderator edit recorded as %+v", byMod)
	}

	if _, err := svc.Close(ctx, th, moderator("m1")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EditComment(ctx, th, comment.ID, user("u1"), "after close"); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("EditComment() on closed thread error = %v, want ErrNotPermitted", err)
	}
	if _, err := svc.EditComment(ctx, th, comment.ID, moderator("m1"), "after close"); err != nil {
		t.Fatalf("moderator edit on closed thread error = %v", err)
	}

	if _, err := svc.DeleteComment(ctx, th, comment.ID, moderator("m1")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EditComment(ctx, th, comment.ID, moderator("m1"), "ghost"); !errors.Is(err, ErrValidation) {
		t.Fatalf("EditComment() on deleted comment error = %v, want ErrValidation", err)
	}
}

func TestCreatorMayDeleteOwnComment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	mine, _, err := svc.PostComment(ctx, th, user("u1"), "mine")
	if err != nil {
		t.Fatal(err)
	}
	theirs, _, err := svc.PostComment(ctx, th, user("u2"), "theirs")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.DeleteComment(ctx, th, theirs.ID, user("u1")); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("DeleteComment() of another's comment error = %v, want ErrNotPermitted", err)
	}
	if ok, err := svc.DeleteComment(ctx, th, mine.ID, user("u1")); err != nil || !ok {
		t.Fatalf("DeleteComment() own = %v, %v", ok, err)
	}
	if ok, err := svc.DeleteComment(ctx, th, "cmt_missing", user("u1")); err != nil || ok {
		t.Fatalf("DeleteComment() missing = %v, %v; want false, nil", ok, err)
	}

	if _, err := svc.Close(ctx, th, moderator("m1")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DeleteComment(ctx, th, theirs.ID, user("u2")); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("DeleteComment() own on closed thread error = %v, want ErrNotPermitted", err)
	}
}

func TestVoteComment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	comment, _, err := svc.PostComment(ctx, th, user("u1"), "vote on me")
	if err != nil {
		t.Fatal(err)
	}

	voted, err := svc.VoteComment(ctx, th, comment.ID, user("u2"), true)
	if err != nil {
		t.Fatalf("VoteComment() error = %v", err)
	}
	if voted.VotesUp != 1 || voted.VotesDown != 0 {
		t.Fatalf("tallies = %d/%d, want 1/0", voted.VotesUp, voted.VotesDown)
	}

	voted, err = svc.VoteComment(ctx, th, comment.ID, user("u3"), false)
	if err != nil {
		t.Fatal(err)
	}
	if voted.NetScore() != 0 {
		t.Fatalf("net score = %d, want 0", voted.NetScore())
	}

	voted, err = svc.VoteComment(ctx, th, comment.ID, user("u2"), true)
	if err != nil {
		t.Fatal(err)
	}
	if voted.VotesUp != 0 || voted.VotesDown != 1 {
		t.Fatalf("repeat vote should withdraw, tallies = %d/%d", voted.VotesUp, voted.VotesDown)
	}

	if _, err := svc.VoteComment(ctx, th, comment.ID, user("u1"), true); !errors.Is(err, ErrValidation) {
		t.Fatalf("own vote error = %v, want ErrValidation", err)
	}
	if _, err := svc.VoteComment(ctx, th, comment.ID, nil, true); !errors.Is(err, ErrNotPermitted) {
		t.Fatalf("anonymous vote error = %v, want ErrNotPermitted", err)
	}
	if _, err := svc.VoteComment(ctx, th, "cmt_missing", user("u2"), true); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing comment error = %v, want sql.ErrNoRows", err)
	}

	if _, err := svc.DeleteComment(ctx, th, comment.ID, moderator("m1")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.VoteComment(ctx, th, comment.ID, user("u2"), true); !errors.Is(err, ErrValidation) {
		t.Fatalf("deleted comment vote error = %v, want ErrValidation", err)
	}
}

func TestNewCommentPageFollowsConfiguredOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	th := openThread(t, svc, "1")
	for i := 0; i < 25; i++ {
		if _, _, err := svc.PostComment(ctx, th, user("u1"), "c"); err != nil {
			t.Fatal(err)
		}
	}

	page, err := svc.NewCommentPage(ctx, th, 10)
	if err != nil {
		t.Fatal(err)
	}
	if page != 3 {
		t.Fatalf("NewCommentPage() = %d, want 3", page)
	}
}
