package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	meili "github.com/meilisearch/meilisearch-go"

	"commentary/api/internal/store"
	"commentary/api/internal/thread"
	"commentary/api/internal/thread/threadtest"
)

type fakeEngine struct {
	mu        sync.Mutex
	healthy   bool
	results   []Result
	searchErr error
	indexed   []CommentRecord
	deleted   []string
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) Search(context.Context, Query) ([]Result, int, error) {
	if f.searchErr != nil {
		return nil, 0, f.searchErr
	}
	return f.results, len(f.results), nil
}

func (f *fakeEngine) IndexComments(records []CommentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeEngine) DeleteComments(ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeFallback struct {
	results []Result
	err     error
	queries []Query
	records []CommentRecord
}

func (f *fakeFallback) Healthy() bool { return true }

func (f *fakeFallback) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.queries = append(f.queries, q)
	return f.results, len(f.results), f.err
}

func (f *fakeFallback) LoadAllRecords(context.Context) ([]CommentRecord, error) {
	return f.records, nil
}

func syncService(engine index, fallback *fakeFallback) *Service {
	s := newService(engine, fallback, fallback, nil)
	s.async = func(fn func()) { fn() }
	return s
}

func TestSearchPrefersHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: true, results: []Result{{CommentID: "cmt_meili"}}}
	fallback := &fakeFallback{results: []Result{{CommentID: "cmt_pg"}}}
	s := syncService(engine, fallback)

	resp := s.Search(context.Background(), Query{Text: "hello"})
	if len(resp.Results) != 1 || resp.Results[0].CommentID != "cmt_meili" {
		t.Fatalf("results = %+v, want meilisearch hit", resp.Results)
	}
	if len(fallback.queries) != 0 {
		t.Fatal("fallback should not be queried when the engine answers")
	}
}

func TestSearchFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		engine index
	}{
		{name: "no engine"},
		{name: "unhealthy engine", engine: &fakeEngine{healthy: false}},
		{name: "engine error", engine: &fakeEngine{healthy: true, searchErr: errors.New("down")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fallback := &fakeFallback{results: []Result{{CommentID: "cmt_pg"}}}
			resp := syncService(tc.engine, fallback).Search(context.Background(), Query{Text: "hello"})
			if len(resp.Results) != 1 || resp.Results[0].CommentID != "cmt_pg" || resp.Query != "hello" {
				t.Fatalf("response = %+v, want pgfts hit", resp)
			}
		})
	}
}

func TestSearchFailureReturnsEmptyResults(t *testing.T) {
	fallback := &fakeFallback{err: errors.New("boom")}
	resp := syncService(nil, fallback).Search(context.Background(), Query{Text: "hello"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("response = %+v, want empty non-nil results", resp)
	}
}

func TestIndexerMirrorsCommentChanges(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	s := syncService(engine, &fakeFallback{})
	registry := thread.NewRegistry(thread.DefaultConfig())
	registry.RegisterCommontable("post", thread.DefaultConfig())
	registry.RegisterCommentator("user")
	svc := thread.NewService(threadtest.New(), registry, nil, nil)
	svc.UseIndexer(s)

	ctx := context.Background()
	th, err := svc.ThreadFor(ctx, store.Ref{Type: "post", ID: "7"})
	if err != nil {
		t.Fatal(err)
	}
	author := &thread.Actor{Ref: store.Ref{Type: "user", ID: "alice"}}
	comment, _, err := svc.PostComment(ctx, th, author, "searchable words")
	if err != nil {
		t.Fatal(err)
	}

	want := []CommentRecord{{
		ID:              comment.ID,
		ThreadID:        th.ID,
		CommontableType: "post",
		CommontableID:   "7",
		CreatorType:     "user",
		CreatorID:       "alice",
		Body:            "searchable words",
		CreatedAt:       comment.CreatedAt,
	}}
	if diff := cmp.Diff(want, engine.indexed); diff != "" {
		t.Fatalf("indexed mismatch (-want +got):\n%s", diff)
	}

	s.IndexComment(th, store.Comment{ID: "cmt_gone", DeletedAt: &comment.CreatedAt})
	s.RemoveComments()
	if diff := cmp.Diff([]string{"cmt_gone"}, engine.deleted); diff != "" {
		t.Fatalf("deleted mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexerIsIdleWithoutHealthyEngine(t *testing.T) {
	engine := &fakeEngine{healthy: false}
	s := syncService(engine, &fakeFallback{})
	th := &thread.Thread{Thread: store.Thread{ID: "thr_1", Commontable: &store.Ref{Type: "post", ID: "1"}}}

	s.IndexComment(th, store.Comment{ID: "cmt_1", Body: "x"})
	s.RemoveComments("cmt_1")
	if len(engine.indexed) != 0 || len(engine.deleted) != 0 {
		t.Fatalf("unhealthy engine was written to: %+v %+v", engine.indexed, engine.deleted)
	}
	if err := s.ReindexAllFromPG(context.Background()); err != nil {
		t.Fatalf("ReindexAllFromPG() error = %v", err)
	}
}

func TestReindexAllFromPG(t *testing.T) {
	engine := &fakeEngine{healthy: true}
	fallback := &fakeFallback{records: []CommentRecord{{ID: "cmt_1"}, {ID: "cmt_2"}}}
	if err := syncService(engine, fallback).ReindexAllFromPG(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fallback.records, engine.indexed); diff != "" {
		t.Fatalf("reindexed mismatch (-want +got):\n%s", diff)
	}
}

func TestHitToResultPrefersHighlightedBody(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := map[string]any{
		"id":              "cmt_1",
		"threadId":        "thr_1",
		"commontableType": "post",
		"commontableId":   "9",
		"creatorType":     "user",
		"creatorId":       "bob",
		"body":            "plain body",
		"createdAt":       created.Format(time.RFC3339Nano),
		"_formatted":      map[string]any{"body": "<mark>plain</mark> body", "id": "cmt_1"},
	}
	hit := meili.Hit{}
	for key, value := range raw {
		encoded, err := json.Marshal(value)
		if err != nil {
			t.Fatal(err)
		}
		hit[key] = encoded
	}

	want := Result{
		CommentID:   "cmt_1",
		ThreadID:    "thr_1",
		Commontable: store.Ref{Type: "post", ID: "9"},
		Creator:     store.Ref{Type: "user", ID: "bob"},
		Snippet:     "<mark>plain</mark> body",
		CreatedAt:   created,
	}
	if diff := cmp.Diff(want, hitToResult(hit)); diff != "" {
		t.Fatalf("hitToResult mismatch (-want +got):\n%s", diff)
	}
}

func TestMeiliFiltersAndNormalize(t *testing.T) {
	got := meiliFilters(Query{CommontableType: "post", CommontableID: "1"})
	if diff := cmp.Diff([]string{`commontableType = "post"`, `commontableId = "1"`}, got); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}
	if q := normalize(Query{Limit: 1000, Offset: -4}); q.Limit != 100 || q.Offset != 0 {
		t.Fatalf("normalize = %+v", q)
	}
	if q := normalize(Query{}); q.Limit != 20 {
		t.Fatalf("default limit = %d", q.Limit)
	}
}
