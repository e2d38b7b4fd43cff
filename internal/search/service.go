package search

import (
	"context"

	"go.uber.org/zap"

	"commentary/api/internal/metrics"
	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

// index is the writable side of an external search engine.
type index interface {
	Searcher
	IndexComments(records []CommentRecord) error
	DeleteComments(ids ...string) error
}

type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]CommentRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search. It also keeps the Meilisearch index in step with
// comment changes as a thread.CommentIndexer.
type Service struct {
	engine   index
	fallback Searcher
	loader   recordLoader
	logger   *zap.Logger
	async    func(func())
}

var _ thread.CommentIndexer = (*Service)(nil)

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	s := newService(nil, pgfts, pgfts, logger)
	if meili != nil {
		s.engine = meili
	}
	return s
}

func newService(engine index, fallback Searcher, loader recordLoader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:   engine,
		fallback: fallback,
		loader:   loader,
		logger:   logger.Named("search"),
		async:    func(fn func()) { go fn() },
	}
}

func (s *Service) indexing() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
// Failures are logged and produce an empty response.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.indexing() {
		results, total, err := s.engine.Search(ctx, q)
		if err == nil {
			metrics.SearchQueries.WithLabelValues("meili").Inc()
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", zap.Error(err))
		metrics.SearchQueries.WithLabelValues("error").Inc()
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	metrics.SearchQueries.WithLabelValues("pgfts").Inc()
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexComment pushes a comment to Meilisearch in the background. Deleted
// comments and comments on archived threads are removed instead.
func (s *Service) IndexComment(t *thread.Thread, c store.Comment) {
	if !s.indexing() {
		return
	}
	if t.Commontable == nil || c.IsDeleted() {
		s.RemoveComments(c.ID)
		return
	}
	record := CommentRecord{
		ID:              c.ID,
		ThreadID:        t.ID,
		CommontableType: t.Commontable.Type,
		CommontableID:   t.Commontable.ID,
		CreatorType:     c.Creator.Type,
		CreatorID:       c.Creator.ID,
		Body:            c.Body,
		CreatedAt:       c.CreatedAt,
	}
	s.async(func() {
		if err := s.engine.IndexComments([]CommentRecord{record}); err != nil {
			s.logger.Warn("index comment", zap.String("comment_id", c.ID), zap.Error(err))
		}
	})
}

// RemoveComments drops comments from Meilisearch in the background.
func (s *Service) RemoveComments(ids ...string) {
	if len(ids) == 0 || !s.indexing() {
		return
	}
	s.async(func() {
		if err := s.engine.DeleteComments(ids...); err != nil {
			s.logger.Warn("remove comments", zap.Strings("comment_ids", ids), zap.Error(err))
		}
	})
}

// ReindexAllFromPG pushes every searchable comment from Postgres into
// Meilisearch. It is a no-op when Meilisearch is absent or unhealthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) error {
	if !s.indexing() || s.loader == nil {
		return nil
	}
	records, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		return err
	}
	if err := s.engine.IndexComments(records); err != nil {
		return err
	}
	s.logger.Info("search index rebuilt", zap.Int("comments", len(records)))
	return nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
