package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// PgFTS implements Searcher using PostgreSQL full-text search. It is always
// available and serves as the fallback when Meilisearch is not.
type PgFTS struct {
	db *sqlx.DB
}

func NewPgFTS(db *sqlx.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole service is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const (
	commentVector = "to_tsvector('simple', c.body)"
	commentQuery  = "plainto_tsquery('simple', $1)"

	// searchableComments limits results to live comments on threads that
	// still own a commontable.
	searchableComments = `
		FROM comments c
		JOIN threads t ON t.id = c.thread_id
		WHERE c.deleted_at IS NULL
			AND t.commontable_id IS NOT NULL`
)

// Search matches comment bodies with plainto_tsquery, ranks them with
// ts_rank and builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	q = normalize(q)

	where := searchableComments + " AND " + commentVector + " @@ " + commentQuery
	args := []any{q.Text}
	if q.CommontableType != "" {
		args = append(args, q.CommontableType)
		where += fmt.Sprintf(" AND t.commontable_type = $%d", len(args))
	}
	if q.CommontableID != "" {
		args = append(args, q.CommontableID)
		where += fmt.Sprintf(" AND t.commontable_id = $%d", len(args))
	}

	var total int
	if err := p.db.GetContext(ctx, &total, "SELECT count(*) "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT c.id, c.thread_id, t.commontable_type, t.commontable_id,
			c.creator_type, c.creator_id, c.created_at,
			ts_headline('simple', c.body, %s,
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS body
		%s
		ORDER BY ts_rank(%s, %s) DESC, c.created_at DESC
		LIMIT %d OFFSET %d`,
		commentQuery, where, commentVector, commentQuery, q.Limit, q.Offset)

	var records []CommentRecord
	if err := p.db.SelectContext(ctx, &records, dataSQL, args...); err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}

	results := make([]Result, 0, len(records))
	for _, r := range records {
		results = append(results, r.result(r.Body))
	}
	return results, total, nil
}

// LoadAllRecords returns every searchable comment for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CommentRecord, error) {
	records := make([]CommentRecord, 0)
	err := p.db.SelectContext(ctx, &records, `SELECT c.id, c.thread_id, t.commontable_type, t.commontable_id,
			c.creator_type, c.creator_id, c.body, c.created_at`+searchableComments+`
		ORDER BY c.created_at`)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	return records, nil
}
