package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicate is returned when a write violates a uniqueness constraint,
// e.g. a second thread for the same commontable.
var ErrDuplicate = errors.New("duplicate record")

// ErrInvalidRef is returned by Ref.Validate.
var ErrInvalidRef = errors.New("invalid reference")

const uniqueViolation = "23505"

const threadColumns = `id, commontable_type, commontable_id, closed_at, closer_type, closer_id, created_at, updated_at`

const commentColumns = `id, thread_id, creator_type, creator_id, body, cached_votes_up, cached_votes_down,
	deleted_at, deleter_type, deleter_id, edited_at, editor_type, editor_id, created_at, updated_at`

const subscriptionColumns = `id, thread_id, subscriber_type, subscriber_id, created_at, updated_at`

// Tx is the view of the store available while a thread row is locked.
type Tx interface {
	GetThread(ctx context.Context, threadID string) (Thread, error)
	InsertThread(ctx context.Context, thread Thread) error
	UpdateThread(ctx context.Context, thread Thread) error
	ListSubscriptions(ctx context.Context, threadID string) ([]Subscription, error)
	MoveSubscription(ctx context.Context, subscriptionID, threadID string) error
}

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertThread(ctx context.Context, thread Thread) error {
	return insertThread(ctx, s.db, thread)
}

func (s *PostgresStore) GetThread(ctx context.Context, threadID string) (Thread, error) {
	return getThread(ctx, s.db, `SELECT `+threadColumns+` FROM threads WHERE id=$1`, threadID)
}

func (s *PostgresStore) FindThreadByCommontable(ctx context.Context, commontable Ref) (Thread, error) {
	return getThread(ctx, s.db, `
		SELECT `+threadColumns+`
		FROM threads
		WHERE commontable_type=$1 AND commontable_id=$2
	`, commontable.Type, commontable.ID)
}

func (s *PostgresStore) UpdateThread(ctx context.Context, thread Thread) error {
	return updateThread(ctx, s.db, thread)
}

// DeleteThread removes a thread together with its comments, votes and
// subscriptions in one transaction.
func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete thread: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []struct {
		label string
		query string
	}{
		{"delete comment votes", `DELETE FROM comment_votes WHERE comment_id IN (SELECT id FROM comments WHERE thread_id=$1)`},
		{"delete comments", `DELETE FROM comments WHERE thread_id=$1`},
		{"delete subscriptions", `DELETE FROM subscriptions WHERE thread_id=$1`},
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt.query, threadID); err != nil {
			return fmt.Errorf("%s: %w", stmt.label, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id=$1`, threadID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	if err := requireAffected(result, "delete thread"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete thread: %w", err)
	}
	return nil
}

// WithThreadLock runs fn inside a transaction holding a row-level exclusive
// lock on the thread. Concurrent callers for the same thread block until the
// holder commits or rolls back. Any error from fn rolls back every write.
func (s *PostgresStore) WithThreadLock(ctx context.Context, threadID string, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin thread lock: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM threads WHERE id=$1 FOR UPDATE`, threadID); err != nil {
		return fmt.Errorf("lock thread: %w", err)
	}

	if err := fn(&TxStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit thread lock: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, thread_id, creator_type, creator_id, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, comment.ID, comment.ThreadID, comment.Creator.Type, comment.Creator.ID, comment.Body, comment.CreatedAt, comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, threadID, commentID string) (Comment, error) {
	var row commentRow
	err := s.db.GetContext(ctx, &row, `SELECT `+commentColumns+` FROM comments WHERE thread_id=$1 AND id=$2`, threadID, commentID)
	if err != nil {
		return Comment{}, err
	}
	return row.toComment(), nil
}

// ListComments returns every comment of the thread in insertion order.
func (s *PostgresStore) ListComments(ctx context.Context, threadID string) ([]Comment, error) {
	var rows []commentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE thread_id=$1
		ORDER BY created_at ASC, id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	items := make([]Comment, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toComment())
	}
	return items, nil
}

func (s *PostgresStore) SoftDeleteComment(ctx context.Context, threadID, commentID string, deleter *Ref, at time.Time) (bool, error) {
	deleterType, deleterID := refColumns(deleter)
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET deleted_at=$3, deleter_type=$4, deleter_id=$5, updated_at=$3
		WHERE thread_id=$1 AND id=$2 AND deleted_at IS NULL
	`, threadID, commentID, at, deleterType, deleterID)
	if err != nil {
		return false, fmt.Errorf("soft delete comment: %w", err)
	}
	return affected(result, "soft delete comment")
}

func (s *PostgresStore) RestoreComment(ctx context.Context, threadID, commentID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET deleted_at=NULL, deleter_type=NULL, deleter_id=NULL, updated_at=$3
		WHERE thread_id=$1 AND id=$2 AND deleted_at IS NOT NULL
	`, threadID, commentID, at)
	if err != nil {
		return false, fmt.Errorf("restore comment: %w", err)
	}
	return affected(result, "restore comment")
}

// UpdateCommentBody replaces the body of a live comment and records the edit.
// It returns false when the comment is missing or deleted.
func (s *PostgresStore) UpdateCommentBody(ctx context.Context, threadID, commentID, body string, editor *Ref, at time.Time) (bool, error) {
	editorType, editorID := refColumns(editor)
	result, err := s.db.ExecContext(ctx, `
		UPDATE comments
		SET body=$3, edited_at=$4, editor_type=$5, editor_id=$6, updated_at=$4
		WHERE thread_id=$1 AND id=$2 AND deleted_at IS NULL
	`, threadID, commentID, body, at, editorType, editorID)
	if err != nil {
		return false, fmt.Errorf("update comment body: %w", err)
	}
	return affected(result, "update comment body")
}

// ToggleCommentVote records vote (+1 or -1) for voter. Casting the same vote
// twice withdraws it. Cached tallies on the comment are recomputed in the same
// transaction.
func (s *PostgresStore) ToggleCommentVote(ctx context.Context, threadID, commentID string, voter Ref, vote int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin comment vote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	if err := tx.GetContext(ctx, &owner, `SELECT id FROM comments WHERE thread_id=$1 AND id=$2 FOR UPDATE`, threadID, commentID); err != nil {
		return err
	}

	var existing int
	err = tx.GetContext(ctx, &existing, `
		SELECT vote
		FROM comment_votes
		WHERE comment_id=$1 AND voter_type=$2 AND voter_id=$3
	`, commentID, voter.Type, voter.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup comment vote: %w", err)
	}
	if err == nil && existing == vote {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM comment_votes
			WHERE comment_id=$1 AND voter_type=$2 AND voter_id=$3
		`, commentID, voter.Type, voter.ID); err != nil {
			return fmt.Errorf("delete comment vote: %w", err)
		}
	} else if _, err := tx.ExecContext(ctx, `
		INSERT INTO comment_votes (comment_id, voter_type, voter_id, vote)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (comment_id, voter_type, voter_id)
		DO UPDATE SET vote=EXCLUDED.vote, updated_at=NOW()
	`, commentID, voter.Type, voter.ID, vote); err != nil {
		return fmt.Errorf("upsert comment vote: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE comments c
		SET cached_votes_up = COALESCE(v.up, 0), cached_votes_down = COALESCE(v.down, 0)
		FROM (
			SELECT COUNT(*) FILTER (WHERE vote = 1) AS up, COUNT(*) FILTER (WHERE vote = -1) AS down
			FROM comment_votes
			WHERE comment_id=$1
		) v
		WHERE c.id=$1
	`, commentID); err != nil {
		return fmt.Errorf("refresh comment tallies: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit comment vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSubscription(ctx context.Context, threadID string, subscriber Ref) (Subscription, error) {
	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE thread_id=$1 AND subscriber_type=$2 AND subscriber_id=$3
	`, threadID, subscriber.Type, subscriber.ID)
	if err != nil {
		return Subscription{}, err
	}
	return row.toSubscription(), nil
}

func (s *PostgresStore) InsertSubscription(ctx context.Context, sub Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, thread_id, subscriber_type, subscriber_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.ThreadID, sub.Subscriber.Type, sub.Subscriber.ID, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, subscriptionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return affected(result, "delete subscription")
}

func (s *PostgresStore) TouchSubscription(ctx context.Context, subscriptionID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET updated_at=$2 WHERE id=$1`, subscriptionID, at)
	if err != nil {
		return false, fmt.Errorf("touch subscription: %w", err)
	}
	return affected(result, "touch subscription")
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, threadID string) ([]Subscription, error) {
	return listSubscriptions(ctx, s.db, threadID)
}

// TxStore is the Tx implementation handed out by WithThreadLock.
type TxStore struct {
	tx *sqlx.Tx
}

func (t *TxStore) GetThread(ctx context.Context, threadID string) (Thread, error) {
	return getThread(ctx, t.tx, `SELECT `+threadColumns+` FROM threads WHERE id=$1`, threadID)
}

func (t *TxStore) InsertThread(ctx context.Context, thread Thread) error {
	return insertThread(ctx, t.tx, thread)
}

func (t *TxStore) UpdateThread(ctx context.Context, thread Thread) error {
	return updateThread(ctx, t.tx, thread)
}

func (t *TxStore) ListSubscriptions(ctx context.Context, threadID string) ([]Subscription, error) {
	return listSubscriptions(ctx, t.tx, threadID)
}

// MoveSubscription reassigns a subscription to another thread. The last-read
// marker is left untouched.
func (t *TxStore) MoveSubscription(ctx context.Context, subscriptionID, threadID string) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE subscriptions SET thread_id=$2 WHERE id=$1`, subscriptionID, threadID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("move subscription: %w", err)
	}
	return requireAffected(result, "move subscription")
}

func getThread(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (Thread, error) {
	var row threadRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		return Thread{}, err
	}
	return row.toThread(), nil
}

func insertThread(ctx context.Context, e sqlx.ExecerContext, thread Thread) error {
	commontableType, commontableID := refColumns(thread.Commontable)
	closerType, closerID := refColumns(thread.Closer)
	_, err := e.ExecContext(ctx, `
		INSERT INTO threads (id, commontable_type, commontable_id, closed_at, closer_type, closer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, thread.ID, commontableType, commontableID, thread.ClosedAt, closerType, closerID, thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func updateThread(ctx context.Context, e sqlx.ExecerContext, thread Thread) error {
	commontableType, commontableID := refColumns(thread.Commontable)
	closerType, closerID := refColumns(thread.Closer)
	result, err := e.ExecContext(ctx, `
		UPDATE threads
		SET commontable_type=$2, commontable_id=$3, closed_at=$4, closer_type=$5, closer_id=$6, updated_at=$7
		WHERE id=$1
	`, thread.ID, commontableType, commontableID, thread.ClosedAt, closerType, closerID, thread.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update thread: %w", err)
	}
	return requireAffected(result, "update thread")
}

func listSubscriptions(ctx context.Context, q sqlx.QueryerContext, threadID string) ([]Subscription, error) {
	var rows []subscriptionRow
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE thread_id=$1
		ORDER BY created_at ASC, id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	items := make([]Subscription, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toSubscription())
	}
	return items, nil
}

func affected(result sql.Result, label string) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", label, err)
	}
	return n > 0, nil
}

func requireAffected(result sql.Result, label string) error {
	ok, err := affected(result, label)
	if err != nil {
		return err
	}
	if !ok {
		return sql.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
