package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Ref is a tagged reference to a record owned by the host application,
// such as the commentable resource or the acting user.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return r.Type + ":" + r.ID
}

// Validate rejects references with an empty part, control characters, or a
// type containing the ":" separator used by String.
func (r Ref) Validate() error {
	if r.Type == "" || r.ID == "" {
		return fmt.Errorf("%w: reference %q is incomplete", ErrInvalidRef, r.String())
	}
	if strings.Contains(r.Type, ":") {
		return fmt.Errorf("%w: type %q contains a colon", ErrInvalidRef, r.Type)
	}
	if strings.ContainsFunc(r.String(), unicode.IsControl) {
		return fmt.Errorf("%w: reference %q contains control characters", ErrInvalidRef, r.String())
	}
	return nil
}

type Thread struct {
	ID string
	// Commontable is nil only for archived threads.
	Commontable *Ref
	ClosedAt    *time.Time
	Closer      *Ref
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Comment struct {
	ID        string
	ThreadID  string
	Creator   Ref
	Body      string
	VotesUp   int
	VotesDown int
	DeletedAt *time.Time
	Deleter   *Ref
	// EditedAt is set by body edits only; deletes and votes leave it alone.
	EditedAt  *time.Time
	Editor    *Ref
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NetScore is up votes minus down votes.
func (c Comment) NetScore() int {
	return c.VotesUp - c.VotesDown
}

func (c Comment) IsDeleted() bool {
	return c.DeletedAt != nil
}

func (c Comment) IsModified() bool {
	return c.EditedAt != nil
}

type Subscription struct {
	ID         string
	ThreadID   string
	Subscriber Ref
	CreatedAt  time.Time
	// UpdatedAt doubles as the subscriber's last-read marker.
	UpdatedAt time.Time
}

type threadRow struct {
	ID              string         `db:"id"`
	CommontableType sql.NullString `db:"commontable_type"`
	CommontableID   sql.NullString `db:"commontable_id"`
	ClosedAt        sql.NullTime   `db:"closed_at"`
	CloserType      sql.NullString `db:"closer_type"`
	CloserID        sql.NullString `db:"closer_id"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r threadRow) toThread() Thread {
	return Thread{
		ID:          r.ID,
		Commontable: refFromNull(r.CommontableType, r.CommontableID),
		ClosedAt:    timeFromNull(r.ClosedAt),
		Closer:      refFromNull(r.CloserType, r.CloserID),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type commentRow struct {
	ID          string         `db:"id"`
	ThreadID    string         `db:"thread_id"`
	CreatorType string         `db:"creator_type"`
	CreatorID   string         `db:"creator_id"`
	Body        string         `db:"body"`
	VotesUp     int            `db:"cached_votes_up"`
	VotesDown   int            `db:"cached_votes_down"`
	DeletedAt   sql.NullTime   `db:"deleted_at"`
	DeleterType sql.NullString `db:"deleter_type"`
	DeleterID   sql.NullString `db:"deleter_id"`
	EditedAt    sql.NullTime   `db:"edited_at"`
	EditorType  sql.NullString `db:"editor_type"`
	EditorID    sql.NullString `db:"editor_id"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r commentRow) toComment() Comment {
	return Comment{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		Creator:   Ref{Type: r.CreatorType, ID: r.CreatorID},
		Body:      r.Body,
		VotesUp:   r.VotesUp,
		VotesDown: r.VotesDown,
		DeletedAt: timeFromNull(r.DeletedAt),
		Deleter:   refFromNull(r.DeleterType, r.DeleterID),
		EditedAt:  timeFromNull(r.EditedAt),
		Editor:    refFromNull(r.EditorType, r.EditorID),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type subscriptionRow struct {
	ID             string    `db:"id"`
	ThreadID       string    `db:"thread_id"`
	SubscriberType string    `db:"subscriber_type"`
	SubscriberID   string    `db:"subscriber_id"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r subscriptionRow) toSubscription() Subscription {
	return Subscription{
		ID:         r.ID,
		ThreadID:   r.ThreadID,
		Subscriber: Ref{Type: r.SubscriberType, ID: r.SubscriberID},
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func refFromNull(typ, id sql.NullString) *Ref {
	if !typ.Valid || !id.Valid {
		return nil
	}
	return &Ref{Type: typ.String, ID: id.String}
}

func timeFromNull(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func refColumns(ref *Ref) (any, any) {
	if ref == nil {
		return nil, nil
	}
	return ref.Type, ref.ID
}
