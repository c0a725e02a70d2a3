// Package audit records administrative push requests in the push_audit
// table and lists them back for operators.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action names what an operator asked for.
type Action string

const (
	ActionDevicePush        Action = "device_push"
	ActionConfigurationPush Action = "configuration_push"
)

// Target types.
const (
	TargetDevice        = "device"
	TargetConfiguration = "configuration"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one administrative push request.
type Entry struct {
	ID          string    `json:"id"`
	Action      Action    `json:"action"`
	TargetType  string    `json:"target_type"`
	TargetID    int64     `json:"target_id"`
	MessageType string    `json:"message_type"`
	Priority    string    `json:"priority"`
	Recipients  int       `json:"recipients"`
	RequestID   string    `json:"request_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Action     Action
	TargetType string
	TargetID   int64
	// FailedOnly keeps entries whose delivery reported an error.
	FailedOnly bool
	Limit      int
	Offset     int
}

// Page is one page of List results, newest first.
type Page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists audit entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*Page, error)
}

// SQLiteRepository is the push_audit table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e, filling ID and CreatedAt when unset.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Action == "" || e.TargetType == "" {
		return fmt.Errorf("audit entry needs an action and a target type")
	}
	if e.ID == "" {
		e.ID = "push-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO push_audit
		   (id, action, target_type, target_id, message_type, priority, recipients, request_id, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.TargetType, e.TargetID, e.MessageType, e.Priority, e.Recipients,
		nullable(e.RequestID), nullable(e.Error),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting push audit entry: %w", err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*Page, error) {
	f.Limit = min(max(f.Limit, 0), maxLimit)
	if f.Limit == 0 {
		f.Limit = defaultLimit
	}
	f.Offset = max(f.Offset, 0)

	where, args := whereClause(f)

	var total int
	//nolint:gosec // where holds only fixed conditions with ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM push_audit"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting push audit entries: %w", err)
	}

	//nolint:gosec // where holds only fixed conditions with ? placeholders
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, target_type, target_id, message_type, priority, recipients, request_id, error, created_at
		   FROM push_audit`+where+`
		  ORDER BY created_at DESC, id DESC
		  LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying push audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push audit entries: %w", err)
	}

	return &Page{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.TargetType != "" {
		conds = append(conds, "target_type = ?")
		args = append(args, f.TargetType)
	}
	if f.TargetID != 0 {
		conds = append(conds, "target_id = ?")
		args = append(args, f.TargetID)
	}
	if f.FailedOnly {
		conds = append(conds, "error IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e         Entry
		action    string
		requestID sql.NullString
		errText   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&e.ID, &action, &e.TargetType, &e.TargetID, &e.MessageType,
		&e.Priority, &e.Recipients, &requestID, &errText, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning push audit entry: %w", err)
	}
	e.Action = Action(action)
	e.RequestID = requestID.String
	e.Error = errText.String

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing push audit timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
