package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"formfill/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// PutBlob stores data at path, replacing any previous document there.
func (r Repo) PutBlob(ctx context.Context, path string, data []byte, contentType string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO documents(path,content_type,size,data,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(path) DO UPDATE SET content_type=excluded.content_type,size=excluded.size,data=excluded.data,created_at=excluded.created_at`,
		path, contentType, len(data), data, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put blob %s: %w", path, err)
	}
	return nil
}

func (r Repo) GetBlob(ctx context.Context, path string) (domain.Blob, error) {
	var b domain.Blob
	err := r.DB.QueryRowContext(ctx, `SELECT path,content_type,size,data,created_at FROM documents WHERE path=?`, path).
		Scan(&b.Path, &b.ContentType, &b.Size, &b.Data, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	return b, err
}

// ListBlobs returns metadata for documents under prefix, newest first.
func (r Repo) ListBlobs(ctx context.Context, prefix string, limit int) ([]domain.Blob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT path,content_type,size,created_at FROM documents WHERE path LIKE ? ESCAPE '\' ORDER BY created_at DESC, path ASC LIMIT ?`,
		escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Blob
	for rows.Next() {
		var b domain.Blob
		if err := rows.Scan(&b.Path, &b.ContentType, &b.Size, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// EventFilter narrows event queries. Empty fields match everything.
type EventFilter struct {
	Type      string
	SubjectID string
}

func (f EventFilter) clauses() ([]string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.SubjectID != "" {
		clauses = append(clauses, "subject_id=?")
		args = append(args, f.SubjectID)
	}
	return clauses, args
}

func (r Repo) LatestEvents(ctx context.Context, limit int, filter EventFilter) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, filter)
}

// LatestEventsFrom pages backwards: events with IDs below cursor, newest first.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, filter EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses, args := filter.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(subject_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, filter EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses, args := filter.clauses()
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(subject_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SubjectID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", e.ID, err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
