package repo

import (
	"context"
	"database/sql"
	"strings"

	"recruitline/internal/domain"
)

const activityColumns = `id,entity_type,entity_id,action,description,user_id,user_name,metadata_json,created_at`

func scanActivity(row scanner) (domain.ActivityLogEntry, error) {
	var e domain.ActivityLogEntry
	var userName, meta sql.NullString
	var createdAt string
	if err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Description, &e.UserID, &userName, &meta, &createdAt); err != nil {
		return e, err
	}
	e.UserName = userName.String
	e.Metadata = meta.String
	var err error
	e.CreatedAt, err = ParseTime(createdAt)
	return e, err
}

type ActivityFilter struct {
	EntityType string
	EntityID   string
	Action     string
	// Before pages backwards from an entry id.
	Before int64
	Limit  int
}

// ListActivity returns entries newest first.
func (r Repo) ListActivity(ctx context.Context, tx *sql.Tx, f ActivityFilter) ([]domain.ActivityLogEntry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	args = append(args, f.Limit)
	return r.queryActivity(ctx, tx, `SELECT `+activityColumns+` FROM activity_log WHERE `+strings.Join(clauses, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
}

// ActivityAfter returns entries with ids greater than cursor, oldest first.
func (r Repo) ActivityAfter(ctx context.Context, cursor int64, limit int) ([]domain.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryActivity(ctx, nil, `SELECT `+activityColumns+` FROM activity_log WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestActivityID returns the highest entry id, 0 when the log is empty.
func (r Repo) LatestActivityID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM activity_log`).Scan(&id)
	return id, err
}

func (r Repo) queryActivity(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.ActivityLogEntry, error) {
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityLogEntry
	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
