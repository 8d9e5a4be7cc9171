// Package events appends to the activity log. Entries are only ever written
// inside the caller's transaction so they commit or roll back with the change
// they describe.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"recruitline/internal/domain"
	"recruitline/internal/repo"
)

// SystemUser attributes entries written by background jobs.
const SystemUser = "system"

type Writer struct {
	Now func() time.Time
}

type Metadata map[string]any

// Entry describes one activity log row; CreatedAt and ID are assigned on append.
type Entry struct {
	EntityType  string
	EntityID    string
	Action      domain.ActivityAction
	Description string
	UserID      string
	UserName    string
	Metadata    Metadata
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) (int64, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if e.UserID == "" {
		e.UserID = SystemUser
	}
	var meta any
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal activity metadata: %w", err)
		}
		meta = string(data)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO activity_log(entity_type,entity_id,action,description,user_id,user_name,metadata_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		e.EntityType, e.EntityID, string(e.Action), e.Description, e.UserID, nullable(e.UserName), meta,
		repo.FormatTime(now()))
	if err != nil {
		return 0, fmt.Errorf("append activity: %w", err)
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
