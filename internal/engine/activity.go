package engine

import (
	"context"

	"recruitline/internal/domain"
	"recruitline/internal/engine/auth"
	"recruitline/internal/repo"
)

type ActivityQuery struct {
	EntityType string
	EntityID   string
	Action     string
	Before     int64
	Limit      int
}

func (e Engine) Activity(ctx context.Context, q ActivityQuery, actor Actor) ([]domain.ActivityLogEntry, error) {
	if err := e.require(ctx, actor, auth.PermActivityRead); err != nil {
		return nil, err
	}
	return e.Repo.ListActivity(ctx, nil, repo.ActivityFilter{
		EntityType: q.EntityType,
		EntityID:   q.EntityID,
		Action:     q.Action,
		Before:     q.Before,
		Limit:      q.Limit,
	})
}
