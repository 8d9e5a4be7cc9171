package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"recruitline/internal/config"
	"recruitline/internal/repo"
)

const (
	PermCandidateCreate     = "candidate.create"
	PermInterviewManage     = "interview.manage"
	PermFeedbackSubmit      = "feedback.submit"
	PermDecisionManage      = "decision.manage"
	PermBookingManage       = "booking.manage"
	PermCandidateArchive    = "candidate.archive"
	PermCandidateRestore    = "candidate.restore"
	PermCandidateReactivate = "candidate.reactivate"
	PermCandidateDelete     = "candidate.delete"
	PermActivityRead        = "activity.read"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Checker is the capability predicate the engine consults before every
// mutating action.
type Checker interface {
	ActorHasPermission(ctx context.Context, actorID, perm string) (bool, error)
}

// Require turns a negative check into ForbiddenError.
func Require(ctx context.Context, c Checker, actorID, perm string) error {
	if actorID == "" {
		return ForbiddenError{Permission: perm}
	}
	ok, err := c.ActorHasPermission(ctx, actorID, perm)
	if err != nil {
		return fmt.Errorf("check permission %s: %w", perm, err)
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// Service provides RBAC helpers backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) repo() repo.Repo { return repo.Repo{DB: s.DB} }

func (s Service) ActorHasPermission(ctx context.Context, actorID, perm string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT 1 FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.actor_id=? AND rp.permission_id=? LIMIT 1`, actorID, perm)
	var n int
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s Service) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	return s.strings(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID)
}

func (s Service) ActorPermissions(ctx context.Context, actorID string) ([]string, error) {
	return s.strings(ctx, `
SELECT DISTINCT rp.permission_id
FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.actor_id=? ORDER BY rp.permission_id`, actorID)
}

func (s Service) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SeedRoles makes the stored roles match the config. Role grants are
// replaced; actor assignments are kept.
func (s Service) SeedRoles(ctx context.Context, roles map[string]config.RBACRole) error {
	r := s.repo()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		role := roles[id]
		if err := r.InsertRole(ctx, tx, id, role.Description); err != nil {
			return fmt.Errorf("seed role %s: %w", id, err)
		}
		if err := r.ClearRolePermissions(ctx, tx, id); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
				return err
			}
			if err := r.AddRolePermission(ctx, tx, id, perm); err != nil {
				return fmt.Errorf("grant %s to %s: %w", perm, id, err)
			}
		}
	}
	return tx.Commit()
}

// Grant assigns a seeded role to an actor, creating the actor if needed.
func (s Service) Grant(ctx context.Context, actorID, roleID string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	r := s.repo()
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	ok, err := r.RoleExists(ctx, tx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown role %s", roleID)
	}
	if err := r.EnsureActor(ctx, tx, actorID, time.Now()); err != nil {
		return err
	}
	if err := r.AssignRole(ctx, tx, actorID, roleID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s Service) Revoke(ctx context.Context, actorID, roleID string) error {
	return s.repo().RevokeRole(ctx, nil, actorID, roleID)
}
