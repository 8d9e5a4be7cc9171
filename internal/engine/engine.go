package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"recruitline/internal/config"
	"recruitline/internal/engine/auth"
	"recruitline/internal/events"
	"recruitline/internal/messaging"
	"recruitline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Auth      auth.Checker
	Messenger messaging.Messenger
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{},
		Config:    cfg,
		Auth:      auth.Service{DB: db},
		Messenger: messaging.Noop{},
		Logger:    slog.Default(),
		Now:       time.Now,
	}
}

// Actor identifies who performs an action, for permission checks and the
// activity log.
type Actor struct {
	ID   string
	Name string
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) require(ctx context.Context, actor Actor, perm string) error {
	if e.Auth == nil {
		return nil
	}
	return permission(auth.Require(ctx, e.Auth, actor.ID, perm))
}

func (e Engine) record(ctx context.Context, tx *sql.Tx, actor Actor, entry events.Entry) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	entry.UserID = actor.ID
	entry.UserName = actor.Name
	_, err := w.Append(ctx, tx, entry)
	return err
}

// notify sends a best-effort message. Failures are logged and swallowed.
func (e Engine) notify(ctx context.Context, msg messaging.Message) bool {
	if e.Messenger == nil {
		return false
	}
	if err := e.Messenger.Send(ctx, msg); err != nil {
		if errors.Is(err, messaging.ErrDisabled) {
			return false
		}
		err = ExternalServiceError{Service: "messaging", Err: err}
		e.logger().Warn("message not sent", "template", msg.TemplateType, "candidate_id", msg.CandidateID, "err", err)
		return false
	}
	return true
}

func ptr[T any](v T) *T { return &v }
