// Package app opens a workspace and assembles the engine around it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"recruitline/internal/config"
	"recruitline/internal/db"
	"recruitline/internal/engine"
	"recruitline/internal/engine/auth"
	"recruitline/internal/messaging"
	"recruitline/internal/migrate"
)

// Options tweak how a workspace is opened.
type Options struct {
	Logger *slog.Logger
	// RedisURL overrides messaging.redis_url from the config file.
	RedisURL string
	// OfflineMessaging drops outbound messages even when Redis is configured.
	OfflineMessaging bool
}

// Workspace holds an opened database and the engine built on it.
type Workspace struct {
	Engine engine.Engine
	Config *config.Config
	redis  *redis.Client
}

// Open migrates the workspace database, loads recruitline.yml (defaults when
// absent), seeds the configured roles and wires the messenger.
func Open(ctx context.Context, workspace string, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := (auth.Service{DB: conn}).SeedRoles(ctx, cfg.RBAC.Roles); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("seed roles: %w", err)
	}

	e := engine.New(conn, cfg)
	e.Logger = logger
	ws := &Workspace{Engine: e, Config: cfg}

	redisURL := strings.TrimSpace(opts.RedisURL)
	if redisURL == "" {
		redisURL = strings.TrimSpace(cfg.Messaging.RedisURL)
	}
	switch {
	case opts.OfflineMessaging || redisURL == "":
		ws.Engine.Messenger = messaging.Noop{Logger: logger}
	default:
		client, err := messaging.NewRedisClient(ctx, redisURL)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		ws.redis = client
		ws.Engine.Messenger = messaging.Redis{Client: client, Channel: cfg.Messaging.Channel}
		logger.Info("messaging via redis", "channel", channelOrDefault(cfg.Messaging.Channel))
	}
	return ws, nil
}

// Close releases the database and the Redis client.
func (w *Workspace) Close() error {
	var errs []error
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.Engine.DB != nil {
		errs = append(errs, w.Engine.DB.Close())
	}
	return errors.Join(errs...)
}

func channelOrDefault(ch string) string {
	if ch == "" {
		return messaging.DefaultChannel
	}
	return ch
}
