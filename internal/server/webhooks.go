package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"recruitline/internal/config"
	"recruitline/internal/domain"
	"recruitline/internal/engine"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher forwards new activity log entries to configured
// endpoints. Each hook keeps its own cursor, starting at the newest entry
// when the dispatcher starts; a failed delivery is retried on the next tick.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.Webhook
	client   *http.Client
	logger   *slog.Logger
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartWebhookDispatcher polls the activity log until ctx is cancelled. It is
// a no-op when no webhooks are configured.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, logger *slog.Logger) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := newWebhookDispatcher(e, e.Config.Webhooks, logger)
	go d.run(ctx, defaultWebhookInterval)
}

func newWebhookDispatcher(e engine.Engine, hooks []config.Webhook, logger *slog.Logger) *webhookDispatcher {
	return &webhookDispatcher{
		engine:   e,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
		cursors:  make(map[int]int64),
	}
}

func (d *webhookDispatcher) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.Webhook) {
	cursor := d.cursorFor(ctx, idx)
	entries, err := d.engine.Repo.ActivityAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		d.logger.Warn("webhook: fetch activity failed", "hook", hook.ID, "err", err)
		return
	}
	filter := newActionFilter(hook.Actions)
	for _, entry := range entries {
		if !filter.match(string(entry.Action)) {
			d.setCursor(idx, entry.ID)
			continue
		}
		if err := d.post(ctx, hook, entry); err != nil {
			d.logger.Warn("webhook: delivery failed", "hook", hook.ID, "url", hook.URL, "activity_id", entry.ID, "err", err)
			return
		}
		d.setCursor(idx, entry.ID)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestActivityID(ctx)
	if err != nil {
		d.logger.Warn("webhook: init cursor failed", "err", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID          int64           `json:"id"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Description string          `json:"description"`
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Metadata    json.RawMessage `json:"metadata"`
}

func (d *webhookDispatcher) post(ctx context.Context, hook config.Webhook, entry domain.ActivityLogEntry) error {
	metadata := json.RawMessage("{}")
	if entry.Metadata != "" && json.Valid([]byte(entry.Metadata)) {
		metadata = json.RawMessage(entry.Metadata)
	}
	data, err := json.Marshal(webhookEvent{
		ID:          entry.ID,
		Action:      string(entry.Action),
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Description: entry.Description,
		UserID:      entry.UserID,
		UserName:    entry.UserName,
		CreatedAt:   entry.CreatedAt,
		Metadata:    metadata,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Recruitline-Event", string(entry.Action))
	req.Header.Set("X-Recruitline-Delivery", fmt.Sprintf("%d", entry.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Recruitline-Secret", hook.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type actionFilter struct {
	all bool
	set map[string]struct{}
}

func newActionFilter(actions []string) actionFilter {
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		if key := strings.TrimSpace(a); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return actionFilter{all: true}
	}
	return actionFilter{set: set}
}

func (f actionFilter) match(action string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[action]
	return ok
}
