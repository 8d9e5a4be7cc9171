// Package messaging hands outbound candidate messages to the mail worker.
// Delivery itself happens elsewhere; this side only publishes commands.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by Noop: the message was dropped, not delivered.
var ErrDisabled = errors.New("messaging disabled")

// DefaultChannel is the command channel the mail worker subscribes to.
const DefaultChannel = "CMD_SEND_EMAIL"

const (
	TemplateRejection        = "rejection"
	TemplateFeedbackReminder = "feedback_reminder"
	TemplateBookingLink      = "booking_link"
)

type Message struct {
	CandidateID  string         `json:"candidateId"`
	TemplateType string         `json:"templateType"`
	CustomData   map[string]any `json:"customData,omitempty"`
}

type Messenger interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher is the slice of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// NewRedisClient creates and verifies a Redis client connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Redis publishes each message as a JSON command.
type Redis struct {
	Client  Publisher
	Channel string
}

func (r Redis) Send(ctx context.Context, msg Message) error {
	channel := r.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	payload, err := json.Marshal(struct {
		Type string `json:"type"`
		Message
	}{Type: channel, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.TemplateType, err)
	}
	receivers, err := r.Client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if receivers == 0 {
		slog.Debug("no subscriber for command", "channel", channel, "template", msg.TemplateType)
	}
	return nil
}

// Noop logs and drops messages; used when no Redis URL is configured.
type Noop struct {
	Logger *slog.Logger
}

func (n Noop) Send(_ context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("messaging disabled, dropping message", "candidate_id", msg.CandidateID, "template", msg.TemplateType)
	return ErrDisabled
}

func (Noop) Disabled() bool { return true }

// Enabled reports whether m can deliver anything at all.
func Enabled(m Messenger) bool {
	if m == nil {
		return false
	}
	d, ok := m.(interface{ Disabled() bool })
	return !ok || !d.Disabled()
}
