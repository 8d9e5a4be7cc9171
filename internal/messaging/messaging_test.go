package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"recruitline/internal/messaging"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisSendPublishesCommand(t *testing.T) {
	pub := &fakePublisher{}
	m := messaging.Redis{Client: pub}
	err := m.Send(context.Background(), messaging.Message{
		CandidateID:  "cand-1",
		TemplateType: messaging.TemplateRejection,
		CustomData:   map[string]any{"name": "Ana"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if pub.channel != messaging.DefaultChannel {
		t.Fatalf("unexpected channel %q", pub.channel)
	}
	var got map[string]any
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got["type"] != "CMD_SEND_EMAIL" || got["candidateId"] != "cand-1" || got["templateType"] != "rejection" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestRedisSendSurfacesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	m := messaging.Redis{Client: pub, Channel: "CMD_TEST"}
	if err := m.Send(context.Background(), messaging.Message{CandidateID: "c"}); err == nil {
		t.Fatalf("expected error")
	}
	if pub.channel != "CMD_TEST" {
		t.Fatalf("custom channel not used: %q", pub.channel)
	}
}

func TestNoopReportsDisabled(t *testing.T) {
	err := messaging.Noop{}.Send(context.Background(), messaging.Message{CandidateID: "cand-1", TemplateType: messaging.TemplateRejection})
	if !errors.Is(err, messaging.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if messaging.Enabled(messaging.Noop{}) || messaging.Enabled(nil) {
		t.Fatalf("noop and nil messengers must report disabled")
	}
	if !messaging.Enabled(messaging.Redis{Client: &fakePublisher{}}) {
		t.Fatalf("redis messenger must report enabled")
	}
}
