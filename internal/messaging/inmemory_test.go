package messaging

import (
	"context"
	"errors"
	"testing"
)

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"events.order", "events.order", true},
		{"events.order", "events.inventory", false},
		{"events.*", "events.order", true},
		{"events.*", "events.order.created", false},
		{"events.>", "events.order.created", true},
		{">", "anything.at.all", true},
		{"events.*.created", "events.order.created", true},
		{"events.*.created", "events.order.cancelled", false},
		{"events.order.created", "events.order", false},
	}

	for _, c := range cases {
		if got := matchSubject(c.pattern, c.subject); got != c.want {
			t.Errorf("matchSubject(%q, %q) = %v, want %v", c.pattern, c.subject, got, c.want)
		}
	}
}

func TestInMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received []*Message
	err := bus.Subscribe(ctx, "events.>", func(ctx context.Context, msg *Message) error {
		received = append(received, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, "events.order.created", []byte(`{}`), map[string]string{"event_id": "e1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := bus.Publish(ctx, "commands.order.cancel", []byte(`{}`), nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(received))
	}
	if received[0].Subject != "events.order.created" {
		t.Errorf("unexpected subject: %s", received[0].Subject)
	}
	if received[0].Headers["event_id"] != "e1" {
		t.Errorf("headers not delivered: %v", received[0].Headers)
	}

	if err := bus.Unsubscribe("events.>"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := bus.Publish(ctx, "events.order.created", []byte(`{}`), nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(received) != 1 {
		t.Errorf("message delivered after unsubscribe")
	}
}

// Публикация на остановленной шине не должна выглядеть как подтвержденный
// прием: вызывающий обязан получить ошибку и не помечать доставку успешной
func TestInMemoryBusPublishAfterStop(t *testing.T) {
	ctx := context.Background()
	bus := NewInMemoryBus()
	if err := bus.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	err := bus.Publish(ctx, "events.order.created", []byte(`{}`), nil)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
