package notify

import (
	"context"
	"sync"
	"testing"
)

type captureSender struct {
	mu   sync.Mutex
	sent []Message
	gate chan struct{}
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) all() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}

func TestDispatcherDelivers(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 8)

	d.Notify(Message{Email: "reader@example.edu", Subject: "Welcome"})
	d.Close()

	sent := sender.all()
	if len(sent) != 1 || sent[0].Subject != "Welcome" {
		t.Fatalf("unexpected deliveries: %+v", sent)
	}
}

func TestNotifyAfterCloseDropsWithoutPanic(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 8)
	d.Close()

	d.Notify(Message{Email: "reader@example.edu", Subject: "Late"})

	if d.Dropped() != 1 {
		t.Fatalf("expected late message counted as dropped, got %d", d.Dropped())
	}
	if len(sender.all()) != 0 {
		t.Fatalf("late message must not be delivered: %+v", sender.all())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	gate := make(chan struct{})
	sender := &captureSender{gate: gate}
	d := NewDispatcher(sender, 1)

	// Worker blocks on the gate; the buffer holds one more, the rest drop.
	for i := 0; i < 10; i++ {
		d.Notify(Message{Email: "reader@example.edu"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}
	close(gate)
	d.Close()
}
