package notify

import (
	"context"
	"sync"

	"libris.org/internal/obs"
)

// Message is an outbound notification request handed to the delivery workflow.
type Message struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"message"`
}

// Sender delivers a single message. Delivery failures are the sender's
// problem; callers never wait on the outcome.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier is the one-way send interface the core depends on.
type Notifier interface {
	Notify(msg Message)
}

// Dispatcher decouples callers from delivery with a buffered channel and a
// background worker. Publish never blocks; when the buffer is full the
// message is dropped and counted, which is the contract for fire-and-forget.
type Dispatcher struct {
	ch     chan Message
	sender Sender

	mu      sync.Mutex
	closed  bool
	dropped int

	done chan struct{}
	once sync.Once
}

// NewDispatcher starts the delivery worker with the given buffer size.
func NewDispatcher(sender Sender, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{
		ch:     make(chan Message, buffer),
		sender: sender,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.ch {
		if err := d.sender.Send(context.Background(), msg); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "notification delivery failed",
				"email": msg.Email,
				"error": err.Error(),
			})
		}
	}
}

// Notify enqueues the message. Drops when the worker is behind or the
// dispatcher is already closed; late callers during shutdown must not panic
// on the closed channel.
func (d *Dispatcher) Notify(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped++
		return
	}
	select {
	case d.ch <- msg:
	default:
		d.dropped++
	}
}

// Dropped reports how many messages were discarded because the buffer was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close stops accepting messages and waits for the worker to drain.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.ch)
		<-d.done
	})
}

// LogSender writes notifications as JSON log lines. It stands in for the
// external email workflow in development and tests.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	obs.LogRequest(map[string]any{
		"level":   "info",
		"msg":     "notification",
		"email":   msg.Email,
		"subject": msg.Subject,
	})
	return nil
}

// Discard ignores every message. Useful in tests.
type Discard struct{}

func (Discard) Notify(Message) {}
