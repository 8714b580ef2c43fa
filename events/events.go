// Package events is the publishing boundary of the engine. Events are emitted
// strictly after state is committed; delivery is best-effort and a sink must
// never be able to fail a settlement operation.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one published occurrence.
type Event struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Sink accepts published events.
type Sink interface {
	Publish(ctx context.Context, topic string, payload any)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Publish(context.Context, string, any) {}

// SlogSink logs every event at info level. It is the default sink for the
// daemon; indexers tail the structured log.
type SlogSink struct {
	Log *slog.Logger
}

func (s SlogSink) Publish(ctx context.Context, topic string, payload any) {
	s.Log.InfoContext(ctx, "event published",
		"event_id", uuid.NewString(),
		"topic", topic,
		"payload", payload,
	)
}

// Recorder collects events in memory for tests and for the daemon's recent
// events endpoint.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, topic string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		ID:      uuid.NewString(),
		Topic:   topic,
		Time:    time.Now().UTC(),
		Payload: payload,
	})
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByTopic returns published events matching topic, in publish order.
func (r *Recorder) ByTopic(topic string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, topic string, payload any) {
	for _, s := range m {
		s.Publish(ctx, topic, payload)
	}
}
