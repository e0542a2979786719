// Package notify fans lifecycle events out to every configured transport.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is one lifecycle event as delivered to a sink.
type Message struct {
	Event       string    `json:"event"`
	SessionID   uuid.UUID `json:"session_id"`
	Payload     any       `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

// Sink is a delivery transport (websocket hub, message broker).
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Fanout delivers each event to all sinks. Delivery is best effort: sink
// errors are logged and dropped, never returned to the publisher.
type Fanout struct {
	log   *zap.Logger
	sinks []Sink
	now   func() time.Time
}

// New creates a Fanout over the given sinks. Nil sinks are skipped.
func New(log *zap.Logger, sinks ...Sink) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fanout{log: log, now: time.Now}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish implements service.Notifier.
func (f *Fanout) Publish(ctx context.Context, event string, sessionID uuid.UUID, payload any) {
	msg := Message{
		Event:       event,
		SessionID:   sessionID,
		Payload:     payload,
		PublishedAt: f.now().UTC(),
	}
	for _, s := range f.sinks {
		if err := s.Send(ctx, msg); err != nil {
			f.log.Warn("notification dropped",
				zap.String("sink", s.Name()),
				zap.String("event", event),
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
		}
	}
}
