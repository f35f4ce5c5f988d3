/*
Package events delivers recompute events from the code that mutates raw
records to the performance engine.

TRANSPORTS:
  Inline: Publish runs the recomputation chain before returning, so the
          caller observes fresh derived records (default, tests, CLI).
  Kafka:  Publish writes the JSON-encoded event to a topic; a Consumer in
          the same or another process reads it and runs the chain.

Both transports deliver the same performance.Event; recomputation is
idempotent, so at-least-once delivery from Kafka is safe.

SEE ALSO:
  - performance/recompute.go: Event and Recomputer
  - api/handlers.go: publishers of events
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/warp/timesheet-analytics/performance"
)

// Publisher hands an event to a transport.
type Publisher interface {
	Publish(ctx context.Context, ev performance.Event) error
	Close() error
}

// PublishObserver is told about every publish attempt. metrics.Recorder
// implements it.
type PublishObserver interface {
	ObservePublish(kind string, err error)
}

// Handler runs the recomputation chain for one event.
type Handler interface {
	Handle(ctx context.Context, ev performance.Event) error
}

// =============================================================================
// INLINE
// =============================================================================

// Inline recomputes synchronously inside Publish.
type Inline struct {
	Handler  Handler
	Observer PublishObserver
}

func NewInline(h Handler, obs PublishObserver) *Inline {
	return &Inline{Handler: h, Observer: obs}
}

func (p *Inline) Publish(ctx context.Context, ev performance.Event) error {
	err := p.Handler.Handle(ctx, ev)
	if p.Observer != nil {
		p.Observer.ObservePublish(string(ev.Kind), err)
	}
	return err
}

func (p *Inline) Close() error { return nil }

// =============================================================================
// WIRE FORMAT
// =============================================================================

// Encode renders the event as the Kafka message value.
func Encode(ev performance.Event) ([]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// Decode parses and validates a message value.
func Decode(b []byte) (performance.Event, error) {
	var ev performance.Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// Key partitions events so that every event about one subject lands on the
// same partition and is consumed in publish order.
func Key(ev performance.Event) []byte {
	switch {
	case ev.Kind.IsTimesheet():
		return []byte("user:" + string(ev.UserID))
	case len(ev.ProjectIDs) > 0:
		return []byte("project:" + string(ev.ProjectIDs[0]))
	case len(ev.TaskIDs) > 0:
		return []byte("task:" + string(ev.TaskIDs[0]))
	}
	return nil
}

func eventAttrs(ev performance.Event) slog.Attr {
	return slog.Group("event",
		slog.String("id", ev.ID),
		slog.String("kind", string(ev.Kind)),
	)
}
