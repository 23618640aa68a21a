package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/archivist/internal/store"
)

// EventType defines the kind of registration event.
type EventType string

const (
	EventRegistered EventType = "registered"
	EventRemoved    EventType = "removed"
)

// Event is one archiver registration change exported to external systems.
type Event struct {
	Type       EventType      `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Archiver   store.Archiver `json:"archiver"`
}

// Sink is a destination for history events (audit/analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// SinkError records which sink failed to accept an event.
type SinkError struct {
	Sink string // concrete sink type, e.g. "*sqlite.Sink"
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("%s: %v", e.Sink, e.Err) }

func (e *SinkError) Unwrap() error { return e.Err }

// Multi fans an event out to every sink and joins their errors, each wrapped
// in a SinkError naming the sink that produced it.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			var se *SinkError
			if !errors.As(err, &se) {
				err = &SinkError{Sink: fmt.Sprintf("%T", s), Err: err}
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FailedSinks returns the sink names carried by err. An error without any
// SinkError is attributed to fallback.
func FailedSinks(err error, fallback string) []string {
	if err == nil {
		return nil
	}
	var out []string
	var walk func(error)
	walk = func(err error) {
		if se, ok := err.(*SinkError); ok {
			out = append(out, se.Sink)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := u.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	if len(out) == 0 {
		out = append(out, fallback)
	}
	return out
}

// Close closes every sink that holds resources.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
