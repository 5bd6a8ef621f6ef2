package localtrace

import (
	"context"
	"sync"
)

// Span is a detached span: it lives outside any local span stack and is
// reported through its Tracer's completion handlers when finished. Created
// with Tracer.SpanWithLocalParent or Tracer.RootSpan.
//
// A detached span borrows parent linkage from the local stack at creation
// but never becomes the current local span. Attaching one to a unit of work
// with InScope therefore composes with local parent tracking without ever
// being visible to a LocalCollector.
type Span struct {
	record SpanRecord
	tracer *Tracer
	mu     sync.Mutex // Protects record mutation and finish state.
	done   bool
}

// AddProperty appends a key/value property to the span.
// Thread-safe for concurrent access. No-op if the span is already finished.
func (s *Span) AddProperty(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.record.Properties = append(s.record.Properties, Property{Key: key, Value: value})
}

// AddEvent appends a named event at the current clock reading.
// Thread-safe for concurrent access. No-op if the span is already finished.
func (s *Span) AddEvent(name string, props ...Property) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.record.Events = append(s.record.Events, Event{
		Name:       name,
		Timestamp:  s.tracer.clock.Now(),
		Properties: cloneProperties(props),
	})
}

// SpanID returns the span's id.
// Thread-safe for concurrent access.
func (s *Span) SpanID() SpanID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.SpanID
}

// ParentID returns the parent linkage captured at creation.
// Thread-safe for concurrent access.
func (s *Span) ParentID() SpanID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.ParentID
}

// InScope runs fn with the span considered active for the duration of the
// call, then finishes the span. This is the combinator form of attachment:
// the span covers fn's execution without entering any local scope, so fn's
// own local spans keep their lexical local parent.
func (s *Span) InScope(ctx context.Context, fn func(context.Context)) {
	defer s.Finish()
	fn(ctx)
}

// Finish completes the span and delivers it to the tracer's handlers.
// Safe to call multiple times - subsequent calls are no-ops.
func (s *Span) Finish() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.record.Duration = s.tracer.clock.Now().Sub(s.record.BeginTime)

	record := s.record
	record.Properties = cloneProperties(s.record.Properties)
	record.Events = cloneEvents(s.record.Events)
	s.mu.Unlock()

	s.tracer.executeHandlers(record)
}
