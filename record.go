package localtrace

import "time"

// Property is one ordered key/value pair attached to a span.
type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a named point-in-time annotation recorded inside a span.
type Event struct {
	Name       string     `json:"name"`
	Timestamp  time.Time  `json:"timestamp"`
	Properties []Property `json:"properties,omitempty"`
}

// SpanRecord is an immutable snapshot of one finished span. Records are
// produced at collection time from accumulated in-flight data; mutating a
// record never affects the collector that produced it.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type SpanRecord struct {
	Properties []Property    `json:"properties,omitempty"`
	Events     []Event       `json:"events,omitempty"`
	BeginTime  time.Time     `json:"begin_time"`
	Duration   time.Duration `json:"duration"`
	TraceID    TraceID       `json:"trace_id"`
	SpanID     SpanID        `json:"span_id"`
	ParentID   SpanID        `json:"parent_id"`
	Name       string        `json:"name"`
}

// cloneProperties deep-copies an ordered property sequence.
func cloneProperties(props []Property) []Property {
	if props == nil {
		return nil
	}
	out := make([]Property, len(props))
	copy(out, props)
	return out
}

// cloneEvents deep-copies an ordered event sequence.
func cloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i := range events {
		out[i] = events[i]
		out[i].Properties = cloneProperties(events[i].Properties)
	}
	return out
}
