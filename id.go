package localtrace

import "fmt"

// TraceID identifies one end-to-end trace. 128 bits, split into two words.
type TraceID struct {
	High uint64 `json:"high"`
	Low  uint64 `json:"low"`
}

// TraceIDFromUint64 builds a TraceID from a single word, leaving the high
// word zero. Useful for sentinel trace ids supplied by the caller.
func TraceIDFromUint64(lo uint64) TraceID {
	return TraceID{Low: lo}
}

// IsZero reports whether the trace id is unset.
func (t TraceID) IsZero() bool {
	return t.High == 0 && t.Low == 0
}

// String renders the trace id as 32 hex characters.
func (t TraceID) String() string {
	return fmt.Sprintf("%016x%016x", t.High, t.Low)
}

// SpanID identifies one span within a trace. Zero means "no span" and is
// reserved for the absent-parent case.
type SpanID uint64

// IsZero reports whether the span id is unset.
func (s SpanID) IsZero() bool {
	return s == 0
}

// String renders the span id as 16 hex characters.
func (s SpanID) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// SpanContext is the trace/span identifier pair supplied at collection time.
// It names the root ancestry for drained local spans: top-level spans that
// have no local parent are recorded as children of SpanContext.SpanID, and
// every record is stamped with SpanContext.TraceID.
type SpanContext struct {
	TraceID TraceID `json:"trace_id"`
	SpanID  SpanID  `json:"span_id"`
}

// NewSpanContext builds a SpanContext from its parts.
func NewSpanContext(traceID TraceID, spanID SpanID) SpanContext {
	return SpanContext{TraceID: traceID, SpanID: spanID}
}
