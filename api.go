// Package localtrace provides task-local span collection with explicit
// context propagation.
//
// localtrace tracks two kinds of spans. Local spans are entered against a
// span stack carried in a context.Context and are gathered by the
// LocalCollector that installed the stack. Detached spans are standalone
// values attached to a unit of work through a combinator and are delivered
// to the Tracer's completion handlers when they finish.
//
// Core Components:.
//   - LocalCollector: Task-confined accumulator with drain semantics.
//   - LocalGuard: Scoped handle for an entered local span.
//   - Span: Detached span reported through the Tracer pipeline.
//   - Tracer: Manages detached span lifecycle and completion handlers.
//   - Collector: Buffers completed detached spans for export.
//
// Basic Usage:.
//
//	lc := localtrace.NewLocalCollector()
//	ctx = lc.Start(ctx)
//
//	guard := localtrace.EnterWithLocalParent(ctx, "operation-name")
//	doWork(ctx)
//	guard.Release()
//
//	spans := lc.Collect()
//	records := spans.ToSpanRecords(localtrace.NewSpanContext(traceID, rootID))
//
// The two mechanisms do not share a delivery path. A detached span created
// with SpanWithLocalParent links to the current local span for ancestry but
// is never seen by the LocalCollector; it surfaces only through handlers
// registered on its Tracer. Callers mixing both mechanisms inside one
// collection scope will find the detached spans missing from the drained
// records. That asymmetry is part of this library's contract - see the
// repro package for the canonical demonstration.
//
// Thread Safety:.
//
// Tracer is safe for concurrent use by multiple goroutines.
// Collectors are safe for concurrent span buffering.
// Span AddProperty/AddEvent/Finish operations are safe for concurrent use.
//
// A LocalCollector and the guards it produces are confined to one logical
// task: enter and release spans from the task that called Start, then hand
// the collector to at most one other goroutine for the final Collect.
package localtrace

// Key represents a span operation name.
type Key = string
