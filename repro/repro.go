// Package repro holds the canonical demonstration of the split between
// local and detached span delivery: a worker handler that enters spans
// through both mechanisms, then drains its LocalCollector in a deferred
// background flush. The drained records contain every locally entered span
// with correct parent linkage - and none of the detached ones. Detached
// spans finish into the Tracer's handler pipeline instead; nothing fails,
// no warning is logged, the data is simply not where the collector looks.
package repro

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoobzio/localtrace"
	"github.com/zoobzio/localtrace/worker"
)

// Sentinel collection context attached to the drained records: the demo
// fixes the trace id instead of generating one, and names span id 1 as the
// root ancestry reference.
var reproContext = localtrace.NewSpanContext(localtrace.TraceIDFromUint64(1), localtrace.SpanID(1))

// Handler returns the worker entry point for the reproduction scenario.
// The response is a fixed text body with success status regardless of the
// request; no tracing behavior can affect it.
func Handler(tracer *localtrace.Tracer) worker.HandlerFunc {
	return func(ctx context.Context, _ *worker.Request, env *worker.Env, wctx *worker.Context) (*worker.Response, error) {
		console := env.Console()
		console.Log("started")

		lc := localtrace.NewLocalCollector()
		ctx = lc.Start(ctx)

		root := localtrace.EnterWithLocalParent(ctx, "root")
		funcWithTrace(ctx, tracer)
		root.Release()

		// Collector ownership moves into the flush closure; nothing on
		// the response path touches it after this point.
		wctx.WaitUntil(func() {
			console.Log("flushing in background")
			records := lc.Collect().ToSpanRecords(reproContext)
			console.Log(FormatRecords(records))
		})

		return worker.OK("Hello, World!"), nil
	}
}

// funcWithTrace runs its body under a detached span attached with InScope,
// the combinator form of tracing a whole function. Inside it enters one
// local child, wraps a nested call in another detached span, and wraps a
// second nested call in a local scope.
//
// Collected afterwards: child (parented to root, since detached spans never
// become the local parent) and nested_wrapped (parented to child). Absent:
// func_with_trace and in_span_async, both detached.
func funcWithTrace(ctx context.Context, tracer *localtrace.Tracer) {
	tracer.SpanWithLocalParent(ctx, "func_with_trace").InScope(ctx, func(ctx context.Context) {
		child := localtrace.EnterWithLocalParent(ctx, "child")
		defer child.Release()

		tracer.SpanWithLocalParent(ctx, "in_span_async").InScope(ctx, callNestedFutureExt)

		localtrace.WithLocalSpan(ctx, "nested_wrapped", nestedWrapped)
	})
}

func callNestedFutureExt(context.Context) {}

func nestedWrapped(context.Context) {}

// FormatRecords renders span records as the free-text console dump emitted
// by the deferred flush.
func FormatRecords(records []localtrace.SpanRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "span_records: %d", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "\n  %s trace_id=%s span_id=%s parent_id=%s begin=%d duration_ns=%d properties=%d events=%d",
			r.Name, r.TraceID, r.SpanID, r.ParentID,
			r.BeginTime.UnixNano(), r.Duration.Nanoseconds(),
			len(r.Properties), len(r.Events))
	}
	return b.String()
}
