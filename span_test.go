package localtrace

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// recordingHandler collects completed detached spans synchronously.
func recordingHandler() (*[]SpanRecord, SpanHandler) {
	records := &[]SpanRecord{}
	return records, func(record SpanRecord) {
		*records = append(*records, record)
	}
}

// TestSpanWithLocalParentLinkage verifies a detached span borrows its
// parent from the current local span.
func TestSpanWithLocalParentLinkage(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	lc := NewLocalCollector().WithIDSource(seqIDs())
	ctx := lc.Start(context.Background())

	root := EnterWithLocalParent(ctx, "root")
	span := tracer.SpanWithLocalParent(ctx, "detached")

	if span.ParentID() != root.SpanID() {
		t.Errorf("Expected parent %s, got %s", root.SpanID(), span.ParentID())
	}

	span.Finish()
	root.Release()
}

// TestSpanNotSeenByLocalCollector is the delivery-split regression test: a
// detached span created and finished inside a local collection scope must
// reach the tracer's handlers and must not appear in the drained local
// records. The absence is silent - no error, no signal.
func TestSpanNotSeenByLocalCollector(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	pipeline, handler := recordingHandler()
	tracer.OnSpanComplete(handler)

	lc := NewLocalCollector().WithIDSource(seqIDs())
	ctx := lc.Start(context.Background())

	root := EnterWithLocalParent(ctx, "root")
	tracer.SpanWithLocalParent(ctx, "detached").InScope(ctx, func(context.Context) {})
	root.Release()

	records := lc.Collect().ToSpanRecords(NewSpanContext(TraceIDFromUint64(1), SpanID(1)))
	for _, r := range records {
		if r.Name == "detached" {
			t.Error("Detached span leaked into local collection")
		}
	}
	if len(records) != 1 || records[0].Name != "root" {
		t.Fatalf("Expected only root locally, got %v", records)
	}

	// The span did finish - into the tracer pipeline.
	if len(*pipeline) != 1 || (*pipeline)[0].Name != "detached" {
		t.Fatalf("Expected detached span in tracer pipeline, got %v", *pipeline)
	}
}

// TestSpanInScopeKeepsLocalParentChain verifies a detached span never
// becomes the current local parent: local spans entered inside InScope
// parent to the enclosing local span.
func TestSpanInScopeKeepsLocalParentChain(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	lc := NewLocalCollector().WithIDSource(seqIDs())
	ctx := lc.Start(context.Background())

	outer := EnterWithLocalParent(ctx, "outer")
	tracer.SpanWithLocalParent(ctx, "detached").InScope(ctx, func(ctx context.Context) {
		inner := EnterWithLocalParent(ctx, "inner")
		inner.Release()
	})
	outer.Release()

	records := lc.Collect().ToSpanRecords(NewSpanContext(TraceIDFromUint64(1), SpanID(1)))
	byName := make(map[string]SpanRecord)
	for _, r := range records {
		byName[r.Name] = r
	}

	if byName["inner"].ParentID != byName["outer"].SpanID {
		t.Errorf("Expected inner parent %s (outer), got %s", byName["outer"].SpanID, byName["inner"].ParentID)
	}
}

// TestSpanWithoutLocalParent verifies creation outside any local scope
// leaves the parent unset.
func TestSpanWithoutLocalParent(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	span := tracer.SpanWithLocalParent(context.Background(), "detached")
	if !span.ParentID().IsZero() {
		t.Errorf("Expected zero parent, got %s", span.ParentID())
	}
	span.Finish()
}

// TestRootSpan verifies root spans carry no parent linkage.
func TestRootSpan(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	span := tracer.RootSpan("root")
	if !span.ParentID().IsZero() {
		t.Errorf("Expected zero parent, got %s", span.ParentID())
	}
	if span.SpanID().IsZero() {
		t.Error("Expected non-zero span id")
	}
	span.Finish()
}

// TestSpanDoubleFinish verifies only the first Finish delivers the span.
func TestSpanDoubleFinish(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	pipeline, handler := recordingHandler()
	tracer.OnSpanComplete(handler)

	span := tracer.RootSpan("once")
	span.Finish()
	span.Finish()

	if len(*pipeline) != 1 {
		t.Errorf("Expected 1 delivery, got %d", len(*pipeline))
	}
}

// TestSpanPropertiesAndEvents verifies ordered mutation and the
// finished-span freeze.
func TestSpanPropertiesAndEvents(t *testing.T) {
	fakeClock := clockz.NewFakeClock()
	tracer := New().WithClock(fakeClock)
	defer tracer.Close()

	pipeline, handler := recordingHandler()
	tracer.OnSpanComplete(handler)

	span := tracer.RootSpan("span")
	span.AddProperty("first", "1")
	span.AddProperty("second", "2")
	span.AddEvent("checkpoint")
	span.Finish()

	// Frozen after finish.
	span.AddProperty("late", "x")
	span.AddEvent("late-event")

	if len(*pipeline) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(*pipeline))
	}
	record := (*pipeline)[0]

	if len(record.Properties) != 2 {
		t.Fatalf("Expected 2 properties, got %d", len(record.Properties))
	}
	if record.Properties[0].Key != "first" || record.Properties[1].Key != "second" {
		t.Errorf("Properties out of order: %v", record.Properties)
	}
	if len(record.Events) != 1 || record.Events[0].Name != "checkpoint" {
		t.Errorf("Unexpected events: %v", record.Events)
	}
}

// TestSpanDurationWithFakeClock verifies duration tracks the tracer clock.
func TestSpanDurationWithFakeClock(t *testing.T) {
	fakeClock := clockz.NewFakeClock()
	tracer := New().WithClock(fakeClock)
	defer tracer.Close()

	pipeline, handler := recordingHandler()
	tracer.OnSpanComplete(handler)

	span := tracer.RootSpan("timed")
	fakeClock.Advance(250 * time.Millisecond)
	span.Finish()

	if len(*pipeline) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(*pipeline))
	}
	if got := (*pipeline)[0].Duration; got != 250*time.Millisecond {
		t.Errorf("Expected duration 250ms, got %v", got)
	}
}
