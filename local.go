package localtrace

import "context"

// stackFrom extracts the local span stack installed by a LocalCollector.
// Returns nil if no collector is active on the context.
func stackFrom(ctx context.Context) *localStack {
	if ctx == nil {
		return nil
	}
	if stack, ok := ctx.Value(stackKey).(*localStack); ok {
		return stack
	}
	return nil
}

// EnterWithLocalParent enters a local span named name as a child of
// whichever local span is current on ctx. The span stays current for any
// nested entries made through the same context until the returned guard is
// released. Spans entered this way are captured by the LocalCollector that
// installed the stack.
//
// Without an active collector on ctx the returned guard is a no-op.
func EnterWithLocalParent(ctx context.Context, name Key) *LocalGuard {
	stack := stackFrom(ctx)
	if stack == nil {
		return &LocalGuard{}
	}
	return stack.enter(name)
}

// WithLocalSpan runs fn inside a local span scope. Equivalent to entering
// with EnterWithLocalParent and releasing when fn returns; use it where a
// whole function body is the span.
func WithLocalSpan(ctx context.Context, name Key, fn func(context.Context)) {
	guard := EnterWithLocalParent(ctx, name)
	defer guard.Release()
	fn(ctx)
}

// LocalGuard is the scoped handle for an entered local span. Releasing the
// guard finalizes the span's duration and pops it from the local stack.
// Guards are confined to the task that entered them.
type LocalGuard struct {
	stack *localStack
	span  *rawSpan
}

// Release ends the span. Parent linkage was fixed at entry time; Release
// only finalizes the duration and restores the previous current span.
// Safe to call multiple times - subsequent calls are no-ops.
func (g *LocalGuard) Release() {
	if g.stack == nil {
		return
	}
	g.stack.release(g.span)
}

// AddProperty appends a key/value property to the span.
// No-op after Release or on a no-op guard.
func (g *LocalGuard) AddProperty(key, value string) {
	if g.stack == nil {
		return
	}
	g.stack.addProperty(g.span, key, value)
}

// AddEvent appends a named event at the current clock reading.
// No-op after Release or on a no-op guard.
func (g *LocalGuard) AddEvent(name string, props ...Property) {
	if g.stack == nil {
		return
	}
	g.stack.addEvent(g.span, name, props)
}

// SpanID returns the id assigned at entry, or zero for a no-op guard.
func (g *LocalGuard) SpanID() SpanID {
	if g.span == nil {
		return 0
	}
	return g.span.id
}
