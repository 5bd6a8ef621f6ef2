package localtrace

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// stackKeyType is a private type for context keys to avoid collisions.
type stackKeyType string

const (
	stackKey stackKeyType = "localtrace.stack"
)

// rawSpan is the in-flight data accumulated for one entered local span.
// Ids are assigned at entry; the trace id is stamped at conversion time.
type rawSpan struct {
	properties []Property
	events     []Event
	begin      time.Time
	duration   time.Duration
	name       string
	id         SpanID
	parentID   SpanID
	done       bool
}

// localStack is the per-task accumulator behind a LocalCollector. It holds
// every span entered since Start plus the stack of currently open entries.
// The mutex exists for the ownership handoff into a deferred flush; entries
// themselves must come from one task at a time.
type localStack struct {
	mu    sync.Mutex
	spans []*rawSpan
	open  []*rawSpan // Currently entered guards, innermost last.
	clock clockz.Clock
	ids   func() SpanID
}

// enter pushes a new raw span whose parent is the current top of stack.
func (s *localStack) enter(name Key) *LocalGuard {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parent SpanID
	if n := len(s.open); n > 0 {
		parent = s.open[n-1].id
	}

	raw := &rawSpan{
		id:       s.ids(),
		parentID: parent,
		name:     string(name),
		begin:    s.clock.Now(),
	}
	s.spans = append(s.spans, raw)
	s.open = append(s.open, raw)

	return &LocalGuard{stack: s, span: raw}
}

// currentParent returns the id of the innermost open local span, if any.
func (s *localStack) currentParent() (SpanID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.open); n > 0 {
		return s.open[n-1].id, true
	}
	return 0, false
}

// release finalizes the span and removes it from the open stack.
func (s *localStack) release(raw *rawSpan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw.done {
		return
	}
	raw.duration = s.clock.Now().Sub(raw.begin)
	raw.done = true

	// Well-nested guards release the top entry; tolerate out-of-order
	// release by scanning.
	for i := len(s.open) - 1; i >= 0; i-- {
		if s.open[i] == raw {
			s.open = append(s.open[:i], s.open[i+1:]...)
			return
		}
	}
}

// addProperty appends a property to an in-flight span.
func (s *localStack) addProperty(raw *rawSpan, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw.done {
		return
	}
	raw.properties = append(raw.properties, Property{Key: key, Value: value})
}

// addEvent appends an event to an in-flight span.
func (s *localStack) addEvent(raw *rawSpan, name string, props []Property) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw.done {
		return
	}
	raw.events = append(raw.events, Event{
		Name:       name,
		Timestamp:  s.clock.Now(),
		Properties: cloneProperties(props),
	})
}

// drain removes and returns every finished span accumulated so far.
// Spans still open at drain time stay behind until they are released.
func (s *localStack) drain() []*rawSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.spans) == 0 {
		return nil
	}

	var finished, pending []*rawSpan
	for _, raw := range s.spans {
		if raw.done {
			finished = append(finished, raw)
		} else {
			pending = append(pending, raw)
		}
	}
	s.spans = pending

	return finished
}

// LocalCollector accumulates local spans gathered during one logical unit
// of work. Start installs the collector's span stack into a context; every
// span entered through that context (directly or via WithLocalSpan) is
// captured. Collect drains what has accumulated - a second Collect returns
// nothing until new spans are entered.
//
// Detached spans created through a Tracer never register here, whatever
// context they were given.
type LocalCollector struct {
	stack *localStack
}

// NewLocalCollector creates a collector backed by the real clock and the
// default span id source.
func NewLocalCollector() *LocalCollector {
	return &LocalCollector{
		stack: &localStack{
			clock: clockz.RealClock,
			ids:   defaultSpanIDs,
		},
	}
}

// WithClock returns the collector using the specified clock.
// Enables clock injection for deterministic testing.
func (c *LocalCollector) WithClock(clock clockz.Clock) *LocalCollector {
	c.stack.clock = clock
	return c
}

// WithIDSource returns the collector drawing span ids from next.
// Enables deterministic ids for testing.
func (c *LocalCollector) WithIDSource(next func() SpanID) *LocalCollector {
	c.stack.ids = next
	return c
}

// Start installs the collector's span stack into ctx and returns the new
// context. Pass the returned context through the traced call chain; the
// stack travels with it across nested calls.
func (c *LocalCollector) Start(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, stackKey, c.stack)
}

// Collect drains all finished local spans accumulated since Start (or since
// the previous Collect). Draining, not reading: the returned spans are
// removed from the collector.
func (c *LocalCollector) Collect() LocalSpans {
	return LocalSpans{spans: c.stack.drain()}
}

// LocalSpans is a batch of drained local span data, ready for conversion.
type LocalSpans struct {
	spans []*rawSpan
}

// Len returns the number of spans in the batch.
func (s LocalSpans) Len() int {
	return len(s.spans)
}

// ToSpanRecords converts the batch into span records. Every record is
// stamped with sc.TraceID; spans that had no local parent are recorded as
// children of sc.SpanID. Records are returned in entry order.
func (s LocalSpans) ToSpanRecords(sc SpanContext) []SpanRecord {
	if len(s.spans) == 0 {
		return nil
	}

	records := make([]SpanRecord, 0, len(s.spans))
	for _, raw := range s.spans {
		parent := raw.parentID
		if parent.IsZero() {
			parent = sc.SpanID
		}
		records = append(records, SpanRecord{
			TraceID:    sc.TraceID,
			SpanID:     raw.id,
			ParentID:   parent,
			BeginTime:  raw.begin,
			Duration:   raw.duration,
			Name:       raw.name,
			Properties: cloneProperties(raw.properties),
			Events:     cloneEvents(raw.events),
		})
	}
	return records
}

// Default span id source shared by collectors that do not inject their own.
var (
	defaultPoolOnce sync.Once
	defaultPool     *IDPool
)

func defaultSpanIDs() SpanID {
	defaultPoolOnce.Do(func() {
		defaultPool = NewIDPool(1024, randomSpanID)
	})
	return defaultPool.Get()
}
