package localtrace

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers completed detached spans for batch export. Register its
// Collect method as a completion handler on a Tracer to receive them.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      []SpanRecord
	recordsCh    chan SpanRecord
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	name         string
	mu           sync.Mutex
	closed       atomic.Bool // Track if collector is closed.
	syncMode     bool        // Bypass channel for synchronous collection.
}

// NewCollector creates a new collector with the specified name and buffer size.
func NewCollector(name string, bufferSize int) *Collector {
	c := &Collector{
		name:      name,
		records:   make([]SpanRecord, 0, 8), // Start with small capacity.
		recordsCh: make(chan SpanRecord, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// Name returns the collector's name.
func (c *Collector) Name() string {
	return c.name
}

// start runs the collector's main loop, receiving records from the channel.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case record := <-c.recordsCh:
					c.bufferRecord(record)
				default:
					return // Clean shutdown.
				}
			}
		case record := <-c.recordsCh:
			c.bufferRecord(record)
		}
	}
}

// Close shuts down the collector gracefully.
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.stopCh)
	select {
	case <-c.done:
		// Clean shutdown completed.
	case <-time.After(100 * time.Millisecond):
		// Timeout - give up waiting; buffered records remain exportable.
	}
}

// Collect buffers a record with backpressure protection. If the internal
// channel is full, the record is dropped and the drop counter incremented.
// In sync mode, records are buffered directly for deterministic testing.
//
// The signature matches SpanHandler so a Collector subscribes with
// tracer.OnSpanComplete(collector.Collect).
func (c *Collector) Collect(record SpanRecord) {
	// Deep copy the ordered sequences so later span mutation cannot leak in.
	record.Properties = cloneProperties(record.Properties)
	record.Events = cloneEvents(record.Events)

	if c.syncMode {
		// Direct synchronous collection for tests.
		if c.closed.Load() {
			// Collector is closed - drop record.
			c.droppedCount.Add(1)
			return
		}
		c.bufferRecord(record)
		return
	}

	select {
	case c.recordsCh <- record:
		// Successfully queued.
	default:
		// Channel full - drop record to prevent blocking.
		c.droppedCount.Add(1)
	}
}

// bufferRecord adds a record to the internal buffer.
func (c *Collector) bufferRecord(record SpanRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if buffer needs to grow - optimized growth strategy.
	if len(c.records) >= cap(c.records) {
		currentCap := cap(c.records)
		var newCap int
		if currentCap < 1024 {
			// Double capacity for small buffers.
			newCap = currentCap * 2
		} else {
			// Grow by 50% for large buffers to avoid excessive memory usage.
			newCap = currentCap + currentCap/2
		}
		if newCap < 32 {
			newCap = 32
		}
		newSlice := make([]SpanRecord, len(c.records), newCap)
		copy(newSlice, c.records)
		c.records = newSlice
	}
	c.records = append(c.records, record)
}

// Export returns a copy of all buffered records and clears the internal
// buffer. The returned slice is safe to modify without affecting the
// collector.
func (c *Collector) Export() []SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	// Create a deep copy of the records.
	result := make([]SpanRecord, len(c.records))
	for i := range c.records {
		result[i] = c.records[i]
		result[i].Properties = cloneProperties(c.records[i].Properties)
		result[i].Events = cloneEvents(c.records[i].Events)
	}

	// More conservative shrinking to avoid allocation churn.
	if cap(c.records) > 256 && len(c.records) < cap(c.records)/8 {
		// Only shrink if buffer is very oversized.
		newCap := cap(c.records) / 4
		if newCap < 32 {
			newCap = 32
		}
		c.records = make([]SpanRecord, 0, newCap)
	} else {
		c.records = c.records[:0] // Keep capacity, reset length.
	}

	return result
}

// Count returns the current number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// DroppedCount returns the total number of records dropped due to backpressure.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection for testing.
// When enabled, records are buffered directly without using the channel.
// This makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode = sync
}

// Reset clears all buffered records and resets the drop counter.
// Does not affect the running goroutine - use Close for that.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = c.records[:0]
	c.droppedCount.Store(0)
}
