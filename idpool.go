package localtrace

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// IDPool manages a pool of pre-generated span ids to amortize crypto/rand
// overhead.
type IDPool struct {
	factory func() SpanID
	ids     chan SpanID
	stopCh  chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewIDPool creates a new ID pool with the specified capacity.
func NewIDPool(capacity int, factory func() SpanID) *IDPool {
	pool := &IDPool{
		ids:     make(chan SpanID, capacity),
		factory: factory,
		stopCh:  make(chan struct{}),
	}
	// Start background refill goroutine.
	go pool.refill()
	return pool
}

// Get retrieves an ID from the pool or generates one if pool is empty.
func (p *IDPool) Get() SpanID {
	select {
	case id := <-p.ids:
		return id
	default:
		// Pool empty, generate directly (fallback for burst load).
		return p.factory()
	}
}

// refill maintains the pool by generating IDs in background.
func (p *IDPool) refill() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
			// Only generate if pool has capacity.
			select {
			case p.ids <- p.factory():
				// Successfully added ID to pool.
			case <-p.stopCh:
				return
			}
		}
	}
}

// Close shuts down the ID pool gracefully.
func (p *IDPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		close(p.stopCh)
		p.closed = true
	}
}

// fallbackSeq backs randomSpanID when crypto/rand fails.
var fallbackSeq atomic.Uint64

// randomSpanID generates a non-zero span id from crypto/rand. The zero id
// is reserved for "no parent", so a zero draw is redrawn.
func randomSpanID() SpanID {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// Fallback to a sequential id if crypto/rand fails.
			return SpanID(fallbackSeq.Add(1))
		}
		if id := binary.BigEndian.Uint64(buf[:]); id != 0 {
			return SpanID(id)
		}
	}
}

// randomTraceWord generates one 64-bit word of a trace id.
func randomTraceWord() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fallbackSeq.Add(1)
	}
	return binary.BigEndian.Uint64(buf[:])
}
