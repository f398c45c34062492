package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of waiting
	// for room. Event types listed in Critical always wait.
	DropIfFull bool
	Critical   []string
}

// Dispatcher asynchronously forwards audit events to a sink.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	critical   map[string]struct{}
	now        func() time.Time

	queue     chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once

	dropMu  sync.Mutex
	dropped map[string]uint64
	total   atomic.Uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg.Enabled is
// false; a nil Dispatcher ignores every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	critical := make(map[string]struct{}, len(cfg.Critical))
	for _, eventType := range cfg.Critical {
		critical[eventType] = struct{}{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		critical:   critical,
		now:        time.Now,
		queue:      make(chan Event, cfg.BufferSize),
		done:       make(chan struct{}),
		dropped:    make(map[string]uint64),
	}

	d.wg.Add(1)
	go d.relay()

	return d
}

func (d *Dispatcher) relay() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered once Close has been called.
func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues event for delivery, stamping its timestamp if unset. Non-critical
// events are dropped and counted when the buffer is full and DropIfFull is
// set; every other event waits for room, for ctx, or for Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}

	_, critical := d.critical[event.EventType]
	if d.dropIfFull && !critical {
		select {
		case d.queue <- event:
		case <-d.done:
		default:
			d.recordDrop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.recordDrop(event.EventType)
	case <-d.done:
	}
}

func (d *Dispatcher) recordDrop(eventType string) {
	d.total.Add(1)
	d.dropMu.Lock()
	d.dropped[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events and waits until the buffer is delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events lost across all types.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByEvent returns a copy of the per-event-type drop counts.
func (d *Dispatcher) DroppedByEvent() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for eventType, n := range d.dropped {
		out[eventType] = n
	}
	return out
}
