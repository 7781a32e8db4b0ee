package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/authtree/internal/logging"
)

var (
	// ErrBufferFull is returned when a record is dropped because the buffer is full.
	ErrBufferFull = errors.New("audit buffer full")
	// ErrDispatcherClosed is returned for records emitted after Close.
	ErrDispatcherClosed = errors.New("audit dispatcher closed")
)

// DispatcherConfig controls dispatcher buffering behavior.
type DispatcherConfig struct {
	BufferSize int
	DropIfFull bool
}

// Dispatcher asynchronously forwards audit records to a sink.
type Dispatcher struct {
	cfg       DispatcherConfig
	sink      Sink
	logger    *slog.Logger
	ch        chan dispatched
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// dispatched carries the request context values without its cancellation.
type dispatched struct {
	ctx    context.Context
	record Record
}

// NewDispatcher starts the background goroutine. Close must be called to flush it.
func NewDispatcher(cfg DispatcherConfig, sink Sink, logger *slog.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		ch:     make(chan dispatched, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.ch:
			d.forward(item)
		case <-d.done:
			for {
				select {
				case item := <-d.ch:
					d.forward(item)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) forward(item dispatched) {
	if err := d.sink.Emit(item.ctx, item.record); err != nil {
		d.failed.Add(1)
		d.logger.Warn("audit sink failed",
			"event", item.record.EventName,
			"err", err,
		)
	}
}

// Emit enqueues the record. With DropIfFull a full buffer drops it immediately,
// otherwise Emit waits for room until ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, record Record) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	item := dispatched{ctx: context.WithoutCancel(ctx), record: record}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- item:
			return nil
		case <-d.done:
			return ErrDispatcherClosed
		default:
			d.dropped.Add(1)
			return ErrBufferFull
		}
	}

	select {
	case d.ch <- item:
		return nil
	case <-ctx.Done():
		d.dropped.Add(1)
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Close stops accepting records and flushes what is buffered.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many records never reached the buffer.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Failed returns how many buffered records the sink rejected.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}
