package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds a single durable write.
const DefaultWriteTimeout = 5 * time.Second

// Writer performs durable writes in the background, one at a time and in
// submission order. Failures are logged and never reach the caller.
type Writer struct {
	log     *zap.Logger
	timeout time.Duration
	jobs    chan job

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type job struct {
	name  string
	fn    func(ctx context.Context) error
	flush chan struct{}
}

// NewWriter starts a writer with room for queue pending jobs.
func NewWriter(log *zap.Logger, queue int) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	if queue <= 0 {
		queue = 64
	}
	w := &Writer{
		log:     log,
		timeout: DefaultWriteTimeout,
		jobs:    make(chan job, queue),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues fn without blocking. When the queue is full the write is
// dropped and logged.
func (w *Writer) Submit(name string, fn func(ctx context.Context) error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.log.Warn("Dropping write after close", zap.String("write", name))
		return
	}
	select {
	case w.jobs <- job{name: name, fn: fn}:
	default:
		w.log.Warn("Write queue full, dropping write", zap.String("write", name))
	}
}

// Flush waits until every job submitted before the call has run.
func (w *Writer) Flush(ctx context.Context) error {
	flush := make(chan struct{})
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	select {
	case w.jobs <- job{flush: flush}:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case <-flush:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close runs the remaining jobs and stops the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.jobs {
		if j.flush != nil {
			close(j.flush)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := j.fn(ctx); err != nil {
			w.log.Warn("Unable to persist", zap.String("write", j.name), zap.Error(err))
		}
		cancel()
	}
}
