package discord

import (
	"context"
	"log/slog"
	"sync"
)

// workQueue is a bounded queue with a fixed worker pool. Gateway event
// handlers enqueue and return immediately, so slow database writes never
// block the websocket read loop. When the queue is full the oldest kind of
// backpressure applies: the event is dropped and counted.
type workQueue struct {
	mu      sync.Mutex
	closed  bool
	tasks   chan func(context.Context)
	logger  *slog.Logger
	wg      sync.WaitGroup
	dropped func()
}

func newWorkQueue(size, workers int, logger *slog.Logger, onDrop func()) *workQueue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	q := &workQueue{
		tasks:   make(chan func(context.Context), size),
		logger:  logger,
		dropped: onDrop,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *workQueue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("capture worker panic", slog.Any("panic", r))
				}
			}()
			task(context.Background())
		}()
	}
}

// Submit enqueues a task without blocking. Returns false if the queue was
// full and the task was dropped, or if the queue is already closed.
// Gateway handlers run on their own goroutines, so a straggler can still
// call Submit while shutdown is in progress.
func (q *workQueue) Submit(task func(context.Context)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Debug("capture queue closed, event discarded")
		return false
	}
	select {
	case q.tasks <- task:
		return true
	default:
		if q.dropped != nil {
			q.dropped()
		}
		q.logger.Warn("capture queue full, event dropped")
		return false
	}
}

// Close stops accepting tasks and waits for in-flight ones to finish.
// Safe to call more than once.
func (q *workQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}
