package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// writeRunner executes fire-and-forget remote writes. Tasks have no result;
// a full queue drops the task and counts it.
type writeRunner struct {
	tasks     chan func(context.Context)
	timeout   time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newWriteRunner(size int, timeout time.Duration) *writeRunner {
	if size <= 0 {
		size = 1
	}
	w := &writeRunner{
		tasks:   make(chan func(context.Context), size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *writeRunner) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			w.exec(task)
		case <-w.done:
			for {
				select {
				case task := <-w.tasks:
					w.exec(task)
				default:
					return
				}
			}
		}
	}
}

func (w *writeRunner) exec(task func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	task(ctx)
}

func (w *writeRunner) submit(task func(context.Context)) bool {
	if w == nil || w.closed.Load() {
		return false
	}
	select {
	case w.tasks <- task:
		return true
	case <-w.done:
		return false
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *writeRunner) close() {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.done)
		w.wg.Wait()
	})
}
