package capture

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

var ErrExecutorClosed = errors.New("executor is closed")

// Executor runs jobs one at a time on a single goroutine that is locked to
// its OS thread, for rendering backends that must always be driven from the
// same thread.
type Executor struct {
	jobs      chan func()
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewExecutor() *Executor {
	e := &Executor{
		jobs: make(chan func()),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *Executor) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.done)

	for job := range e.jobs {
		job()
	}
}

// Do runs fn on the executor's thread and blocks until it returns or ctx is
// done. A job that already started keeps running after ctx is cancelled.
func (e *Executor) Do(ctx context.Context, fn func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}

	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for the running one to finish.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.jobs)
		e.mu.Unlock()
	})
	<-e.done
}
