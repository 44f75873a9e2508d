package bvh

import (
	"runtime"
	"sync"
)

// taskPool runs fork/join build tasks on a bounded set of workers. Pushing
// onto a full queue executes the task inline on the caller, which keeps
// task-spawning tasks deadlock free and naturally throttles forking.
type taskPool struct {
	wg    sync.WaitGroup
	queue chan func()
	quit  chan struct{}
}

func newTaskPool(workers int) *taskPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &taskPool{
		queue: make(chan func(), workers*64),
		quit:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *taskPool) worker() {
	for {
		select {
		case fn := <-p.queue:
			fn()
			p.wg.Done()
		case <-p.quit:
			return
		}
	}
}

// push schedules fn, or runs it inline when the queue is saturated.
func (p *taskPool) push(fn func()) {
	p.wg.Add(1)
	select {
	case p.queue <- fn:
	default:
		fn()
		p.wg.Done()
	}
}

// wait blocks until every pushed task, including tasks pushed by tasks, has
// finished.
func (p *taskPool) wait() {
	p.wg.Wait()
}

// stop shuts the workers down. The pool must be idle.
func (p *taskPool) stop() {
	close(p.quit)
}
