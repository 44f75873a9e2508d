package bvh

import (
	"sync"
	"sync/atomic"
)

// Progress is the cooperative cancellation and status channel between a
// running build and its caller. Builders poll IsCanceled at range
// granularity; a canceled build unwinds and produces no structure.
type Progress struct {
	canceled atomic.Bool

	mu     sync.Mutex
	status string
	sink   func(string)
}

// NewProgress returns a progress handle with no status sink.
func NewProgress() *Progress {
	return &Progress{}
}

// NewProgressWithSink routes substatus strings to the given sink, used
// purely for observability.
func NewProgressWithSink(sink func(string)) *Progress {
	return &Progress{sink: sink}
}

// Cancel requests a cooperative unwind. Safe to call from any goroutine.
func (p *Progress) Cancel() {
	p.canceled.Store(true)
}

// IsCanceled reports whether cancellation was requested. Lock-free so that
// builder tasks can poll it without contending.
func (p *Progress) IsCanceled() bool {
	return p.canceled.Load()
}

// SetSubstatus publishes a human-readable phase description.
func (p *Progress) SetSubstatus(status string) {
	p.mu.Lock()
	p.status = status
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink(status)
	}
}

// Substatus returns the last published phase description.
func (p *Progress) Substatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
