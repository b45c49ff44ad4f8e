// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package parallel runs compute workgroups on a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Pool is a work-stealing pool of goroutines.
//
// Each worker owns a queue and steals from the others when its own is
// empty, which balances workgroups of uneven cost (viewport edges, masked
// regions). Pool is safe for concurrent use.
type Pool struct {
	workers int
	queues  []chan func()
	done    chan struct{}
	wg      sync.WaitGroup

	// mu orders enqueueing against Close so no item is queued after the
	// workers have drained.
	mu     sync.RWMutex
	closed bool
}

// NewPool starts a pool. If workers <= 0, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &Pool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case work := <-own:
			work()
		default:
			if work := p.steal(id); work != nil {
				work()
				continue
			}
			select {
			case <-p.done:
				drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func drain(q chan func()) {
	for {
		select {
		case work := <-q:
			work()
		default:
			return
		}
	}
}

func (p *Pool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run calls fn(i) for every i in [0, n) and waits for all calls to
// return. A nil or closed pool runs them on the calling goroutine.
func (p *Pool) Run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if p == nil || n == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		for i := range n {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		p.queues[i%p.workers] <- func() {
			defer wg.Done()
			fn(i)
		}
	}
	p.mu.RUnlock()
	wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Close runs the queued work and stops the workers. It is safe to call
// more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}
