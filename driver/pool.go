package driver

import (
	"fmt"
	"sync"
	"time"
)

// Handle is a checked out dataset. Between Checkout and Return it is owned
// exclusively by one goroutine.
type Handle struct {
	Path string
	Dataset

	returned time.Time
}

// Pool caches open dataset handles keyed by path. Checkout removes a handle
// from the pool entirely, so a handle can never be used from two goroutines
// at once; Return puts it back for reuse and evicts the least recently
// returned handles beyond the idle cap.
type Pool struct {
	mu      sync.Mutex
	idle    map[string][]*Handle
	nIdle   int
	maxIdle int
	closed  bool
}

func NewPool(maxIdle int) *Pool {
	if maxIdle <= 0 {
		maxIdle = 32
	}
	return &Pool{idle: map[string][]*Handle{}, maxIdle: maxIdle}
}

func (p *Pool) Checkout(path string) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("handle pool is closed")
	}
	if hs := p.idle[path]; len(hs) > 0 {
		h := hs[len(hs)-1]
		p.idle[path] = hs[:len(hs)-1]
		p.nIdle--
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	ds, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Handle{Path: path, Dataset: ds}, nil
}

// Return gives the handle back to the pool. The caller must not touch it
// afterwards.
func (p *Pool) Return(h *Handle) {
	if h == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		h.Close()
		return
	}
	h.returned = time.Now()
	p.idle[h.Path] = append(p.idle[h.Path], h)
	p.nIdle++
	var evict []*Handle
	for p.nIdle > p.maxIdle {
		if old := p.evictOldestLocked(); old != nil {
			evict = append(evict, old)
		} else {
			break
		}
	}
	p.mu.Unlock()
	for _, old := range evict {
		old.Close()
	}
}

func (p *Pool) evictOldestLocked() *Handle {
	var oldest *Handle
	var oldestPath string
	for path, hs := range p.idle {
		if len(hs) == 0 {
			continue
		}
		if oldest == nil || hs[0].returned.Before(oldest.returned) {
			oldest = hs[0]
			oldestPath = path
		}
	}
	if oldest == nil {
		return nil
	}
	p.idle[oldestPath] = p.idle[oldestPath][1:]
	if len(p.idle[oldestPath]) == 0 {
		delete(p.idle, oldestPath)
	}
	p.nIdle--
	return oldest
}

// Close drains the pool. Outstanding checked out handles stay valid; they
// are closed when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	var all []*Handle
	for _, hs := range p.idle {
		all = append(all, hs...)
	}
	p.idle = map[string][]*Handle{}
	p.nIdle = 0
	p.mu.Unlock()

	var firstErr error
	for _, h := range all {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
