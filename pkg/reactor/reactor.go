// Package reactor provides a single-loop event dispatcher: every
// callback registered through Post, AfterFunc or an Event's Signal
// runs serialized on one goroutine, the way the original's
// epoll/eventfd loop serializes every callback on its one thread.
//
// Go's runtime netpoller already multiplexes socket readiness, so
// there is no raw fd/poll-mask primitive here. pkg/httpclient does its
// network I/O off the loop goroutine: a query run with Query.Start
// delivers its completion through Reactor.Post, while Query.Do runs
// and returns on the caller's goroutine.
package reactor

import (
	"container/heap"
	"sync"
	"time"
)

// CallID identifies a deferred call submitted through Post, usable
// with Cancel to withdraw it before it runs.
type CallID uint64

// Reactor runs callbacks one at a time on its own loop goroutine.
type Reactor struct {
	mu       sync.Mutex
	posted   []job
	nextID   CallID
	canceled map[CallID]bool
	timers   timerHeap
	waker    waker
	stop     chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// waker is the platform-specific wake primitive backing Post/AfterFunc
// notifications: an eventfd on Linux (wake_linux.go), a plain channel
// elsewhere (wake_other.go).
type waker interface {
	nudge()
	channel() <-chan struct{}
	close()
}

type job struct {
	id CallID
	fn func()
}

// New creates a Reactor and starts its loop goroutine.
func New() *Reactor {
	var w waker
	created, err := newWaker()
	if err != nil {
		// Eventfd creation failing (fd exhaustion, restrictive
		// seccomp) is rare enough to fall back rather than panic.
		w = &fallbackWaker{ch: make(chan struct{}, 1)}
	} else {
		w = created
	}
	r := &Reactor{
		canceled: make(map[CallID]bool),
		waker:    w,
		stop:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Post schedules fn to run on the loop goroutine and returns an id
// that Cancel can use to withdraw it before it runs. Safe to call
// from any goroutine, including from within a running callback.
func (r *Reactor) Post(fn func()) CallID {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.posted = append(r.posted, job{id: id, fn: fn})
	r.mu.Unlock()
	r.nudge()
	return id
}

// Cancel withdraws a previously posted call or timer by id. It is a
// no-op if the call already ran or never existed.
func (r *Reactor) Cancel(id CallID) {
	r.mu.Lock()
	r.canceled[id] = true
	r.mu.Unlock()
}

// AfterFunc schedules fn to run on the loop goroutine after d elapses,
// returning its CallID so it can be canceled before firing.
func (r *Reactor) AfterFunc(d time.Duration, fn func()) CallID {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	heap.Push(&r.timers, &timerEntry{id: id, at: time.Now().Add(d), fn: fn})
	r.mu.Unlock()
	r.nudge()
	return id
}

// Stop halts the loop goroutine after any in-flight callback
// completes. Pending posts and timers are discarded.
func (r *Reactor) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()
	close(r.stop)
	r.wg.Wait()
	r.waker.close()
}

func (r *Reactor) nudge() {
	r.waker.nudge()
}

func (r *Reactor) loop() {
	defer r.wg.Done()
	wake := r.waker.channel()
	for {
		fn, ok := r.popReady()
		if ok {
			fn()
			continue
		}

		timer := time.NewTimer(r.nextTimerDelay())
		select {
		case <-r.stop:
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// fallbackWaker is used only if eventfd creation fails on Linux.
type fallbackWaker struct{ ch chan struct{} }

func (w *fallbackWaker) nudge() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}
func (w *fallbackWaker) channel() <-chan struct{} { return w.ch }
func (w *fallbackWaker) close()                   {}

// popReady returns the next ready callback (a posted job first, then
// any due timer), or ok=false if nothing is ready right now.
func (r *Reactor) popReady() (func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.posted) > 0 {
		j := r.posted[0]
		r.posted = r.posted[1:]
		if r.canceled[j.id] {
			delete(r.canceled, j.id)
			continue
		}
		return j.fn, true
	}

	if r.timers.Len() > 0 {
		top := r.timers[0]
		if !time.Now().Before(top.at) {
			heap.Pop(&r.timers)
			if r.canceled[top.id] {
				delete(r.canceled, top.id)
				return nil, false
			}
			return top.fn, true
		}
	}

	return nil, false
}

func (r *Reactor) nextTimerDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers.Len() == 0 {
		return time.Hour
	}
	d := time.Until(r.timers[0].at)
	if d < 0 {
		return 0
	}
	return d
}

type timerEntry struct {
	id CallID
	at time.Time
	fn func()
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
