package reactor

import "sync"

// Event is a cross-goroutine wake primitive: any goroutine can call
// Signal, which schedules fn to run once on the reactor's loop
// goroutine, coalescing repeated signals that arrive before the
// previous one has been dispatched (the same coalescing behavior an
// eventfd counter gives for free).
type Event struct {
	r  *Reactor
	fn func()

	mu      sync.Mutex
	pending bool
}

// NewEvent creates an Event bound to r. fn always runs on r's loop
// goroutine, serialized with every other reactor callback.
func (r *Reactor) NewEvent(fn func()) *Event {
	return &Event{r: r, fn: fn}
}

// Signal requests a dispatch of the event's callback. Safe to call
// from any goroutine, any number of times; concurrent signals before
// the callback runs collapse into a single invocation.
func (e *Event) Signal() {
	e.mu.Lock()
	if e.pending {
		e.mu.Unlock()
		return
	}
	e.pending = true
	e.mu.Unlock()

	e.r.Post(func() {
		e.mu.Lock()
		e.pending = false
		e.mu.Unlock()
		e.fn()
	})
}
