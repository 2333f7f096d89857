package httpclient

import "context"

// Start runs the query on a dedicated goroutine and posts its
// completion (through done) onto the Client's reactor, so done always
// runs serialized with every other reactor callback even though the
// network I/O itself happens off the loop goroutine.
//
// A canceled query's completion never runs at all, and a transport
// error is diverted to the client-wide OnError handler when one is
// installed.
func (q *Query) Start(ctx context.Context, done func(*Response, error)) {
	go func() {
		resp, err := q.Do(ctx)
		if q.canceled.Load() {
			return
		}
		q.client.mu.Lock()
		onError := q.client.onError
		q.client.mu.Unlock()
		if err != nil && onError != nil {
			q.client.Reactor.Post(func() { onError(q, err) })
			return
		}
		q.client.Reactor.Post(func() { done(resp, err) })
	}()
}
