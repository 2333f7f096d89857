package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsOnLoop(t *testing.T) {
	r := New()
	defer r.Stop()

	done := make(chan struct{})
	r.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted callback never ran")
	}
}

func TestPostOrderingSerialized(t *testing.T) {
	r := New()
	defer r.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		r.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCancelWithdrawsPostedCall(t *testing.T) {
	r := New()
	defer r.Stop()

	var ran int32
	id := r.Post(func() { atomic.StoreInt32(&ran, 1) })
	r.Cancel(id)

	done := make(chan struct{})
	r.Post(func() { close(done) })
	<-done

	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestAfterFuncFires(t *testing.T) {
	r := New()
	defer r.Stop()

	done := make(chan struct{})
	r.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestAfterFuncCancel(t *testing.T) {
	r := New()
	defer r.Stop()

	var ran int32
	id := r.AfterFunc(20*time.Millisecond, func() { atomic.StoreInt32(&ran, 1) })
	r.Cancel(id)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}

func TestEventCoalescesSignals(t *testing.T) {
	r := New()
	defer r.Stop()

	var count int32
	var wg sync.WaitGroup
	wg.Add(1)
	ev := r.NewEvent(func() {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})

	for i := 0; i < 10; i++ {
		ev.Signal()
	}
	wg.Wait()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestPostFromWithinCallback(t *testing.T) {
	r := New()
	defer r.Stop()

	done := make(chan struct{})
	r.Post(func() {
		r.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := New()
	r.Stop()
	require.NotPanics(t, func() { r.Stop() })
}
