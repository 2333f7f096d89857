//go:build linux

package reactor

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// eventfdWaker backs the reactor's wake signal with a Linux eventfd
// instead of a plain channel, matching the original's use of an
// eventfd to interrupt its epoll_wait. A dedicated goroutine blocks on
// a blocking read of the counter and forwards each wake onto the
// ordinary Go channel the loop already selects on, so the rest of the
// reactor stays platform-neutral.
type eventfdWaker struct {
	fd      int
	ch      chan struct{}
	closing atomic.Bool
}

func newWaker() (*eventfdWaker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	w := &eventfdWaker{fd: fd, ch: make(chan struct{}, 1)}
	go w.readLoop()
	return w, nil
}

func (w *eventfdWaker) readLoop() {
	buf := make([]byte, 8)
	for {
		n, err := unix.Read(w.fd, buf)
		if w.closing.Load() {
			return
		}
		if err != nil || n != 8 {
			return
		}
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// nudge increments the eventfd counter by 1, waking any blocked read.
func (w *eventfdWaker) nudge() {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1)
	_, _ = unix.Write(w.fd, b[:])
}

func (w *eventfdWaker) channel() <-chan struct{} { return w.ch }

// close stops readLoop before releasing the fd: closing an fd blocked in a
// raw read(2) does not reliably unblock it on Linux, so close nudges the
// counter first to wake the pending read, which then observes closing and
// returns instead of looping on a file descriptor that may be reused.
func (w *eventfdWaker) close() {
	w.closing.Store(true)
	w.nudge()
	_ = unix.Close(w.fd)
}
