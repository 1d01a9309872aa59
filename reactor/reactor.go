// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral contracts of the select reactor.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// Events is a readiness interest/notification mask.
type Events uint32

const (
	// EventRead indicates the descriptor is readable.
	EventRead Events = 1 << iota
	// EventWrite indicates the descriptor is writable.
	EventWrite
	// EventError indicates an error condition on the descriptor.
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
)

// Handler receives readiness notifications for one registered descriptor.
type Handler interface {
	PollEvent(u *FDUser, ev Events)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(u *FDUser, ev Events)

// PollEvent calls f(u, ev).
func (f HandlerFunc) PollEvent(u *FDUser, ev Events) { f(u, ev) }

// Poller is the underlying multiplexing call. It blocks for at most
// timeoutMs milliseconds (negative means forever) and fills Revents.
type Poller interface {
	Poll(fds []unix.PollFd, timeoutMs int) (int, error)
}

// Clock supplies the reactor's notion of now.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func toPoll(ev Events) int16 {
	var out int16
	if ev&EventRead != 0 {
		out |= unix.POLLIN
	}
	if ev&EventWrite != 0 {
		out |= unix.POLLOUT
	}
	return out
}

func fromPoll(revents int16) Events {
	var ev Events
	if revents&unix.POLLIN != 0 {
		ev |= EventRead
	}
	if revents&unix.POLLOUT != 0 {
		ev |= EventWrite
	}
	if revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		ev |= EventError
	}
	if revents&unix.POLLHUP != 0 {
		ev |= EventHangup
	}
	return ev
}
