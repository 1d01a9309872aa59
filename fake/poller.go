// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlockForever is returned when an infinite poll has nothing ready.
var ErrWouldBlockForever = errors.New("fake poller: infinite wait with no ready descriptors")

// Poller simulates poll(2) with level-triggered readiness set by the test.
// An idle poll advances Clock by the requested timeout, modelling the wait.
type Poller struct {
	Clock *Clock
	// Timeouts records every timeout the reactor asked for.
	Timeouts []int
	ready    map[int32]int16
}

// NewPoller returns a poller bound to clock.
func NewPoller(clock *Clock) *Poller {
	return &Poller{Clock: clock, ready: make(map[int32]int16)}
}

// SetReady marks fd with revents until cleared.
func (p *Poller) SetReady(fd int, revents int16) {
	p.ready[int32(fd)] = revents
}

// ClearReady removes readiness for fd.
func (p *Poller) ClearReady(fd int) {
	delete(p.ready, int32(fd))
}

// Poll implements reactor.Poller.
func (p *Poller) Poll(fds []unix.PollFd, timeoutMs int) (int, error) {
	p.Timeouts = append(p.Timeouts, timeoutMs)
	n := 0
	for i := range fds {
		if fds[i].Fd < 0 {
			continue
		}
		rev, ok := p.ready[fds[i].Fd]
		if !ok {
			continue
		}
		rev &= fds[i].Events | unix.POLLERR | unix.POLLHUP | unix.POLLNVAL
		if rev != 0 {
			fds[i].Revents = rev
			n++
		}
	}
	if n > 0 {
		return n, nil
	}
	if timeoutMs < 0 {
		return 0, ErrWouldBlockForever
	}
	if p.Clock != nil {
		p.Clock.Advance(time.Duration(timeoutMs) * time.Millisecond)
	}
	return 0, nil
}
