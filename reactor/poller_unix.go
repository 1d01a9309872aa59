// File: reactor/poller_unix.go
// Author: momentics <momentics@gmail.com>
//
// poll(2)-based Poller.

package reactor

import (
	"golang.org/x/sys/unix"
)

type unixPoller struct{}

// NewPoller returns the default poll(2) poller.
func NewPoller() Poller {
	return unixPoller{}
}

// Poll waits on fds; an interrupted call reports no events.
func (unixPoller) Poll(fds []unix.PollFd, timeoutMs int) (int, error) {
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
