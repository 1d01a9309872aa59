// File: server/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking AF_UNIX stream listener registered with the reactor.

package server

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/kbroker/reactor"
)

const listenBacklog = 128

type listener struct {
	b    *Broker
	fd   int
	path string
	u    *reactor.FDUser
}

func listen(b *Broker, path string) (*listener, error) {
	if err := removeSocket(path); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)
	fail := func(op string, err error) (*listener, error) {
		return nil, multierr.Append(fmt.Errorf("%s %s: %w", op, path, err), unix.Close(fd))
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("nonblock", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		return fail("listen", err)
	}
	l := &listener{b: b, fd: fd, path: path}
	u, err := b.r.AddUser(fd, l)
	if err != nil {
		return fail("register", err)
	}
	l.u = u
	u.SetEvents(reactor.EventRead)
	return l, nil
}

// PollEvent accepts every pending connection.
func (l *listener) PollEvent(*reactor.FDUser, reactor.Events) {
	for {
		nfd, _, err := unix.Accept(l.fd)
		switch err {
		case nil:
		case unix.EINTR, unix.ECONNABORTED:
			continue
		case unix.EAGAIN:
			return
		default:
			l.b.log.Warn("accept", zap.Error(err))
			return
		}
		unix.CloseOnExec(nfd)
		if _, err := l.b.adopt(nfd); err != nil {
			l.b.log.Warn("connection refused", zap.Error(err))
		}
	}
}

func (l *listener) close() error {
	l.b.r.RemoveUser(l.u)
	return multierr.Combine(unix.Close(l.fd), removeSocket(l.path))
}
