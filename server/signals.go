// File: server/signals.go
// Author: momentics <momentics@gmail.com>
//
// Self-pipe delivering process signals to the reactor goroutine.

package server

import (
	"os"
	"os/signal"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/momentics/kbroker/reactor"
)

// sigContextDone is posted when the Serve context ends.
const sigContextDone unix.Signal = 0

type signalPipe struct {
	b    *Broker
	rfd  int
	wfd  int
	u    *reactor.FDUser
	ch   chan os.Signal
	done chan struct{}
	wg   sync.WaitGroup
}

func newSignalPipe(b *Broker) (*signalPipe, error) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			return nil, multierr.Combine(err, unix.Close(fds[0]), unix.Close(fds[1]))
		}
	}
	sp := &signalPipe{b: b, rfd: fds[0], wfd: fds[1], ch: make(chan os.Signal, 8), done: make(chan struct{})}
	u, err := b.r.AddUser(sp.rfd, sp)
	if err != nil {
		return nil, multierr.Combine(err, unix.Close(fds[0]), unix.Close(fds[1]))
	}
	sp.u = u
	u.SetEvents(reactor.EventRead)

	signal.Notify(sp.ch, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGUSR1)
	sp.wg.Add(1)
	go sp.forward()
	return sp, nil
}

// forward is the only code running off the reactor goroutine: it turns
// channel deliveries into pipe bytes.
func (sp *signalPipe) forward() {
	defer sp.wg.Done()
	for {
		select {
		case s := <-sp.ch:
			sig, ok := s.(unix.Signal)
			if !ok {
				continue
			}
			_, _ = unix.Write(sp.wfd, []byte{byte(sig)})
		case <-sp.done:
			return
		}
	}
}

// post queues sig as if it had been delivered. Safe from any goroutine.
func (sp *signalPipe) post(sig unix.Signal) {
	select {
	case sp.ch <- sig:
	default:
	}
}

// PollEvent implements reactor.Handler.
func (sp *signalPipe) PollEvent(*reactor.FDUser, reactor.Events) {
	var buf [16]byte
	for {
		n, err := unix.Read(sp.rfd, buf[:])
		if n <= 0 || err != nil {
			return
		}
		for _, s := range buf[:n] {
			sp.b.handleSignal(unix.Signal(s))
			if !sp.u.Active() {
				return
			}
		}
	}
}

func (sp *signalPipe) close() error {
	signal.Stop(sp.ch)
	close(sp.done)
	sp.wg.Wait()
	sp.b.r.RemoveUser(sp.u)
	return multierr.Combine(unix.Close(sp.rfd), unix.Close(sp.wfd))
}
