// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One client connection. After initialization it represents exactly one
// kernel thread.

package server

import (
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/protocol"
	"github.com/momentics/kbroker/reactor"
)

const readChunk = 4096

type conn struct {
	b      *Broker
	fd     int
	u      *reactor.FDUser
	id     uuid.UUID
	log    *zap.Logger
	in     []byte
	out    *queue.Queue // of []byte
	outOff int
	thread *kernel.Thread
	more   *reactor.TimeoutUser
	closed bool
}

// adopt wraps a connected descriptor and registers it for reading.
func (b *Broker) adopt(fd int) (*conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	c := &conn{b: b, fd: fd, id: uuid.New(), out: queue.New()}
	c.log = b.log.With(zap.String("session", c.id.String()))
	u, err := b.r.AddUser(fd, c)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	c.u = u
	u.SetEvents(reactor.EventRead)
	b.conns[c] = struct{}{}
	b.metrics.Add("server.accepted", 1)
	b.updateGauges()
	c.log.Debug("connection accepted", zap.Int("fd", fd))
	return c, nil
}

// attach binds the connection to th; the connection owns th's creation
// reference from here on.
func (c *conn) attach(th *kernel.Thread) {
	c.thread = th
	th.SetWaker(c.wake)
	c.log = c.log.With(zap.Uint32("tid", th.ID()), zap.Uint32("pid", th.Process().ID()))
}

// PollEvent implements reactor.Handler.
func (c *conn) PollEvent(_ *reactor.FDUser, ev reactor.Events) {
	if ev&reactor.EventWrite != 0 {
		c.flush()
		if c.closed {
			return
		}
	}
	if ev&reactor.EventRead != 0 {
		c.readAvailable()
		return
	}
	if ev&(reactor.EventError|reactor.EventHangup) != 0 {
		c.close("hangup")
	}
}

func (c *conn) readAvailable() {
	var buf [readChunk]byte
	n, err := unix.Read(c.fd, buf[:])
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return
	case err != nil:
		c.close(err.Error())
		return
	case n == 0:
		c.close("eof")
		return
	}
	c.in = append(c.in, buf[:n]...)
	c.processOne()
}

func (c *conn) maxVar() int { return c.b.store.Snapshot().MaxRequestData }

// processOne handles at most one buffered request. Anything left over is
// picked up by a zero-delay timeout so other clients get their turn.
func (c *conn) processOne() {
	req, used, err := protocol.DecodeRequest(c.in, c.maxVar())
	if err != nil {
		c.log.Warn("protocol error", zap.Error(err))
		c.close("protocol error")
		return
	}
	if req == nil {
		return
	}
	c.in = append(c.in[:0], c.in[used:]...)
	c.b.dispatch(c, req)
	if !c.closed && c.more == nil && c.hasRequest() {
		c.more = c.b.r.AddTimeout(c.b.r.Now(), c.processBuffered)
	}
}

func (c *conn) processBuffered() {
	c.more = nil
	if !c.closed {
		c.processOne()
	}
}

func (c *conn) hasRequest() bool {
	req, _, err := protocol.DecodeRequest(c.in, c.maxVar())
	return req != nil || err != nil
}

// send writes frame, queueing whatever the socket does not take now. The
// frame goes back to the broker pool once written.
func (c *conn) send(frame []byte) {
	if c.closed {
		return
	}
	if c.out.Length() == 0 {
		n, err := unix.Write(c.fd, frame)
		if err != nil && err != unix.EAGAIN {
			c.close(err.Error())
			return
		}
		if n == len(frame) {
			c.b.frames.Put(frame)
			return
		}
		if n > 0 {
			c.outOff = n
		}
	}
	c.out.Add(frame)
	c.u.SetEvents(reactor.EventRead | reactor.EventWrite)
}

func (c *conn) flush() {
	for c.out.Length() > 0 {
		frame := c.out.Peek().([]byte)
		n, err := unix.Write(c.fd, frame[c.outOff:])
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			c.close(err.Error())
			return
		}
		c.outOff += n
		if c.outOff < len(frame) {
			return
		}
		c.out.Remove()
		c.outOff = 0
		c.b.frames.Put(frame)
	}
	c.u.SetEvents(reactor.EventRead)
}

// wake is the thread's waker: completed waits become wake frames.
func (c *conn) wake(cookie uint64, status api.Status) {
	c.b.metrics.Add("wakes", 1)
	c.send(protocol.AppendWake(c.b.frames.Get(), protocol.WakeUp{Cookie: cookie, Status: status}))
}

// close drops the connection and kills its thread.
func (c *conn) close(reason string) {
	if c.closed {
		return
	}
	c.closed = true
	c.b.r.RemoveTimeout(c.more)
	c.more = nil
	c.b.r.RemoveUser(c.u)
	if err := unix.Close(c.fd); err != nil {
		c.log.Debug("close", zap.Error(err))
	}
	c.out = queue.New()
	delete(c.b.conns, c)
	if th := c.thread; th != nil {
		c.thread = nil
		th.SetWaker(nil)
		c.b.k.KillThread(th, 0)
		kernel.Release(th)
	}
	c.log.Debug("connection closed", zap.String("reason", reason))
	c.b.updateGauges()
}
