// File: server/handlers_kernel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process, thread, handle, synchronization object and wait requests.

package server

import (
	"encoding/binary"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/protocol"
)

func handleInitProcess(b *Broker, c *conn, req *protocol.Request) (result, error) {
	if c.thread != nil {
		return result{}, api.ErrInvalidParameter.WithContext("reason", "already initialized")
	}
	body := req.Body.(*protocol.InitProcessRequest)
	var parent *kernel.Process
	if body.ParentPID != 0 {
		p, found := b.k.ProcessByID(body.ParentPID)
		if !found {
			return result{}, api.ErrInvalidCID.WithContext("pid", body.ParentPID)
		}
		parent = p
	}
	p, err := b.k.CreateProcess(parent, body.Inherit != 0)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(p)
	th, err := b.k.CreateThread(p)
	if err != nil {
		b.k.TerminateProcess(p, 0)
		return result{}, err
	}
	c.attach(th)
	return ok(&protocol.InitReply{PID: p.ID(), TID: th.ID()})
}

func handleInitThread(b *Broker, c *conn, req *protocol.Request) (result, error) {
	if c.thread != nil {
		return result{}, api.ErrInvalidParameter.WithContext("reason", "already initialized")
	}
	body := req.Body.(*protocol.InitThreadRequest)
	p, found := b.k.ProcessByID(body.PID)
	if !found {
		return result{}, api.ErrInvalidCID.WithContext("pid", body.PID)
	}
	th, err := b.k.CreateThread(p)
	if err != nil {
		return result{}, err
	}
	c.attach(th)
	return ok(&protocol.InitReply{PID: p.ID(), TID: th.ID()})
}

func handleTerminateThread(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.TerminateRequest)
	obj, err := c.thread.GetObject(api.Handle(body.Handle), kernel.ThreadTerminate, kernel.ThreadType)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(obj)
	target := obj.(*kernel.Thread)
	b.k.KillThread(target, body.ExitCode)
	return ok(&protocol.TerminateReply{Self: boolU32(target == c.thread)})
}

func handleTerminateProcess(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.TerminateRequest)
	obj, err := c.thread.GetObject(api.Handle(body.Handle), kernel.ProcessTerminate, kernel.ProcessType)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(obj)
	p := obj.(*kernel.Process)
	self := p == c.thread.Process()
	b.k.TerminateProcess(p, body.ExitCode)
	return ok(&protocol.TerminateReply{Self: boolU32(self)})
}

func handleCloseHandle(_ *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.CloseHandleRequest)
	if err := c.thread.Process().CloseHandleValue(api.Handle(body.Handle)); err != nil {
		return result{}, err
	}
	return ok(nil)
}

func processFor(c *conn, h uint32) (*kernel.Process, error) {
	obj, err := c.thread.GetObject(api.Handle(h), kernel.ProcessDupHandle, kernel.ProcessType)
	if err != nil {
		return nil, err
	}
	return obj.(*kernel.Process), nil
}

func handleDupHandle(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.DupHandleRequest)
	src, err := processFor(c, body.SrcProcess)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(src)
	dst, err := processFor(c, body.DstProcess)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(dst)
	h, err := b.k.DuplicateHandle(c.thread, src, api.Handle(body.SrcHandle), dst, body.Access, body.Attributes, body.Options)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.HandleReply{Handle: uint32(h)})
}

func handleSetHandleInfo(_ *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.SetHandleInfoRequest)
	table := c.thread.Process().Handles()
	old, err := table.Info(api.Handle(body.Handle))
	if err != nil {
		return result{}, err
	}
	if err := table.SetInfo(api.Handle(body.Handle), body.Mask, body.Flags); err != nil {
		return result{}, err
	}
	return ok(&protocol.SetHandleInfoReply{OldFlags: old})
}

func handleOpenProcess(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.OpenIDRequest)
	h, err := b.k.OpenProcess(c.thread.Process(), body.ID, body.Access, body.Attributes)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.HandleReply{Handle: uint32(h)})
}

func handleOpenThread(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.OpenIDRequest)
	h, err := b.k.OpenThread(c.thread.Process(), body.ID, body.Access, body.Attributes)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.HandleReply{Handle: uint32(h)})
}

// publish puts a freshly created or opened object into the caller's table
// and drops the creation reference.
func publish(c *conn, obj kernel.Object, existed bool, access, attrs uint32) (result, error) {
	defer kernel.Release(obj)
	h, err := c.thread.Process().AllocHandle(obj, access, attrs)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.CreateReply{Handle: uint32(h), Existed: boolU32(existed)})
}

func handleCreateEvent(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.CreateEventRequest)
	ev, existed, err := b.k.CreateEvent(string(req.Data), body.ManualReset != 0, body.InitialState != 0)
	if err != nil {
		return result{}, err
	}
	return publish(c, ev, existed, body.Access, body.Attributes)
}

func handleOpenEvent(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.OpenNamedRequest)
	obj, err := b.k.FindObject(string(req.Data), kernel.EventType, true)
	if err != nil {
		return result{}, err
	}
	res, err := publish(c, obj, true, body.Access, body.Attributes)
	if err != nil {
		return result{}, err
	}
	res.body = &protocol.HandleReply{Handle: res.body.(*protocol.CreateReply).Handle}
	return res, nil
}

func handleEventOp(_ *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.EventOpRequest)
	obj, err := c.thread.GetObject(api.Handle(body.Handle), kernel.EventModifyState, kernel.EventType)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(obj)
	ev := obj.(*kernel.Event)
	switch body.Op {
	case protocol.EventSet:
		ev.Set()
	case protocol.EventReset:
		ev.Reset()
	case protocol.EventPulse:
		ev.Pulse()
	default:
		return result{}, api.ErrInvalidParameter.WithContext("op", body.Op)
	}
	return ok(nil)
}

func handleCreateMutex(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.CreateMutexRequest)
	m, existed, err := b.k.CreateMutex(c.thread, string(req.Data), body.Owned != 0)
	if err != nil {
		return result{}, err
	}
	return publish(c, m, existed, body.Access, body.Attributes)
}

func handleReleaseMutex(_ *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.ReleaseMutexRequest)
	obj, err := c.thread.GetObject(api.Handle(body.Handle), 0, kernel.MutexType)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(obj)
	prev, err := obj.(*kernel.Mutex).Release(c.thread)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.CountReply{Prev: prev})
}

func handleCreateSemaphore(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.CreateSemaphoreRequest)
	s, existed, err := b.k.CreateSemaphore(string(req.Data), body.Initial, body.Max)
	if err != nil {
		return result{}, err
	}
	return publish(c, s, existed, body.Access, body.Attributes)
}

func handleReleaseSemaphore(_ *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.ReleaseSemaphoreRequest)
	obj, err := c.thread.GetObject(api.Handle(body.Handle), kernel.SemaphoreModifyState, kernel.SemaphoreType)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(obj)
	prev, err := obj.(*kernel.Semaphore).Release(body.Count)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.CountReply{Prev: prev})
}

// handleSelect replies with the wait status itself. Pending waits complete
// later with a wake frame carrying the cookie.
func handleSelect(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.SelectRequest)
	if len(req.Data)%4 != 0 {
		return result{}, api.ErrInvalidParameter.WithContext("data", len(req.Data))
	}
	handles := make([]api.Handle, len(req.Data)/4)
	for i := range handles {
		handles[i] = api.Handle(binary.LittleEndian.Uint32(req.Data[i*4:]))
	}
	st, err := b.k.Select(c.thread, kernel.SelectRequest{
		Handles: handles,
		Flags:   body.Flags,
		Timeout: api.TimeoutFromMillis(body.TimeoutMs),
		Cookie:  body.Cookie,
		Signal:  api.Handle(body.SignalHandle),
	})
	if err != nil {
		return result{}, err
	}
	return result{status: st}, nil
}

func handleQueueAPC(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.QueueAPCRequest)
	obj, err := c.thread.GetObject(api.Handle(body.Thread), kernel.ThreadSetContext, kernel.ThreadType)
	if err != nil {
		return result{}, err
	}
	defer kernel.Release(obj)
	if err := b.k.QueueAPC(obj.(*kernel.Thread), kernel.APC{Func: body.Func, Args: body.Args}); err != nil {
		return result{}, err
	}
	return ok(nil)
}

func handleGetAPC(_ *Broker, c *conn, _ *protocol.Request) (result, error) {
	apc, found := c.thread.DequeueAPC()
	return ok(&protocol.GetAPCReply{Found: boolU32(found), Func: apc.Func, Args: apc.Args})
}

func boolU32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
