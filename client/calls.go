// File: client/calls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed wrappers over Call for the common requests.

package client

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/msgqueue"
	"github.com/momentics/kbroker/protocol"
)

// wakeAll is the changed mask WaitMessage installs: anything queued since
// the last GetMessage.
const wakeAll = msgqueue.QSKey | msgqueue.QSMouseMove | msgqueue.QSMouseButton |
	msgqueue.QSPostMessage | msgqueue.QSTimer | msgqueue.QSPaint |
	msgqueue.QSSendMessage | msgqueue.QSHotkey

func flag(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// CreateEvent creates or opens a named event with full access.
func (c *Client) CreateEvent(ctx context.Context, name string, manual, initial bool) (api.Handle, bool, error) {
	var rep protocol.CreateReply
	_, _, err := c.Call(ctx, protocol.CodeCreateEvent, &protocol.CreateEventRequest{
		Access:       kernel.EventAllAccess,
		ManualReset:  flag(manual),
		InitialState: flag(initial),
	}, []byte(name), &rep)
	return api.Handle(rep.Handle), rep.Existed != 0, err
}

// OpenEvent opens an existing named event.
func (c *Client) OpenEvent(ctx context.Context, name string, access uint32) (api.Handle, error) {
	var rep protocol.HandleReply
	_, _, err := c.Call(ctx, protocol.CodeOpenEvent, &protocol.OpenNamedRequest{Access: access}, []byte(name), &rep)
	return api.Handle(rep.Handle), err
}

// SetEvent signals an event.
func (c *Client) SetEvent(ctx context.Context, h api.Handle) error {
	_, _, err := c.Call(ctx, protocol.CodeEventOp, &protocol.EventOpRequest{Handle: uint32(h), Op: protocol.EventSet}, nil, nil)
	return err
}

// ResetEvent clears an event.
func (c *Client) ResetEvent(ctx context.Context, h api.Handle) error {
	_, _, err := c.Call(ctx, protocol.CodeEventOp, &protocol.EventOpRequest{Handle: uint32(h), Op: protocol.EventReset}, nil, nil)
	return err
}

// CloseHandle closes h in the client's process.
func (c *Client) CloseHandle(ctx context.Context, h api.Handle) error {
	_, _, err := c.Call(ctx, protocol.CodeCloseHandle, &protocol.CloseHandleRequest{Handle: uint32(h)}, nil, nil)
	return err
}

// Wait waits on handles and returns the final wait status: a wait index,
// api.StatusTimeout, api.StatusUserAPC or an abandoned index.
func (c *Client) Wait(ctx context.Context, handles []api.Handle, flags uint32, timeout time.Duration) (api.Status, error) {
	data := make([]byte, 0, 4*len(handles))
	for _, h := range handles {
		data = binary.LittleEndian.AppendUint32(data, uint32(h))
	}
	c.mu.Lock()
	c.cookie++
	cookie := c.cookie
	c.mu.Unlock()
	st, _, err := c.Call(ctx, protocol.CodeSelect, &protocol.SelectRequest{
		Flags:     flags,
		Cookie:    cookie,
		TimeoutMs: api.MillisFromTimeout(timeout),
	}, data, nil)
	if err != nil || st != api.StatusPending {
		return st, err
	}
	return c.awaitWake(ctx, cookie)
}

// MessageQueue returns a waitable handle to the client's message queue.
func (c *Client) MessageQueue(ctx context.Context) (api.Handle, error) {
	var rep protocol.HandleReply
	_, _, err := c.Call(ctx, protocol.CodeGetMsgQueue, &protocol.Empty{}, nil, &rep)
	return api.Handle(rep.Handle), err
}

// SetQueueMask installs wake and changed masks and returns the current bits.
func (c *Client) SetQueueMask(ctx context.Context, wake, changed uint32) (uint32, uint32, error) {
	var rep protocol.QueueBitsReply
	_, _, err := c.Call(ctx, protocol.CodeSetQueueMask, &protocol.SetQueueMaskRequest{WakeMask: wake, ChangedMask: changed}, nil, &rep)
	return rep.WakeBits, rep.ChangedBits, err
}

// PostMessage posts msg to thread tid.
func (c *Client) PostMessage(ctx context.Context, tid, win, msg uint32, wparam, lparam uint64) error {
	_, _, err := c.Call(ctx, protocol.CodePostMessage, &protocol.PostMessageRequest{
		TID: tid, Win: win, Msg: msg, WParam: wparam, LParam: lparam,
	}, nil, nil)
	return err
}

// SendMessage queues a sent message on thread tid; the reply is collected
// with MessageReply.
func (c *Client) SendMessage(ctx context.Context, tid uint32, m msgqueue.Message, timeout time.Duration) error {
	typ := m.Type
	if typ == 0 {
		typ = msgqueue.MsgSend
	}
	_, _, err := c.Call(ctx, protocol.CodeSendMessage, &protocol.SendMessageRequest{
		TID:       tid,
		Type:      uint32(typ),
		Win:       m.Win,
		Msg:       m.Msg,
		WParam:    m.WParam,
		LParam:    m.LParam,
		Info:      m.Info,
		TimeoutMs: api.MillisFromTimeout(timeout),
	}, m.Data, nil)
	return err
}

// GetMessage retrieves the next message matching f. It returns
// api.ErrPending when the queue has nothing for f.
func (c *Client) GetMessage(ctx context.Context, f msgqueue.Filter, flags uint32) (msgqueue.Message, error) {
	var rep protocol.GetMessageReply
	st, data, err := c.Call(ctx, protocol.CodeGetMessage, &protocol.GetMessageRequest{
		Flags: flags, Win: f.Win, First: f.First, Last: f.Last,
	}, nil, &rep)
	if err != nil {
		return msgqueue.Message{}, err
	}
	if st == api.StatusPending {
		return msgqueue.Message{}, api.ErrPending
	}
	return msgqueue.Message{
		Type:   msgqueue.MsgType(rep.Type),
		Win:    rep.Win,
		Msg:    rep.Msg,
		WParam: rep.WParam,
		LParam: rep.LParam,
		Info:   rep.Info,
		X:      rep.X,
		Y:      rep.Y,
		Time:   rep.Time,
		Data:   data,
	}, nil
}

// WaitMessage blocks until a message matching f is available and returns
// it, removing it when flags asks so.
func (c *Client) WaitMessage(ctx context.Context, q api.Handle, f msgqueue.Filter, flags uint32) (msgqueue.Message, error) {
	for {
		m, err := c.GetMessage(ctx, f, flags)
		if !errors.Is(err, api.ErrPending) {
			return m, err
		}
		if _, _, err := c.SetQueueMask(ctx, 0, wakeAll); err != nil {
			return msgqueue.Message{}, err
		}
		if _, err := c.Wait(ctx, []api.Handle{q}, 0, api.InfiniteTimeout); err != nil {
			return msgqueue.Message{}, err
		}
	}
}

// ReplyMessage answers the sent message being processed.
func (c *Client) ReplyMessage(ctx context.Context, result uint64, data []byte) error {
	_, _, err := c.Call(ctx, protocol.CodeReplyMessage, &protocol.ReplyMessageRequest{Remove: 1, Result: result}, data, nil)
	return err
}

// MessageReply polls the reply to the innermost message this client sent.
// It returns api.ErrPending while the receiver has not answered.
func (c *Client) MessageReply(ctx context.Context, cancel bool) (msgqueue.Reply, error) {
	var rep protocol.MessageReplyReply
	st, data, err := c.Call(ctx, protocol.CodeGetMessageReply, &protocol.GetMessageReplyRequest{Cancel: flag(cancel)}, nil, &rep)
	if err != nil {
		return msgqueue.Reply{}, err
	}
	switch st {
	case api.StatusPending:
		return msgqueue.Reply{}, api.ErrPending
	case api.StatusTimeout:
		return msgqueue.Reply{Replied: true}, api.ErrTimeout
	}
	return msgqueue.Reply{Replied: rep.Replied != 0, Value: rep.Result, Data: data}, nil
}

// AwaitReply blocks until the innermost sent message is answered, or its
// timeout expires, and returns the reply.
func (c *Client) AwaitReply(ctx context.Context, q api.Handle) (msgqueue.Reply, error) {
	for {
		reply, err := c.MessageReply(ctx, false)
		if !errors.Is(err, api.ErrPending) {
			return reply, err
		}
		if _, _, err := c.SetQueueMask(ctx, msgqueue.QSSMResult, 0); err != nil {
			return msgqueue.Reply{}, err
		}
		if _, err := c.Wait(ctx, []api.Handle{q}, 0, api.InfiniteTimeout); err != nil {
			return msgqueue.Reply{}, err
		}
	}
}

// SetTimer starts a window timer and returns its id.
func (c *Client) SetTimer(ctx context.Context, win, id uint32, rate time.Duration) (uint32, error) {
	var rep protocol.SetWinTimerReply
	_, _, err := c.Call(ctx, protocol.CodeSetWinTimer, &protocol.SetWinTimerRequest{
		Win: win, Msg: msgqueue.WMTimer, ID: id, RateMs: uint32(rate / time.Millisecond),
	}, nil, &rep)
	return rep.ID, err
}

// KillTimer stops a window timer.
func (c *Client) KillTimer(ctx context.Context, win, id uint32) error {
	_, _, err := c.Call(ctx, protocol.CodeKillWinTimer, &protocol.KillWinTimerRequest{Win: win, Msg: msgqueue.WMTimer, ID: id}, nil, nil)
	return err
}
