// File: server/handlers_msg.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message queue, message passing and window timer requests.

package server

import (
	"time"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/msgqueue"
	"github.com/momentics/kbroker/protocol"
)

func handleGetMsgQueue(b *Broker, c *conn, _ *protocol.Request) (result, error) {
	q, err := b.msgs.GetQueue(c.thread)
	if err != nil {
		return result{}, err
	}
	h, err := c.thread.Process().AllocHandle(q, api.Synchronize, 0)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.HandleReply{Handle: uint32(h)})
}

func handleSetQueueMask(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.SetQueueMaskRequest)
	q, err := b.msgs.GetQueue(c.thread)
	if err != nil {
		return result{}, err
	}
	wake, changed := q.SetMask(body.WakeMask, body.ChangedMask, body.SkipWait != 0)
	return ok(&protocol.QueueBitsReply{WakeBits: wake, ChangedBits: changed})
}

func handleGetQueueStatus(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.GetQueueStatusRequest)
	q, found := msgqueue.QueueOf(c.thread)
	if !found {
		return ok(&protocol.QueueBitsReply{})
	}
	wake, changed := q.Status(body.Clear != 0)
	return ok(&protocol.QueueBitsReply{WakeBits: wake, ChangedBits: changed})
}

func (b *Broker) threadByID(tid uint32) (*kernel.Thread, error) {
	th, found := b.k.ThreadByID(tid)
	if !found {
		return nil, api.ErrInvalidCID.WithContext("tid", tid)
	}
	return th, nil
}

func handleSendMessage(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.SendMessageRequest)
	to, err := b.threadByID(body.TID)
	if err != nil {
		return result{}, err
	}
	m := &msgqueue.Message{
		Type:   msgqueue.MsgType(body.Type),
		Win:    body.Win,
		Msg:    body.Msg,
		WParam: body.WParam,
		LParam: body.LParam,
		Info:   body.Info,
		Data:   req.Data,
	}
	_, err = b.msgs.Send(c.thread, to, m, msgqueue.SendOptions{
		Timeout:      api.TimeoutFromMillis(body.TimeoutMs),
		Callback:     body.Callback,
		CallbackData: body.CallbackData,
	})
	if err != nil {
		return result{}, err
	}
	b.metrics.Add("messages.sent", 1)
	return ok(nil)
}

func handlePostMessage(b *Broker, _ *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.PostMessageRequest)
	to, err := b.threadByID(body.TID)
	if err != nil {
		return result{}, err
	}
	m := &msgqueue.Message{
		Win:    body.Win,
		Msg:    body.Msg,
		WParam: body.WParam,
		LParam: body.LParam,
		Info:   body.Info,
		Data:   req.Data,
	}
	if err := b.msgs.Post(to, m); err != nil {
		return result{}, err
	}
	b.metrics.Add("messages.posted", 1)
	return ok(nil)
}

func handlePostQuitMessage(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.PostQuitMessageRequest)
	q, err := b.msgs.GetQueue(c.thread)
	if err != nil {
		return result{}, err
	}
	b.msgs.PostQuit(q, body.ExitCode)
	return ok(nil)
}

func handleSendHardwareMessage(b *Broker, _ *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.SendHardwareMessageRequest)
	to, err := b.threadByID(body.TID)
	if err != nil {
		return result{}, err
	}
	m := &msgqueue.Message{
		Win:    body.Win,
		Msg:    body.Msg,
		WParam: body.WParam,
		LParam: body.LParam,
		Info:   body.Info,
		X:      body.X,
		Y:      body.Y,
		Time:   body.Time,
	}
	if err := b.msgs.SendHardware(to, m, body.Cooked != 0); err != nil {
		return result{}, err
	}
	return ok(nil)
}

// handleGetMessage answers api.StatusPending when nothing matches; the
// client then waits on its queue handle.
func handleGetMessage(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.GetMessageRequest)
	q, err := b.msgs.GetQueue(c.thread)
	if err != nil {
		return result{}, err
	}
	f := msgqueue.Filter{Win: body.Win, First: body.First, Last: body.Last}
	m, err := b.msgs.GetMessage(q, f, body.Flags)
	if err != nil {
		return result{}, err
	}
	return okData(&protocol.GetMessageReply{
		Type:   uint32(m.Type),
		Win:    m.Win,
		Msg:    m.Msg,
		X:      m.X,
		Y:      m.Y,
		Time:   m.Time,
		WParam: m.WParam,
		LParam: m.LParam,
		Info:   m.Info,
	}, m.Data)
}

func handleReplyMessage(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.ReplyMessageRequest)
	q, found := msgqueue.QueueOf(c.thread)
	if !found {
		return result{}, api.ErrInvalidParameter.WithContext("reason", "no message queue")
	}
	if err := b.msgs.ReplyMessage(q, body.Result, req.Data, body.Remove != 0); err != nil {
		return result{}, err
	}
	return ok(nil)
}

func handleGetMessageReply(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.GetMessageReplyRequest)
	q, found := msgqueue.QueueOf(c.thread)
	if !found {
		return result{}, api.ErrAccessDenied.WithContext("reason", "no message queue")
	}
	reply, err := b.msgs.GetMessageReply(q, body.Cancel != 0)
	if err != nil {
		return result{}, err
	}
	return okData(&protocol.MessageReplyReply{Replied: boolU32(reply.Replied), Result: reply.Value}, reply.Data)
}

func handleSetWinTimer(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.SetWinTimerRequest)
	q, err := b.msgs.GetQueue(c.thread)
	if err != nil {
		return result{}, err
	}
	rate := time.Duration(body.RateMs) * time.Millisecond
	id, err := b.msgs.SetTimer(q, body.Win, body.Msg, body.ID, rate, body.LParam)
	if err != nil {
		return result{}, err
	}
	return ok(&protocol.SetWinTimerReply{ID: id})
}

func handleKillWinTimer(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.KillWinTimerRequest)
	q, found := msgqueue.QueueOf(c.thread)
	if !found {
		return result{}, api.ErrInvalidParameter.WithContext("reason", "no message queue")
	}
	if err := b.msgs.KillTimer(q, body.Win, body.Msg, body.ID); err != nil {
		return result{}, err
	}
	return ok(nil)
}

func handleIncPaintCount(b *Broker, c *conn, req *protocol.Request) (result, error) {
	body := req.Body.(*protocol.IncPaintCountRequest)
	q, err := b.msgs.GetQueue(c.thread)
	if err != nil {
		return result{}, err
	}
	b.msgs.IncPaintCount(q, body.Win, int(body.Delta))
	return ok(nil)
}
