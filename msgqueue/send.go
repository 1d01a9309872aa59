// File: msgqueue/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sent messages and their results.

package msgqueue

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/reactor"
)

// Result is the rendezvous between a sender waiting for a reply and the
// receiver processing the message. It lives until both sides let go.
type Result struct {
	sendNext *Result
	recvNext *Result
	sender   *Queue
	receiver *Queue
	msg      *Message // set until the receiver takes the message
	callback *Message // posted back to the sender instead of a reply

	replied bool
	err     error
	value   uint64
	data    []byte

	timeout *reactor.TimeoutUser
	freed   bool
}

// Replied reports whether a reply or timeout has been stored.
func (r *Result) Replied() bool { return r.replied }

// Reply is what GetMessageReply hands back to the sender.
type Reply struct {
	Replied bool
	Value   uint64
	Data    []byte
}

// SendOptions tunes Send.
type SendOptions struct {
	// Timeout bounds the wait for a reply; api.InfiniteTimeout disables it.
	Timeout time.Duration
	// Callback and CallbackData are returned in the MsgCallbackResult of a
	// MsgCallback message.
	Callback     uint64
	CallbackData uint64
}

// Send queues m on to's sent list. MsgSend and MsgCallback messages get a
// Result; a MsgSend result is pushed on the sender's result stack and the
// sender polls it with GetMessageReply.
func (s *System) Send(from, to *kernel.Thread, m *Message, opts SendOptions) (*Result, error) {
	switch m.Type {
	case MsgSend, MsgNotify, MsgCallback:
	default:
		return nil, api.ErrInvalidParameter.WithContext("type", m.Type.String())
	}
	recv, ok := QueueOf(to)
	if !ok || recv.dead {
		return nil, api.ErrInvalidParameter.WithContext("tid", to.ID())
	}
	var res *Result
	if m.Type != MsgNotify {
		if from == nil {
			return nil, api.ErrInvalidParameter
		}
		send, err := s.GetQueue(from)
		if err != nil {
			return nil, err
		}
		res = s.allocResult(send, recv, m, opts)
	}
	m.result = res
	if m.Time == 0 {
		m.Time = s.tick()
	}
	recv.appendMessage(sentList, m)
	recv.setBits(QSSendMessage)
	return res, nil
}

func (s *System) allocResult(send, recv *Queue, m *Message, opts SendOptions) *Result {
	res := &Result{sender: send, receiver: recv, msg: m}
	s.results++
	if m.Type == MsgCallback {
		res.callback = &Message{
			Type:   MsgCallbackResult,
			Win:    m.Win,
			Msg:    m.Msg,
			WParam: opts.Callback,
			LParam: opts.CallbackData,
		}
		send.callbackResults = append(send.callbackResults, res)
	} else {
		res.sendNext = send.sendResult
		send.sendResult = res
	}
	if opts.Timeout >= 0 {
		res.timeout = s.r.AddTimeout(s.r.Now().Add(opts.Timeout), func() { s.resultTimeout(res) })
	}
	return res
}

func (s *System) cancelResultTimeout(res *Result) {
	s.r.RemoveTimeout(res.timeout)
	res.timeout = nil
}

func (s *System) freeResult(res *Result) {
	if res.freed {
		s.log.DPanic("result freed twice")
		return
	}
	s.cancelResultTimeout(res)
	res.freed = true
	res.data = nil
	res.callback = nil
	s.results--
}

// resultTimeout runs when the sender stops waiting. A message nobody took
// yet is pulled back from the receiver.
func (s *System) resultTimeout(res *Result) {
	res.timeout = nil
	if m := res.msg; m != nil {
		res.msg = nil
		m.result = nil
		if recv := res.receiver; recv != nil {
			recv.removeMessage(sentList, m)
		}
		res.receiver = nil
		if res.sender == nil {
			s.freeResult(res)
			return
		}
	}
	s.storeResult(res, 0, api.ErrTimeout, nil)
}

// storeResult records the outcome once and notifies the sender.
func (s *System) storeResult(res *Result, value uint64, err error, data []byte) {
	if res.replied {
		return
	}
	res.replied = true
	res.value = value
	res.err = err
	if len(data) > 0 {
		res.data = append([]byte(nil), data...)
	}
	s.cancelResultTimeout(res)

	send := res.sender
	if send == nil {
		return
	}
	if cb := res.callback; cb != nil {
		res.callback = nil
		cb.Info = value
		cb.Time = s.tick()
		send.removeCallbackResult(res)
		res.sender = nil
		send.appendMessage(sentList, cb)
		send.setBits(QSSendMessage)
		if res.receiver == nil {
			s.freeResult(res)
		}
		return
	}
	send.setBits(QSSMResult)
}

func (q *Queue) removeCallbackResult(res *Result) {
	for i, r := range q.callbackResults {
		if r == res {
			q.callbackResults = append(q.callbackResults[:i], q.callbackResults[i+1:]...)
			return
		}
	}
}

// freeMessage drops a message that will never be processed. A sender still
// listening is told so with ErrAccessDenied.
func (s *System) freeMessage(m *Message) {
	res := m.result
	if res == nil {
		return
	}
	m.result = nil
	res.msg = nil
	res.receiver = nil
	if res.sender != nil {
		s.storeResult(res, 0, api.ErrAccessDenied, nil)
		return
	}
	s.freeResult(res)
}

// receiveSent moves a sent message from the list to the receiver's result
// stack and returns it.
func (s *System) receiveSent(q *Queue, m *Message) Message {
	q.removeMessage(sentList, m)
	out := m.detach()
	if res := m.result; res != nil {
		m.result = nil
		res.msg = nil
		res.recvNext = q.recvResult
		q.recvResult = res
	}
	return out
}

// replyMessage answers the message on top of q's receive stack. remove
// pops it; an early reply leaves it there so a later remove finishes it.
func (s *System) replyMessage(q *Queue, value uint64, err error, remove bool, data []byte) {
	res := q.recvResult
	if remove {
		q.recvResult = res.recvNext
		res.recvNext = nil
		res.receiver = nil
		if res.sender == nil {
			s.freeResult(res)
			return
		}
	}
	if res.sender != nil {
		s.storeResult(res, value, err, data)
	}
}

// ReplyMessage answers the message q is currently processing.
func (s *System) ReplyMessage(q *Queue, value uint64, data []byte, remove bool) error {
	if q.recvResult == nil {
		return api.ErrInvalidParameter.WithContext("reason", "no message to reply to")
	}
	s.replyMessage(q, value, nil, remove, data)
	return nil
}

// GetMessageReply returns the outcome of the most recent send from q.
// Without cancel it reports api.ErrPending until a reply or timeout is
// stored; with cancel the sender gives up and the result is detached.
// Each result is returned exactly once.
func (s *System) GetMessageReply(q *Queue, cancel bool) (Reply, error) {
	res := q.sendResult
	if res == nil {
		return Reply{}, api.ErrAccessDenied.WithContext("reason", "no pending send")
	}
	if !res.replied && !cancel {
		return Reply{}, api.ErrPending
	}
	q.sendResult = res.sendNext
	res.sendNext = nil
	res.sender = nil

	out := Reply{Replied: res.replied, Value: res.value, Data: res.data}
	err := res.err
	res.data = nil
	if res.receiver == nil {
		s.freeResult(res)
	}
	if next := q.sendResult; next == nil || !next.replied {
		q.clearBits(QSSMResult)
	}
	if !out.Replied {
		s.log.Debug("send cancelled", zap.Uint32("tid", q.threadID()))
	}
	return out, err
}

// tick is the millisecond message time of the reactor clock.
func (s *System) tick() uint32 {
	return uint32(s.r.Now().UnixMilli())
}

func (q *Queue) threadID() uint32 {
	if q.thread == nil {
		return 0
	}
	return q.thread.ID()
}
