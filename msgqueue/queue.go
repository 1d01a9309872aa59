// File: msgqueue/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The per-thread queue object, its wake bits and teardown.

package msgqueue

import (
	"container/list"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/reactor"
)

// QueueType describes message queue objects.
var QueueType = &kernel.Type{Name: "MsgQueue"}

// System owns the message queues of one kernel.
type System struct {
	k   *kernel.Kernel
	r   *reactor.Reactor
	log *zap.Logger

	results int
}

// New attaches a message queue system to k.
func New(k *kernel.Kernel) *System {
	return &System{k: k, r: k.Reactor(), log: k.Logger().Named("msgqueue")}
}

// LiveResults returns the number of message results not yet freed.
func (s *System) LiveResults() int { return s.results }

type paintEntry struct {
	win   uint32
	count int
}

// Queue is the message queue of one thread.
type Queue struct {
	kernel.Header
	sys    *System
	thread *kernel.Thread

	wakeBits    uint32
	changedBits uint32
	wakeMask    uint32
	changedMask uint32

	lists    [numLists]list.List // of *Message
	lastMsg  *Message
	lastList listKind

	sendResult      *Result // stack, most recent first
	recvResult      *Result
	callbackResults []*Result

	quit     bool
	exitCode uint32

	paint []paintEntry

	pending     list.List // of *Timer, ascending deadline
	expired     list.List // of *Timer
	nextTimerID uint32
	timeout     *reactor.TimeoutUser

	dead bool
}

// GetQueue returns t's queue, creating it on first use.
func (s *System) GetQueue(t *kernel.Thread) (*Queue, error) {
	if t.Terminated() {
		return nil, api.ErrProcessTerminating
	}
	if tq := t.Queue(); tq != nil {
		q, ok := tq.(*Queue)
		if !ok {
			return nil, api.ErrObjectTypeMismatch
		}
		return q, nil
	}
	q := &Queue{sys: s, thread: t, nextTimerID: 0x7fff}
	for i := range q.lists {
		q.lists[i].Init()
	}
	q.pending.Init()
	q.expired.Init()
	s.k.Init(q)
	t.SetQueue(q)
	s.log.Debug("queue created", zap.Uint32("tid", t.ID()))
	return q, nil
}

// QueueOf returns t's queue if it already has one.
func QueueOf(t *kernel.Thread) (*Queue, bool) {
	q, ok := t.Queue().(*Queue)
	return q, ok
}

// Type implements kernel.Object.
func (q *Queue) Type() *kernel.Type { return QueueType }

// Thread returns the owning thread, nil after it exited.
func (q *Queue) Thread() *kernel.Thread { return q.thread }

// Dump implements kernel.Object.
func (q *Queue) Dump(w io.Writer) {
	q.Header.Dump(w)
	fmt.Fprintf(w, " wake=%04x changed=%04x mask=%04x/%04x sent=%d posted=%d hw=%d timers=%d",
		q.wakeBits, q.changedBits, q.wakeMask, q.changedMask,
		q.lists[sentList].Len(), q.lists[postedList].Len(),
		q.lists[cookedHWList].Len()+q.lists[rawHWList].Len(),
		q.pending.Len()+q.expired.Len())
}

// AddQueue implements kernel.Object: queues are waitable.
func (q *Queue) AddQueue(e *kernel.WaitEntry) bool { return q.Enqueue(e) }

// Signaled implements kernel.Object.
func (q *Queue) Signaled(*kernel.Thread) bool {
	return q.wakeBits&q.wakeMask != 0 || q.changedBits&q.changedMask != 0
}

// Satisfied implements kernel.Object: a successful wait clears both masks.
func (q *Queue) Satisfied(*kernel.Thread) bool {
	q.wakeMask = 0
	q.changedMask = 0
	return false
}

// Destroy implements kernel.Object.
func (q *Queue) Destroy() { q.cleanup() }

// ThreadExit implements kernel.ThreadQueue.
func (q *Queue) ThreadExit() { q.cleanup() }

func (q *Queue) setBits(bits uint32) {
	q.wakeBits |= bits
	q.changedBits |= bits
	if q.Signaled(nil) {
		q.sys.k.WakeUp(q, 0)
	}
}

func (q *Queue) clearBits(bits uint32) {
	q.wakeBits &^= bits
	q.changedBits &^= bits
}

// SetMask installs the wake and changed masks and returns the current bits.
// A queue already signaled either satisfies immediately (skipWait) or wakes
// its waiters.
func (q *Queue) SetMask(wakeMask, changedMask uint32, skipWait bool) (wake, changed uint32) {
	q.wakeMask = wakeMask
	q.changedMask = changedMask
	if q.Signaled(nil) {
		if skipWait {
			q.Satisfied(nil)
		} else {
			q.sys.k.WakeUp(q, 0)
		}
	}
	return q.wakeBits, q.changedBits
}

// Status returns the wake and changed bits, optionally clearing the latter.
func (q *Queue) Status(clearChanged bool) (wake, changed uint32) {
	wake, changed = q.wakeBits, q.changedBits
	if clearChanged {
		q.changedBits = 0
	}
	return wake, changed
}

func (q *Queue) appendMessage(kind listKind, m *Message) {
	m.elem = q.lists[kind].PushBack(m)
}

// removeMessage unlinks m and keeps the input bits in step with the lists.
func (q *Queue) removeMessage(kind listKind, m *Message) {
	if m.elem == nil {
		return
	}
	q.lists[kind].Remove(m.elem)
	m.elem = nil
	if q.lastMsg == m {
		q.lastMsg = nil
	}
	switch kind {
	case sentList:
		if q.lists[sentList].Len() == 0 {
			q.clearBits(QSSendMessage)
		}
	case postedList:
		if q.lists[postedList].Len() == 0 && !q.quit {
			q.clearBits(QSPostMessage)
		}
	case cookedHWList, rawHWList:
		if q.lists[cookedHWList].Len() == 0 && q.lists[rawHWList].Len() == 0 {
			q.clearBits(qsInput)
		}
	}
}

// cleanup tears the queue down: pending results are answered or freed,
// messages dropped and timers cancelled. It runs once.
func (q *Queue) cleanup() {
	if q.dead {
		return
	}
	q.dead = true
	s := q.sys

	for res := q.sendResult; res != nil; {
		next := res.sendNext
		res.sendNext = nil
		res.sender = nil
		if res.receiver == nil {
			s.freeResult(res)
		}
		res = next
	}
	q.sendResult = nil
	for _, res := range q.callbackResults {
		res.sender = nil
		if res.receiver == nil {
			s.freeResult(res)
		}
	}
	q.callbackResults = nil
	for q.recvResult != nil {
		s.replyMessage(q, 0, api.ErrAccessDenied, true, nil)
	}

	for kind := range q.lists {
		l := &q.lists[kind]
		for e := l.Front(); e != nil; e = l.Front() {
			m := e.Value.(*Message)
			l.Remove(e)
			m.elem = nil
			s.freeMessage(m)
		}
	}
	q.lastMsg = nil
	q.paint = nil
	q.pending.Init()
	q.expired.Init()
	s.r.RemoveTimeout(q.timeout)
	q.timeout = nil
	q.wakeBits, q.changedBits = 0, 0
	q.thread = nil
}
