// File: msgqueue/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Window timers. Pending timers are sorted by deadline and the earliest one
// is mirrored into a single reactor timeout; a fired timer waits on the
// expired list until it is retrieved.

package msgqueue

import (
	"container/list"
	"time"

	"github.com/momentics/kbroker/api"
)

// Timer is one window timer.
type Timer struct {
	when   time.Time
	rate   time.Duration
	win    uint32
	msg    uint32
	id     uint32
	lparam uint64

	owner *list.List
	elem  *list.Element
}

// When returns the next deadline.
func (t *Timer) When() time.Time { return t.when }

// ID returns the timer id.
func (t *Timer) ID() uint32 { return t.id }

func (q *Queue) findTimer(win, msg, id uint32) *Timer {
	for _, l := range [...]*list.List{&q.pending, &q.expired} {
		for e := l.Front(); e != nil; e = e.Next() {
			t := e.Value.(*Timer)
			if t.win == win && t.msg == msg && t.id == id {
				return t
			}
		}
	}
	return nil
}

func (q *Queue) unlinkTimer(t *Timer) {
	if t.owner == nil {
		return
	}
	t.owner.Remove(t.elem)
	t.owner, t.elem = nil, nil
	if q.expired.Len() == 0 {
		q.clearBits(QSTimer)
	}
}

// linkTimer inserts t into the pending list after timers with an equal or
// earlier deadline.
func (q *Queue) linkTimer(t *Timer) {
	for e := q.pending.Back(); e != nil; e = e.Prev() {
		if !e.Value.(*Timer).when.After(t.when) {
			t.elem = q.pending.InsertAfter(t, e)
			t.owner = &q.pending
			return
		}
	}
	t.elem = q.pending.PushFront(t)
	t.owner = &q.pending
}

// setNextTimer re-arms the reactor timeout for the earliest pending timer.
func (q *Queue) setNextTimer() {
	r := q.sys.r
	r.RemoveTimeout(q.timeout)
	q.timeout = nil
	if front := q.pending.Front(); front != nil {
		q.timeout = r.AddTimeout(front.Value.(*Timer).when, q.timerFired)
	}
}

func (q *Queue) timerFired() {
	q.timeout = nil
	if front := q.pending.Front(); front != nil {
		t := front.Value.(*Timer)
		q.pending.Remove(front)
		t.elem = q.expired.PushBack(t)
		t.owner = &q.expired
		q.setBits(QSTimer)
	}
	q.setNextTimer()
}

// restartTimer moves a consumed timer back to pending, skipping every period
// that already elapsed so a late consumer sees one message, not a burst.
func (q *Queue) restartTimer(t *Timer) {
	q.unlinkTimer(t)
	now := q.sys.r.Now()
	for !now.Before(t.when) {
		t.when = t.when.Add(t.rate)
	}
	q.linkTimer(t)
	q.setNextTimer()
}

func (q *Queue) findExpiredTimer(f Filter) *Timer {
	for e := q.expired.Front(); e != nil; e = e.Next() {
		t := e.Value.(*Timer)
		if f.match(t.win, t.msg) {
			return t
		}
	}
	return nil
}

// SetTimer creates or replaces a timer. A zero win and id allocates a
// fresh id. Rates below one millisecond are raised to one.
func (s *System) SetTimer(q *Queue, win, msg, id uint32, rate time.Duration, lparam uint64) (uint32, error) {
	if q.dead {
		return 0, api.ErrProcessTerminating
	}
	if msg != WMTimer && msg != WMSysTimer {
		return 0, api.ErrInvalidParameter.WithContext("msg", msg)
	}
	if rate < time.Millisecond {
		rate = time.Millisecond
	}
	if win != 0 || id != 0 {
		if old := q.findTimer(win, msg, id); old != nil {
			q.unlinkTimer(old)
		}
	} else {
		id = q.allocTimerID(msg)
		if id == 0 {
			return 0, api.ErrNoMemory.WithContext("reason", "timer ids exhausted")
		}
	}
	t := &Timer{when: s.r.Now().Add(rate), rate: rate, win: win, msg: msg, id: id, lparam: lparam}
	q.linkTimer(t)
	q.setNextTimer()
	return id, nil
}

// allocTimerID walks ids down from 0x7fff, wrapping above 0x100.
func (q *Queue) allocTimerID(msg uint32) uint32 {
	for i := 0; i < 0x7fff-0x100; i++ {
		id := q.nextTimerID
		q.nextTimerID--
		if q.nextTimerID <= 0x100 {
			q.nextTimerID = 0x7fff
		}
		if q.findTimer(0, msg, id) == nil {
			return id
		}
	}
	return 0
}

// KillTimer removes a timer, expired or not.
func (s *System) KillTimer(q *Queue, win, msg, id uint32) error {
	t := q.findTimer(win, msg, id)
	if t == nil {
		return api.ErrInvalidParameter.WithContext("timer", id)
	}
	q.unlinkTimer(t)
	q.setNextTimer()
	return nil
}

// NextTimer returns the deadline of the earliest pending timer.
func (q *Queue) NextTimer() (time.Time, bool) {
	front := q.pending.Front()
	if front == nil {
		return time.Time{}, false
	}
	return front.Value.(*Timer).when, true
}
