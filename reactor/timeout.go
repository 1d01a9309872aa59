// File: reactor/timeout.go
// Author: momentics <momentics@gmail.com>
//
// Sorted one-shot timeout list.

package reactor

import (
	"container/list"
	"time"
)

// TimeoutUser is a one-shot, cancellable, deadline-ordered callback.
type TimeoutUser struct {
	when time.Time
	fn   func()
	elem *list.Element
}

// When returns the absolute deadline.
func (t *TimeoutUser) When() time.Time { return t.when }

// Pending reports whether t is still armed.
func (t *TimeoutUser) Pending() bool { return t != nil && t.elem != nil }

// AddTimeout arms fn to run once at when. Users with equal deadlines fire in
// insertion order.
func (r *Reactor) AddTimeout(when time.Time, fn func()) *TimeoutUser {
	t := &TimeoutUser{when: when, fn: fn}
	// walk back from the tail: most timeouts are appended near the end
	for e := r.timeouts.Back(); e != nil; e = e.Prev() {
		if !e.Value.(*TimeoutUser).when.After(when) {
			t.elem = r.timeouts.InsertAfter(t, e)
			return t
		}
	}
	t.elem = r.timeouts.PushFront(t)
	return t
}

// AddTimeoutAfter arms fn to run d from now.
func (r *Reactor) AddTimeoutAfter(d time.Duration, fn func()) *TimeoutUser {
	return r.AddTimeout(r.clock.Now().Add(d), fn)
}

// RemoveTimeout cancels t. Removing a fired or already removed user is a no-op.
func (r *Reactor) RemoveTimeout(t *TimeoutUser) {
	if t == nil || t.elem == nil {
		return
	}
	r.timeouts.Remove(t.elem)
	t.elem = nil
}

// NextTimeout returns the earliest armed deadline.
func (r *Reactor) NextTimeout() (time.Time, bool) {
	front := r.timeouts.Front()
	if front == nil {
		return time.Time{}, false
	}
	return front.Value.(*TimeoutUser).when, true
}

// PendingTimeouts returns the number of armed timeout users.
func (r *Reactor) PendingTimeouts() int {
	return r.timeouts.Len()
}

// fire unlinks t before running it so the callback may re-arm freely.
func (r *Reactor) fire(t *TimeoutUser) {
	r.timeouts.Remove(t.elem)
	t.elem = nil
	r.safeCall(func() { t.fn() })
}
