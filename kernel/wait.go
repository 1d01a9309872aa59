// File: kernel/wait.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wait/synchronization engine.

package kernel

import (
	"container/list"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/reactor"
)

// Select flags.
const (
	SelectAll       uint32 = 0x1
	SelectAlertable uint32 = 0x2
)

// WaitEntry records one thread's interest in one object. It is linked into
// the object's wait list and held by the thread's current wait.
type WaitEntry struct {
	thread *Thread
	obj    Object
	elem   *list.Element
}

// Thread returns the waiting thread.
func (e *WaitEntry) Thread() *Thread { return e.thread }

// Object returns the awaited object.
func (e *WaitEntry) Object() Object { return e.obj }

type threadWait struct {
	flags    uint32
	cookie   uint64
	entries  []*WaitEntry
	deadline time.Time // zero for infinite
	timeout  *reactor.TimeoutUser
}

// WaitResult is the outcome of a completed wait.
type WaitResult struct {
	Status    api.Status
	Index     int
	Abandoned bool
}

func waitResult(index int, abandoned bool) WaitResult {
	if abandoned {
		return WaitResult{Status: api.StatusAbandonedWait0 + api.Status(index), Index: index, Abandoned: true}
	}
	return WaitResult{Status: api.StatusWait0 + api.Status(index), Index: index}
}

// SelectRequest describes a wait on up to api.MaxWaitObjects handles.
type SelectRequest struct {
	Handles []api.Handle
	Flags   uint32
	Timeout time.Duration // api.InfiniteTimeout for none
	Cookie  uint64
	// Signal, when non-zero, is signaled before the wait begins.
	Signal api.Handle
}

// Select begins a wait for t. It returns the final status when the wait
// completes synchronously, or api.StatusPending when the result will be
// delivered later through t's waker.
func (k *Kernel) Select(t *Thread, req SelectRequest) (api.Status, error) {
	if t.terminated {
		return 0, api.ErrProcessTerminating
	}
	if len(req.Handles) > api.MaxWaitObjects {
		return 0, api.ErrInvalidParameter.WithContext("count", len(req.Handles))
	}
	if t.wait != nil {
		return 0, api.ErrInvalidParameter.WithContext("reason", "thread already waiting")
	}

	objs := make([]Object, 0, len(req.Handles))
	defer func() {
		for _, o := range objs {
			Release(o)
		}
	}()
	for _, h := range req.Handles {
		obj, err := t.GetObject(h, api.Synchronize, nil)
		if err != nil {
			return 0, err
		}
		objs = append(objs, obj)
	}

	if req.Signal != api.InvalidHandleValue {
		obj, access, err := t.resolve(req.Signal)
		if err != nil {
			return 0, err
		}
		if err := obj.Signal(t, access); err != nil {
			return 0, err
		}
	}

	var deadline time.Time
	if req.Timeout > 0 {
		deadline = k.Now().Add(req.Timeout)
	}
	if err := k.waitOn(t, objs, req.Flags, req.Cookie, deadline); err != nil {
		return 0, err
	}
	if res, ok := k.checkWait(t); ok {
		k.endWait(t)
		return res.Status, nil
	}
	if req.Timeout == 0 {
		k.endWait(t)
		return api.StatusTimeout, nil
	}
	if req.Timeout > 0 {
		w := t.wait
		w.timeout = k.r.AddTimeout(deadline, func() { k.threadTimeout(t, w) })
	}
	return api.StatusPending, nil
}

// waitOn links a wait entry into every object, unwinding on refusal.
func (k *Kernel) waitOn(t *Thread, objs []Object, flags uint32, cookie uint64, deadline time.Time) error {
	w := &threadWait{flags: flags, cookie: cookie, deadline: deadline}
	t.wait = w
	for _, obj := range objs {
		e := &WaitEntry{thread: t, obj: obj}
		if !obj.AddQueue(e) {
			k.endWait(t)
			return api.ErrObjectTypeMismatch.WithContext("type", obj.Type().Name)
		}
		w.entries = append(w.entries, e)
	}
	return nil
}

// checkWait evaluates t's wait and, on success, applies Satisfied.
func (k *Kernel) checkWait(t *Thread) (WaitResult, bool) {
	w := t.wait
	if w == nil {
		return WaitResult{}, false
	}
	if w.flags&SelectAll != 0 {
		all := true
		for _, e := range w.entries {
			if !e.obj.Signaled(t) {
				all = false
			}
		}
		if all {
			abandoned := false
			for _, e := range w.entries {
				if e.obj.Satisfied(t) {
					abandoned = true
				}
			}
			return waitResult(0, abandoned), true
		}
	} else {
		for i, e := range w.entries {
			if !e.obj.Signaled(t) {
				continue
			}
			return waitResult(i, e.obj.Satisfied(t)), true
		}
	}
	if w.flags&SelectAlertable != 0 && len(t.apcs) > 0 {
		return WaitResult{Status: api.StatusUserAPC, Index: -1}, true
	}
	if !w.deadline.IsZero() && !k.Now().Before(w.deadline) {
		return WaitResult{Status: api.StatusTimeout, Index: -1}, true
	}
	return WaitResult{}, false
}

// endWait unlinks every entry of t's wait and cancels its timeout.
func (k *Kernel) endWait(t *Thread) {
	w := t.wait
	if w == nil {
		return
	}
	t.wait = nil
	for _, e := range w.entries {
		e.obj.RemoveQueue(e)
	}
	k.r.RemoveTimeout(w.timeout)
	w.timeout = nil
}

// wakeThread completes t's wait if it is now satisfiable.
func (k *Kernel) wakeThread(t *Thread) bool {
	res, ok := k.checkWait(t)
	if !ok {
		return false
	}
	cookie := t.wait.cookie
	k.endWait(t)
	t.deliver(cookie, res.Status)
	return true
}

func (k *Kernel) threadTimeout(t *Thread, w *threadWait) {
	if t.wait != w {
		return
	}
	w.timeout = nil
	k.log.Debug("wait timed out", zap.Uint32("tid", t.id), zap.Uint64("cookie", w.cookie))
	k.endWait(t)
	t.deliver(w.cookie, api.StatusTimeout)
}

// WakeUp re-checks the waiters of obj in arrival order and completes up to
// max of them; 0 means all. It returns the number of threads woken.
func (k *Kernel) WakeUp(obj Object, max int) int {
	h := obj.Base()
	if h.queue.Len() == 0 {
		return 0
	}
	// snapshot: completing a wait unlinks entries from this list
	waiters := make([]*Thread, 0, h.queue.Len())
	for e := h.queue.Front(); e != nil; e = e.Next() {
		t := e.Value.(*WaitEntry).thread
		if len(waiters) > 0 && waiters[len(waiters)-1] == t {
			continue
		}
		waiters = append(waiters, t)
	}
	woken := 0
	for _, t := range waiters {
		if t.wait == nil {
			continue
		}
		if k.wakeThread(t) {
			woken++
			if max > 0 && woken >= max {
				break
			}
		}
	}
	return woken
}

// Waiting reports whether t has an outstanding wait.
func (t *Thread) Waiting() bool { return t.wait != nil }
