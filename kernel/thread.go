// File: kernel/thread.go
// Author: momentics <momentics@gmail.com>
//
// Thread bookkeeping: wait state, owned mutexes, user APCs and message queue.

package kernel

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
)

// Thread access rights.
const (
	ThreadTerminate        uint32 = 0x0001
	ThreadSetContext       uint32 = 0x0010
	ThreadQueryInformation uint32 = 0x0040
	ThreadAllAccess               = api.StandardRightsRequired | api.Synchronize | 0xffff
)

// ThreadType describes thread objects.
var ThreadType = &Type{Name: "Thread"}

var threadMapping = GenericMapping{
	Read:    api.ReadControl | ThreadQueryInformation,
	Write:   api.ReadControl | ThreadTerminate | ThreadSetContext,
	Execute: api.ReadControl | api.Synchronize,
	All:     ThreadAllAccess,
}

// Waker receives the completion of a wait that returned api.StatusPending.
type Waker func(cookie uint64, status api.Status)

// ThreadQueue is the per-thread message queue. The thread owns one
// reference and calls ThreadExit when it dies.
type ThreadQueue interface {
	Object
	ThreadExit()
}

// APC is a queued user asynchronous procedure call.
type APC struct {
	Func uint64
	Args [3]uint64
}

// Thread is one client thread; a connection to the broker represents one.
type Thread struct {
	Header
	id         uint32
	process    *Process
	wait       *threadWait
	waker      Waker
	mutexes    []*Mutex
	apcs       []APC
	queue      ThreadQueue
	terminated bool
	exitCode   uint32
}

// CreateThread adds a thread to p. The caller owns one reference; the
// thread keeps its process alive.
func (k *Kernel) CreateThread(p *Process) (*Thread, error) {
	if p.terminated {
		return nil, api.ErrProcessTerminating
	}
	t := &Thread{id: k.allocID(), process: Grab(p)}
	k.Init(t)
	p.threads = append(p.threads, t)
	p.running++
	k.threads[t.id] = t
	k.log.Debug("thread created", zap.Uint32("tid", t.id), zap.Uint32("pid", p.id))
	return t, nil
}

// Type implements Object.
func (t *Thread) Type() *Type { return ThreadType }

// ID returns the thread id.
func (t *Thread) ID() uint32 { return t.id }

// Process returns the owning process.
func (t *Thread) Process() *Process { return t.process }

// Terminated reports whether the thread has exited.
func (t *Thread) Terminated() bool { return t.terminated }

// ExitCode returns the exit code once terminated.
func (t *Thread) ExitCode() uint32 { return t.exitCode }

// SetWaker installs the completion callback for pending waits.
func (t *Thread) SetWaker(w Waker) { t.waker = w }

// Queue returns the thread's message queue, if created.
func (t *Thread) Queue() ThreadQueue { return t.queue }

// SetQueue hands a queue reference to the thread.
func (t *Thread) SetQueue(q ThreadQueue) {
	if t.queue != nil {
		Release(t.queue)
	}
	t.queue = q
}

func (t *Thread) deliver(cookie uint64, status api.Status) {
	if t.waker != nil {
		t.waker(cookie, status)
	}
}

// Dump implements Object.
func (t *Thread) Dump(w io.Writer) {
	t.Header.Dump(w)
	fmt.Fprintf(w, " tid=%04x pid=%04x waiting=%v terminated=%v", t.id, t.process.id, t.wait != nil, t.terminated)
}

// AddQueue implements Object.
func (t *Thread) AddQueue(e *WaitEntry) bool { return t.Enqueue(e) }

// Signaled implements Object: a thread is signaled once terminated.
func (t *Thread) Signaled(*Thread) bool { return t.terminated }

// MapAccess implements Object.
func (t *Thread) MapAccess(access uint32) uint32 { return threadMapping.Map(access) }

// Destroy implements Object.
func (t *Thread) Destroy() {
	Release(t.process)
}

// QueueAPC queues a user APC and wakes t if it waits alertably.
func (k *Kernel) QueueAPC(t *Thread, apc APC) error {
	if t.terminated {
		return api.ErrProcessTerminating
	}
	t.apcs = append(t.apcs, apc)
	if t.wait != nil && t.wait.flags&SelectAlertable != 0 {
		k.wakeThread(t)
	}
	return nil
}

// DequeueAPC pops the oldest pending user APC.
func (t *Thread) DequeueAPC() (APC, bool) {
	if len(t.apcs) == 0 {
		return APC{}, false
	}
	apc := t.apcs[0]
	t.apcs = t.apcs[1:]
	return apc, true
}

// KillThread terminates t: owned mutexes are abandoned, any wait is
// cancelled without a wake, the message queue is torn down and waiters on
// t are released. The last thread of a process ends the process.
func (k *Kernel) KillThread(t *Thread, exitCode uint32) {
	if t.terminated {
		return
	}
	Grab(t)
	defer Release(t)

	t.terminated = true
	t.exitCode = exitCode
	k.abandonMutexes(t)
	k.endWait(t)
	t.apcs = nil
	t.waker = nil
	if q := t.queue; q != nil {
		t.queue = nil
		q.ThreadExit()
		Release(q)
	}
	delete(k.threads, t.id)
	k.log.Debug("thread exited", zap.Uint32("tid", t.id), zap.Uint32("exit_code", exitCode))
	k.WakeUp(t, 0)

	p := t.process
	for i, pt := range p.threads {
		if pt == t {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			break
		}
	}
	p.running--
	if p.running == 0 {
		p.exitCode = exitCode
		k.processExit(p)
	}
}

// OpenThread returns a handle in caller's process to the thread id.
func (k *Kernel) OpenThread(caller *Process, id uint32, access, attrs uint32) (api.Handle, error) {
	t, ok := k.threads[id]
	if !ok {
		return api.InvalidHandleValue, api.ErrInvalidCID.WithContext("tid", id)
	}
	return caller.AllocHandle(t, access, attrs)
}
