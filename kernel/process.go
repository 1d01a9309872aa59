// File: kernel/process.go
// Author: momentics <momentics@gmail.com>
//
// Thin process bookkeeping: identity, handle table, thread membership.

package kernel

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
)

// Process access rights.
const (
	ProcessTerminate        uint32 = 0x0001
	ProcessDupHandle        uint32 = 0x0040
	ProcessQueryInformation uint32 = 0x0400
	ProcessAllAccess               = api.StandardRightsRequired | api.Synchronize | 0xffff
)

// ProcessType describes process objects.
var ProcessType = &Type{Name: "Process"}

var _ Object = (*Process)(nil)

var processMapping = GenericMapping{
	Read:    api.ReadControl | ProcessQueryInformation,
	Write:   api.ReadControl | ProcessTerminate,
	Execute: api.ReadControl | api.Synchronize,
	All:     ProcessAllAccess,
}

// Process is a client process: a handle table plus its threads.
type Process struct {
	Header
	id         uint32
	parentID   uint32
	handles    *Table
	threads    []*Thread
	running    int
	terminated bool
	exitCode   uint32
	started    time.Time
	ended      time.Time
}

// CreateProcess creates a process with no threads. With inherit set, every
// inheritable handle of parent is copied. The caller owns one reference.
func (k *Kernel) CreateProcess(parent *Process, inherit bool) (*Process, error) {
	p := &Process{id: k.allocID(), started: k.Now()}
	k.Init(p)
	p.handles = newTable(k, p)
	if parent != nil {
		p.parentID = parent.id
		if inherit {
			if err := p.handles.inherit(parent.handles); err != nil {
				p.handles.Destroy()
				Release(p)
				return nil, err
			}
		}
	}
	k.processes[p.id] = p
	k.log.Debug("process created", zap.Uint32("pid", p.id), zap.Uint32("parent", p.parentID))
	return p, nil
}

// Type implements Object.
func (p *Process) Type() *Type { return ProcessType }

// ID returns the process id.
func (p *Process) ID() uint32 { return p.id }

// ParentID returns the creator's id, 0 for none.
func (p *Process) ParentID() uint32 { return p.parentID }

// Terminated reports whether every thread has exited.
func (p *Process) Terminated() bool { return p.terminated }

// ExitCode returns the exit code once terminated.
func (p *Process) ExitCode() uint32 { return p.exitCode }

// ThreadCount returns the number of running threads.
func (p *Process) ThreadCount() int { return p.running }

// Dump implements Object.
func (p *Process) Dump(w io.Writer) {
	p.Header.Dump(w)
	fmt.Fprintf(w, " pid=%04x threads=%d handles=%d terminated=%v", p.id, p.running, p.handles.Count(), p.terminated)
}

// AddQueue implements Object.
func (p *Process) AddQueue(e *WaitEntry) bool { return p.Enqueue(e) }

// Signaled implements Object: a process is signaled once terminated.
func (p *Process) Signaled(*Thread) bool { return p.terminated }

// MapAccess implements Object.
func (p *Process) MapAccess(access uint32) uint32 { return processMapping.Map(access) }

// Destroy implements Object.
func (p *Process) Destroy() {
	p.handles.Destroy()
}

// TerminateProcess kills every thread of p with exitCode.
func (k *Kernel) TerminateProcess(p *Process, exitCode uint32) {
	if p.terminated {
		return
	}
	if len(p.threads) == 0 {
		p.exitCode = exitCode
		k.processExit(p)
		return
	}
	for _, t := range append([]*Thread(nil), p.threads...) {
		k.KillThread(t, exitCode)
	}
}

// processExit runs when the last thread of p has gone.
func (k *Kernel) processExit(p *Process) {
	if p.terminated {
		return
	}
	// keep p alive while its own handles are torn down
	Grab(p)
	defer Release(p)
	p.terminated = true
	p.ended = k.Now()
	delete(k.processes, p.id)
	p.handles.Destroy()
	k.log.Debug("process exited", zap.Uint32("pid", p.id), zap.Uint32("exit_code", p.exitCode))
	k.WakeUp(p, 0)
}

// OpenProcess returns a handle in caller's process to the process id.
func (k *Kernel) OpenProcess(caller *Process, id uint32, access, attrs uint32) (api.Handle, error) {
	p, ok := k.processes[id]
	if !ok {
		return api.InvalidHandleValue, api.ErrInvalidCID.WithContext("pid", id)
	}
	return caller.AllocHandle(p, access, attrs)
}
