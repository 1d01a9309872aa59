// File: kernel/mutex.go
// Author: momentics <momentics@gmail.com>
//
// Recursive mutexes with abandonment on owner death.

package kernel

import (
	"fmt"
	"io"

	"github.com/momentics/kbroker/api"
)

// Mutex access rights.
const (
	MutexQueryState uint32 = 0x0001
	MutexAllAccess         = api.StandardRightsRequired | api.Synchronize | MutexQueryState
)

// MutexType describes mutex objects.
var MutexType = &Type{Name: "Mutex"}

var mutexMapping = GenericMapping{
	Read:    api.ReadControl | MutexQueryState,
	Write:   api.ReadControl,
	Execute: api.ReadControl | api.Synchronize,
	All:     MutexAllAccess,
}

// Mutex is owned by at most one thread, recursively.
type Mutex struct {
	Header
	owner     *Thread
	count     uint32
	abandoned bool
}

// CreateMutex creates or opens the mutex called name; owned grabs it for t.
func (k *Kernel) CreateMutex(t *Thread, name string, owned bool) (*Mutex, bool, error) {
	obj, existed, err := k.CreateNamed(name, MutexType, func() Object {
		m := &Mutex{}
		k.Init(m)
		if owned && t != nil {
			m.grab(t)
		}
		return m
	})
	if err != nil {
		return nil, false, err
	}
	return obj.(*Mutex), existed, nil
}

// Type implements Object.
func (m *Mutex) Type() *Type { return MutexType }

// Dump implements Object.
func (m *Mutex) Dump(w io.Writer) {
	m.Header.Dump(w)
	owner := uint32(0)
	if m.owner != nil {
		owner = m.owner.id
	}
	fmt.Fprintf(w, " owner=%04x count=%d abandoned=%v", owner, m.count, m.abandoned)
}

// AddQueue implements Object.
func (m *Mutex) AddQueue(e *WaitEntry) bool { return m.Enqueue(e) }

// Signaled implements Object: free, or already owned by t.
func (m *Mutex) Signaled(t *Thread) bool {
	return m.count == 0 || m.owner == t
}

// Satisfied implements Object: t takes ownership; the first owner after an
// abandonment is told so.
func (m *Mutex) Satisfied(t *Thread) bool {
	m.grab(t)
	if !m.abandoned {
		return false
	}
	m.abandoned = false
	return true
}

// Signal implements Object: releases one level of ownership held by t.
func (m *Mutex) Signal(t *Thread, _ uint32) error {
	_, err := m.Release(t)
	return err
}

// MapAccess implements Object.
func (m *Mutex) MapAccess(access uint32) uint32 { return mutexMapping.Map(access) }

// Owner returns the owning thread, if any.
func (m *Mutex) Owner() *Thread { return m.owner }

// Count returns the recursion count.
func (m *Mutex) Count() uint32 { return m.count }

func (m *Mutex) grab(t *Thread) {
	m.count++
	if m.count == 1 {
		m.owner = t
		t.mutexes = append(t.mutexes, m)
	}
}

func (m *Mutex) doRelease() {
	t := m.owner
	m.count = 0
	m.owner = nil
	for i, om := range t.mutexes {
		if om == m {
			t.mutexes = append(t.mutexes[:i], t.mutexes[i+1:]...)
			break
		}
	}
	m.k.WakeUp(m, 0)
}

// Release drops one level of ownership held by t and returns the previous
// recursion count.
func (m *Mutex) Release(t *Thread) (uint32, error) {
	if m.count == 0 || m.owner != t {
		return 0, api.ErrMutantNotOwned
	}
	prev := m.count
	if m.count == 1 {
		m.doRelease()
	} else {
		m.count--
	}
	return prev, nil
}

// abandonMutexes frees every mutex t still owns, flagging each abandoned.
func (k *Kernel) abandonMutexes(t *Thread) {
	for len(t.mutexes) > 0 {
		m := t.mutexes[0]
		m.abandoned = true
		m.doRelease()
	}
}
