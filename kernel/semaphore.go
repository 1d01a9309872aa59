// File: kernel/semaphore.go
// Author: momentics <momentics@gmail.com>
//
// Counting semaphores.

package kernel

import (
	"fmt"
	"io"

	"github.com/momentics/kbroker/api"
)

// Semaphore access rights.
const (
	SemaphoreQueryState  uint32 = 0x0001
	SemaphoreModifyState uint32 = 0x0002
	SemaphoreAllAccess          = api.StandardRightsRequired | api.Synchronize | 0x3
)

// SemaphoreType describes semaphore objects.
var SemaphoreType = &Type{Name: "Semaphore"}

var semaphoreMapping = GenericMapping{
	Read:    api.ReadControl | SemaphoreQueryState,
	Write:   api.ReadControl | SemaphoreModifyState,
	Execute: api.ReadControl | api.Synchronize,
	All:     SemaphoreAllAccess,
}

// Semaphore admits up to count waiters.
type Semaphore struct {
	Header
	count uint32
	max   uint32
}

// CreateSemaphore creates or opens the semaphore called name.
func (k *Kernel) CreateSemaphore(name string, initial, max uint32) (*Semaphore, bool, error) {
	if max == 0 || initial > max {
		return nil, false, api.ErrInvalidParameter.WithContext("max", max)
	}
	obj, existed, err := k.CreateNamed(name, SemaphoreType, func() Object {
		s := &Semaphore{count: initial, max: max}
		k.Init(s)
		return s
	})
	if err != nil {
		return nil, false, err
	}
	return obj.(*Semaphore), existed, nil
}

// Type implements Object.
func (s *Semaphore) Type() *Type { return SemaphoreType }

// Dump implements Object.
func (s *Semaphore) Dump(w io.Writer) {
	s.Header.Dump(w)
	fmt.Fprintf(w, " count=%d max=%d", s.count, s.max)
}

// AddQueue implements Object.
func (s *Semaphore) AddQueue(e *WaitEntry) bool { return s.Enqueue(e) }

// Signaled implements Object.
func (s *Semaphore) Signaled(*Thread) bool { return s.count > 0 }

// Satisfied implements Object.
func (s *Semaphore) Satisfied(*Thread) bool {
	s.count--
	return false
}

// Signal implements Object.
func (s *Semaphore) Signal(_ *Thread, access uint32) error {
	if access&SemaphoreModifyState == 0 {
		return api.ErrAccessDenied
	}
	_, err := s.Release(1)
	return err
}

// MapAccess implements Object.
func (s *Semaphore) MapAccess(access uint32) uint32 { return semaphoreMapping.Map(access) }

// Count returns the current count.
func (s *Semaphore) Count() uint32 { return s.count }

// Release adds n to the count and returns the previous count.
func (s *Semaphore) Release(n uint32) (uint32, error) {
	prev := s.count
	if n == 0 {
		return prev, api.ErrInvalidParameter
	}
	if s.count+n > s.max || s.count+n < s.count {
		return prev, api.ErrSemaphoreLimit
	}
	s.count += n
	s.k.WakeUp(s, int(n))
	return prev, nil
}
