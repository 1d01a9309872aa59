// File: kernel/event.go
// Author: momentics <momentics@gmail.com>
//
// Manual- and auto-reset events.

package kernel

import (
	"fmt"
	"io"

	"github.com/momentics/kbroker/api"
)

// Event access rights.
const (
	EventQueryState  uint32 = 0x0001
	EventModifyState uint32 = 0x0002
	EventAllAccess          = api.StandardRightsRequired | api.Synchronize | 0x3
)

// EventType describes event objects.
var EventType = &Type{Name: "Event"}

var eventMapping = GenericMapping{
	Read:    api.ReadControl | EventQueryState,
	Write:   api.ReadControl | EventModifyState,
	Execute: api.ReadControl | api.Synchronize,
	All:     EventAllAccess,
}

// Event is a waitable boolean flag.
type Event struct {
	Header
	manual   bool
	signaled bool
}

// CreateEvent creates or opens the event called name.
func (k *Kernel) CreateEvent(name string, manual, initial bool) (*Event, bool, error) {
	obj, existed, err := k.CreateNamed(name, EventType, func() Object {
		e := &Event{manual: manual, signaled: initial}
		k.Init(e)
		return e
	})
	if err != nil {
		return nil, false, err
	}
	return obj.(*Event), existed, nil
}

// Type implements Object.
func (e *Event) Type() *Type { return EventType }

// Dump implements Object.
func (e *Event) Dump(w io.Writer) {
	e.Header.Dump(w)
	fmt.Fprintf(w, " manual=%v signaled=%v", e.manual, e.signaled)
}

// AddQueue implements Object.
func (e *Event) AddQueue(w *WaitEntry) bool { return e.Enqueue(w) }

// Signaled implements Object.
func (e *Event) Signaled(*Thread) bool { return e.signaled }

// Satisfied implements Object: auto-reset events clear on a successful wait.
func (e *Event) Satisfied(*Thread) bool {
	if !e.manual {
		e.signaled = false
	}
	return false
}

// Signal implements Object.
func (e *Event) Signal(_ *Thread, access uint32) error {
	if access&EventModifyState == 0 {
		return api.ErrAccessDenied
	}
	e.Set()
	return nil
}

// MapAccess implements Object.
func (e *Event) MapAccess(access uint32) uint32 { return eventMapping.Map(access) }

// IsSignaled returns the current state.
func (e *Event) IsSignaled() bool { return e.signaled }

// Manual reports whether e is manual-reset.
func (e *Event) Manual() bool { return e.manual }

// Set signals e, waking all waiters of a manual-reset event or one waiter
// of an auto-reset event.
func (e *Event) Set() {
	e.signaled = true
	max := 0
	if !e.manual {
		max = 1
	}
	e.k.WakeUp(e, max)
}

// Reset clears e.
func (e *Event) Reset() {
	e.signaled = false
}

// Pulse releases current waiters and leaves e clear.
func (e *Event) Pulse() {
	e.Set()
	e.signaled = false
}
