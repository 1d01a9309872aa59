// File: kernel/object.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Object core: reference counting and the per-type operation set.

package kernel

import (
	"container/list"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
)

// Type is the immutable descriptor shared by every object of one kind.
// Handle lookups compare descriptors by identity.
type Type struct {
	Name string
}

func (t *Type) String() string { return t.Name }

// Object is the operation table every kernel object answers. Header supplies
// a safe default for every operation except Type; concrete types override
// only what they support.
type Object interface {
	// Base returns the embedded header.
	Base() *Header
	// Type returns the per-type descriptor.
	Type() *Type
	// Dump writes a one-line description.
	Dump(w io.Writer)
	// AddQueue links a wait entry; false means the object cannot be waited on.
	AddQueue(e *WaitEntry) bool
	// RemoveQueue unlinks an entry accepted by AddQueue.
	RemoveQueue(e *WaitEntry)
	// Signaled reports whether a wait by t would succeed now. Must not mutate.
	Signaled(t *Thread) bool
	// Satisfied applies the side effect of a successful wait by t and
	// reports whether the wait was an abandonment.
	Satisfied(t *Thread) bool
	// Signal implements the signal half of signal-and-wait on behalf of t,
	// which holds access rights to the object.
	Signal(t *Thread, access uint32) error
	// GetFD returns the backing descriptor or -1.
	GetFD() int
	// MapAccess translates generic rights to type specific ones.
	MapAccess(access uint32) uint32
	// CloseHandle is consulted before a handle to the object is closed.
	CloseHandle(p *Process, h api.Handle) bool
	// Destroy frees everything the object owns. It runs exactly once and
	// cannot fail.
	Destroy()
}

// Header is embedded by every concrete object.
type Header struct {
	k         *Kernel
	self      Object
	serial    uint64
	refs      int
	destroyed bool
	name      string
	queue     list.List // of *WaitEntry
}

// Base implements Object.
func (h *Header) Base() *Header { return h }

// Kernel returns the owning kernel.
func (h *Header) Kernel() *Kernel { return h.k }

// Refs returns the current reference count.
func (h *Header) Refs() int { return h.refs }

// Name returns the namespace name, if any.
func (h *Header) Name() string { return h.name }

// Destroyed reports whether the last reference was released.
func (h *Header) Destroyed() bool { return h.destroyed }

// Waiters returns the number of queued wait entries.
func (h *Header) Waiters() int { return h.queue.Len() }

// Dump writes the generic description.
func (h *Header) Dump(w io.Writer) {
	fmt.Fprintf(w, "%s refs=%d", h.self.Type().Name, h.refs)
	if h.name != "" {
		fmt.Fprintf(w, " name=%q", h.name)
	}
}

// AddQueue refuses: objects are not waitable unless their type says so.
func (h *Header) AddQueue(*WaitEntry) bool { return false }

// RemoveQueue unlinks e and drops the reference Enqueue took.
func (h *Header) RemoveQueue(e *WaitEntry) {
	if e.elem == nil {
		return
	}
	h.queue.Remove(e.elem)
	e.elem = nil
	Release(h.self)
}

// Signaled is never true by default.
func (h *Header) Signaled(*Thread) bool { return false }

// Satisfied has no side effect by default.
func (h *Header) Satisfied(*Thread) bool { return false }

// Signal is unsupported by default.
func (h *Header) Signal(*Thread, uint32) error { return api.ErrObjectTypeMismatch }

// GetFD reports no descriptor.
func (h *Header) GetFD() int { return -1 }

// MapAccess applies the standard-rights mapping.
func (h *Header) MapAccess(access uint32) uint32 {
	return defaultMapping.Map(access)
}

// CloseHandle always allows the close.
func (h *Header) CloseHandle(*Process, api.Handle) bool { return true }

// Destroy has nothing to free.
func (h *Header) Destroy() {}

// Enqueue links e at the tail of the wait list, taking a reference on the
// object. Waitable types call it from AddQueue.
func (h *Header) Enqueue(e *WaitEntry) bool {
	Grab(h.self)
	e.elem = h.queue.PushBack(e)
	return true
}

// GenericMapping maps the four generic rights of one type.
type GenericMapping struct {
	Read, Write, Execute, All uint32
}

var defaultMapping = GenericMapping{
	Read:    api.ReadControl,
	Write:   api.ReadControl,
	Execute: api.ReadControl,
	All:     api.StandardRightsAll,
}

// Map replaces generic bits and MaximumAllowed with specific rights.
func (m GenericMapping) Map(access uint32) uint32 {
	if access&api.GenericRead != 0 {
		access |= m.Read
	}
	if access&api.GenericWrite != 0 {
		access |= m.Write
	}
	if access&api.GenericExecute != 0 {
		access |= m.Execute
	}
	if access&(api.GenericAll|api.MaximumAllowed) != 0 {
		access |= m.All
	}
	return access &^ (api.GenericMask | api.MaximumAllowed)
}

// Grab adds a reference and returns obj.
func Grab[T Object](obj T) T {
	h := obj.Base()
	if h.destroyed {
		h.k.log.DPanic("grab of destroyed object", zap.Stringer("type", obj.Type()))
		return obj
	}
	h.refs++
	return obj
}

// Release drops a reference. The object is unlinked from the namespace and
// the live registry and destroyed when the count reaches zero. Release
// reports whether this call destroyed the object.
func Release(obj Object) bool {
	h := obj.Base()
	if h.refs <= 0 {
		h.k.log.DPanic("release of dead object", zap.Stringer("type", obj.Type()), zap.Uint64("serial", h.serial))
		return false
	}
	h.refs--
	if h.refs > 0 {
		return false
	}
	if h.queue.Len() != 0 {
		h.k.log.DPanic("destroying object with waiters", zap.Stringer("type", obj.Type()), zap.Int("waiters", h.queue.Len()))
	}
	h.k.ns.unlink(h)
	h.k.unregister(h)
	h.destroyed = true
	obj.Destroy()
	return true
}
