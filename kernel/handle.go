// File: kernel/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-process handle table.

package kernel

import (
	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
)

const minTableSize = 32

type handleEntry struct {
	obj    Object
	access uint32
	attrs  uint32
}

// Table maps small integer handles to (object, access) pairs for one process.
// The table owns one reference per occupied entry.
type Table struct {
	k         *Kernel
	owner     *Process
	entries   []handleEntry
	count     int
	last      int // highest used index + 1
	free      int // lowest index that may be free
	destroyed bool
}

func newTable(k *Kernel, owner *Process) *Table {
	return &Table{k: k, owner: owner}
}

func indexToHandle(i int) api.Handle {
	return api.Handle((i + 1) << 2)
}

func handleToIndex(h api.Handle) (int, bool) {
	v := uint32(h)
	if v == 0 || v&3 != 0 {
		return 0, false
	}
	return int(v>>2) - 1, true
}

// Count returns the number of open handles.
func (t *Table) Count() int { return t.count }

func (t *Table) grow() error {
	size := len(t.entries) * 2
	if size == 0 {
		size = minTableSize
	}
	if size > t.k.maxHandles {
		size = t.k.maxHandles
	}
	if size <= len(t.entries) {
		return api.ErrNoMemory.WithContext("handles", len(t.entries))
	}
	entries := make([]handleEntry, size)
	copy(entries, t.entries)
	t.entries = entries
	return nil
}

// insert stores an already mapped access mask. The table takes its own
// reference on obj.
func (t *Table) insert(obj Object, access, attrs uint32) (api.Handle, error) {
	if t.destroyed {
		return api.InvalidHandleValue, api.ErrProcessTerminating
	}
	idx := -1
	for i := t.free; i < t.last; i++ {
		if t.entries[i].obj == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		if t.last >= len(t.entries) {
			if err := t.grow(); err != nil {
				return api.InvalidHandleValue, err
			}
		}
		idx = t.last
		t.last++
	}
	t.entries[idx] = handleEntry{obj: Grab(obj), access: access, attrs: attrs & (api.HandleInherit | api.HandleProtectFromClose)}
	t.free = idx + 1
	t.count++
	return indexToHandle(idx), nil
}

func (t *Table) entry(h api.Handle) (*handleEntry, error) {
	idx, ok := handleToIndex(h)
	if !ok || idx >= t.last || t.entries[idx].obj == nil {
		return nil, api.ErrInvalidHandle.WithContext("handle", h)
	}
	return &t.entries[idx], nil
}

// Alloc maps access through obj and stores a new entry. Rights outside what
// the type supports are refused.
func (t *Table) Alloc(obj Object, access, attrs uint32) (api.Handle, error) {
	mapped := obj.MapAccess(access)
	if mapped&^obj.MapAccess(api.GenericAll) != 0 {
		return api.InvalidHandleValue, api.ErrAccessDenied.WithContext("access", mapped)
	}
	return t.insert(obj, mapped, attrs)
}

// Lookup returns the entry's object and granted access without a reference.
func (t *Table) Lookup(h api.Handle) (Object, uint32, error) {
	e, err := t.entry(h)
	if err != nil {
		return nil, 0, err
	}
	return e.obj, e.access, nil
}

// Close releases the entry. The object's CloseHandle hook may veto it.
func (t *Table) Close(h api.Handle) error {
	e, err := t.entry(h)
	if err != nil {
		return err
	}
	if e.attrs&api.HandleProtectFromClose != 0 {
		return api.ErrHandleNotClosable.WithContext("handle", h)
	}
	obj := e.obj
	if !obj.CloseHandle(t.owner, h) {
		return api.ErrHandleNotClosable.WithContext("handle", h)
	}
	idx, _ := handleToIndex(h)
	t.entries[idx] = handleEntry{}
	if idx < t.free {
		t.free = idx
	}
	for t.last > 0 && t.entries[t.last-1].obj == nil {
		t.last--
	}
	t.count--
	Release(obj)
	return nil
}

// SetInfo updates the attribute bits selected by mask.
func (t *Table) SetInfo(h api.Handle, mask, flags uint32) error {
	e, err := t.entry(h)
	if err != nil {
		return err
	}
	mask &= api.HandleInherit | api.HandleProtectFromClose
	e.attrs = (e.attrs &^ mask) | (flags & mask)
	return nil
}

// Info returns the attribute bits of h.
func (t *Table) Info(h api.Handle) (uint32, error) {
	e, err := t.entry(h)
	if err != nil {
		return 0, err
	}
	return e.attrs, nil
}

// Each visits every open handle in ascending order.
func (t *Table) Each(fn func(h api.Handle, obj Object, access, attrs uint32)) {
	for i := 0; i < t.last; i++ {
		e := t.entries[i]
		if e.obj != nil {
			fn(indexToHandle(i), e.obj, e.access, e.attrs)
		}
	}
}

// inherit copies every inheritable entry of parent at the same handle value.
func (t *Table) inherit(parent *Table) error {
	for i := 0; i < parent.last; i++ {
		e := parent.entries[i]
		if e.obj == nil || e.attrs&api.HandleInherit == 0 {
			continue
		}
		for t.last <= i {
			if t.last >= len(t.entries) {
				if err := t.grow(); err != nil {
					return err
				}
			}
			t.last++
		}
		t.entries[i] = handleEntry{obj: Grab(e.obj), access: e.access, attrs: e.attrs}
		t.count++
	}
	t.free = 0
	return nil
}

// Destroy closes every entry exactly once; later calls are no-ops. Close
// hooks are not consulted: the owning process is gone.
func (t *Table) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	entries := t.entries
	t.entries, t.last, t.free, t.count = nil, 0, 0, 0
	for i := range entries {
		if obj := entries[i].obj; obj != nil {
			Release(obj)
		}
	}
}

// resolve looks h up in p's table, honouring the CurrentProcess pseudo-handle.
func (p *Process) resolve(h api.Handle) (Object, uint32, error) {
	if h == api.CurrentProcess {
		return p, ProcessAllAccess, nil
	}
	return p.handles.Lookup(h)
}

// resolve adds the CurrentThread pseudo-handle to the process lookup.
func (t *Thread) resolve(h api.Handle) (Object, uint32, error) {
	if h == api.CurrentThread {
		return t, ThreadAllAccess, nil
	}
	return t.process.resolve(h)
}

func checkObject(obj Object, granted, access uint32, typ *Type) error {
	if typ != nil && obj.Type() != typ {
		return api.ErrObjectTypeMismatch.WithContext("type", obj.Type().Name)
	}
	if need := obj.MapAccess(access); granted&need != need {
		return api.ErrAccessDenied.WithContext("access", need)
	}
	return nil
}

// AllocHandle stores obj in p's handle table.
func (p *Process) AllocHandle(obj Object, access, attrs uint32) (api.Handle, error) {
	return p.handles.Alloc(obj, access, attrs)
}

// GetObject resolves h with at least access rights and, when typ is set, of
// that type. The caller owns the returned reference.
func (p *Process) GetObject(h api.Handle, access uint32, typ *Type) (Object, error) {
	obj, granted, err := p.resolve(h)
	if err != nil {
		return nil, err
	}
	if err := checkObject(obj, granted, access, typ); err != nil {
		return nil, err
	}
	return Grab(obj), nil
}

// GetObject resolves h from t's point of view, accepting both pseudo-handles.
func (t *Thread) GetObject(h api.Handle, access uint32, typ *Type) (Object, error) {
	obj, granted, err := t.resolve(h)
	if err != nil {
		return nil, err
	}
	if err := checkObject(obj, granted, access, typ); err != nil {
		return nil, err
	}
	return Grab(obj), nil
}

// CloseHandleValue closes h in p. Pseudo-handles close silently.
func (p *Process) CloseHandleValue(h api.Handle) error {
	if h == api.CurrentProcess || h == api.CurrentThread {
		return nil
	}
	return p.handles.Close(h)
}

// Handles returns p's table.
func (p *Process) Handles() *Table { return p.handles }

// DuplicateHandle creates an independent entry in dst referencing the object
// behind h in src. caller resolves pseudo-handles when src is its own process.
func (k *Kernel) DuplicateHandle(caller *Thread, src *Process, h api.Handle, dst *Process, access, attrs, options uint32) (api.Handle, error) {
	var (
		obj     Object
		granted uint32
		err     error
	)
	if caller != nil && caller.process == src {
		obj, granted, err = caller.resolve(h)
	} else {
		obj, granted, err = src.resolve(h)
	}
	if err != nil {
		return api.InvalidHandleValue, err
	}
	Grab(obj)
	defer Release(obj)

	if options&api.DupSameAttributes != 0 {
		if h != api.CurrentProcess && h != api.CurrentThread {
			if a, err := src.handles.Info(h); err == nil {
				attrs = a
			}
		} else {
			attrs = 0
		}
	}

	var out api.Handle
	if options&api.DupSameAccess != 0 {
		out, err = dst.handles.insert(obj, granted, attrs)
	} else {
		out, err = dst.handles.Alloc(obj, access, attrs)
	}
	if options&api.DupCloseSource != 0 {
		if cerr := src.CloseHandleValue(h); cerr != nil {
			k.log.Debug("close source handle", zap.Stringer("handle", h), zap.Error(cerr))
		}
	}
	return out, err
}
