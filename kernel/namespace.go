// File: kernel/namespace.go
// Author: momentics <momentics@gmail.com>
//
// Flat object namespace. Entries are weak: a name never keeps its object alive.

package kernel

import (
	"strings"

	"github.com/momentics/kbroker/api"
)

// Namespace maps case-insensitive names to live objects.
type Namespace struct {
	names map[string]Object
}

func newNamespace() *Namespace {
	return &Namespace{names: make(map[string]Object)}
}

func nameKey(name string) string { return strings.ToLower(name) }

func (n *Namespace) lookup(name string) Object {
	return n.names[nameKey(name)]
}

func (n *Namespace) insert(obj Object, name string) {
	h := obj.Base()
	h.name = name
	n.names[nameKey(name)] = obj
}

func (n *Namespace) unlink(h *Header) {
	if h.name == "" {
		return
	}
	key := nameKey(h.name)
	if cur, ok := n.names[key]; ok && cur.Base() == h {
		delete(n.names, key)
	}
	h.name = ""
}

// Len returns the number of named objects.
func (n *Namespace) Len() int { return len(n.names) }

// Namespace returns the kernel namespace.
func (k *Kernel) Namespace() *Namespace { return k.ns }

// FindObject resolves name. When typ is non-nil the object must be of that
// type. A reference is taken only when grab is set.
func (k *Kernel) FindObject(name string, typ *Type, grab bool) (Object, error) {
	obj := k.ns.lookup(name)
	if obj == nil {
		return nil, api.ErrNameNotFound.WithContext("name", name)
	}
	if typ != nil && obj.Type() != typ {
		return nil, api.ErrObjectTypeMismatch.WithContext("name", name)
	}
	if grab {
		Grab(obj)
	}
	return obj, nil
}

// CreateNamed returns a new object from create, or the existing object of the
// same type registered under name with existed set. The caller owns one
// reference to the result either way. An empty name creates an anonymous
// object.
func (k *Kernel) CreateNamed(name string, typ *Type, create func() Object) (obj Object, existed bool, err error) {
	if name != "" {
		if cur := k.ns.lookup(name); cur != nil {
			if cur.Type() != typ {
				return nil, false, api.ErrObjectTypeMismatch.WithContext("name", name)
			}
			return Grab(cur), true, nil
		}
	}
	obj = create()
	if name != "" {
		k.ns.insert(obj, name)
	}
	return obj, false, nil
}
