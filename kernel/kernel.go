// File: kernel/kernel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide kernel context threaded through every request handler.

package kernel

import (
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/reactor"
)

// DefaultMaxHandles bounds a single handle table when none is configured.
const DefaultMaxHandles = 1 << 16

// Kernel owns the namespace, the live object registry and the id space of
// processes and threads. There is one per broker.
type Kernel struct {
	log        *zap.Logger
	r          *reactor.Reactor
	ns         *Namespace
	objects    map[uint64]Object
	serial     uint64
	processes  map[uint32]*Process
	threads    map[uint32]*Thread
	nextID     uint32
	maxHandles int
}

// Option customizes kernel construction.
type Option func(*Kernel)

// WithLogger sets the kernel logger.
func WithLogger(l *zap.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// WithMaxHandles bounds every handle table.
func WithMaxHandles(n int) Option {
	return func(k *Kernel) {
		if n > 0 {
			k.maxHandles = n
		}
	}
}

// New creates a kernel driven by r.
func New(r *reactor.Reactor, opts ...Option) *Kernel {
	k := &Kernel{
		log:        zap.NewNop(),
		r:          r,
		ns:         newNamespace(),
		objects:    make(map[uint64]Object),
		processes:  make(map[uint32]*Process),
		threads:    make(map[uint32]*Thread),
		nextID:     0x1c,
		maxHandles: DefaultMaxHandles,
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Logger returns the kernel logger.
func (k *Kernel) Logger() *zap.Logger { return k.log }

// Reactor returns the driving reactor.
func (k *Kernel) Reactor() *reactor.Reactor { return k.r }

// Now returns the reactor's current time.
func (k *Kernel) Now() time.Time { return k.r.Now() }

// Init attaches a freshly allocated object to the kernel with one reference
// owned by the caller. Types outside this package call it from their
// constructors.
func (k *Kernel) Init(obj Object) {
	h := obj.Base()
	h.k = k
	h.self = obj
	h.refs = 1
	h.queue.Init()
	k.serial++
	h.serial = k.serial
	k.objects[h.serial] = obj
}

func (k *Kernel) unregister(h *Header) {
	delete(k.objects, h.serial)
}

// LiveObjects returns the number of objects not yet destroyed.
func (k *Kernel) LiveObjects() int { return len(k.objects) }

// DumpObjects writes one line per live object in creation order.
func (k *Kernel) DumpObjects(w io.Writer) {
	serials := make([]uint64, 0, len(k.objects))
	for s := range k.objects {
		serials = append(serials, s)
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	for _, s := range serials {
		fmt.Fprintf(w, "%08x ", s)
		k.objects[s].Dump(w)
		fmt.Fprintln(w)
	}
}

func (k *Kernel) allocID() uint32 {
	k.nextID += 4
	return k.nextID
}

// ProcessByID looks up a running process without taking a reference.
func (k *Kernel) ProcessByID(id uint32) (*Process, bool) {
	p, ok := k.processes[id]
	return p, ok
}

// ThreadByID looks up a running thread without taking a reference.
func (k *Kernel) ThreadByID(id uint32) (*Thread, bool) {
	t, ok := k.threads[id]
	return t, ok
}

// Processes returns the number of running processes.
func (k *Kernel) Processes() int { return len(k.processes) }

// Threads returns the number of running threads.
func (k *Kernel) Threads() int { return len(k.threads) }
