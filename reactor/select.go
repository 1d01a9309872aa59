// File: reactor/select.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-threaded select loop over descriptor users and timeouts.

package reactor

import (
	"container/list"
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/kbroker/api"
)

// DefaultMaxUsers is the descriptor slot capacity when none is configured.
const DefaultMaxUsers = 4096

// FDUser is one descriptor registered with the reactor.
type FDUser struct {
	r       *Reactor
	fd      int
	index   int
	handler Handler
	events  Events
}

// Fd returns the registered descriptor.
func (u *FDUser) Fd() int { return u.fd }

// Events returns the current interest mask.
func (u *FDUser) Events() Events { return u.events }

// Active reports whether u is still registered.
func (u *FDUser) Active() bool { return u.index >= 0 }

// SetEvents replaces the interest mask.
func (u *FDUser) SetEvents(ev Events) {
	u.events = ev
	if u.index < 0 {
		return
	}
	u.r.pollfds[u.index].Events = toPoll(ev)
}

// Reactor multiplexes descriptor users and a sorted timeout list.
// It is not safe for concurrent use; every call must come from the loop
// goroutine or happen before Run.
type Reactor struct {
	log      *zap.Logger
	clock    Clock
	poller   Poller
	users    []*FDUser
	pollfds  []unix.PollFd
	active   int // highest used slot + 1
	nbusers  int
	maxUsers int
	timeouts list.List
}

// Option customizes reactor construction.
type Option func(*Reactor)

// WithLogger sets the reactor logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reactor) { r.log = l }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Reactor) { r.clock = c }
}

// WithPoller replaces the poll(2) backend.
func WithPoller(p Poller) Option {
	return func(r *Reactor) { r.poller = p }
}

// WithMaxUsers bounds the descriptor slot array.
func WithMaxUsers(n int) Option {
	return func(r *Reactor) {
		if n > 0 {
			r.maxUsers = n
		}
	}
}

// New creates an idle reactor.
func New(opts ...Option) *Reactor {
	r := &Reactor{
		log:      zap.NewNop(),
		clock:    SystemClock,
		poller:   NewPoller(),
		maxUsers: DefaultMaxUsers,
	}
	for _, o := range opts {
		o(r)
	}
	r.timeouts.Init()
	return r
}

// Now returns the reactor clock's current time.
func (r *Reactor) Now() time.Time { return r.clock.Now() }

// Users returns the number of registered descriptor users.
func (r *Reactor) Users() int { return r.nbusers }

// AddUser registers fd with handler and an empty interest mask.
func (r *Reactor) AddUser(fd int, h Handler) (*FDUser, error) {
	idx := -1
	for i := 0; i < r.active; i++ {
		if r.users[i] == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		if r.active >= r.maxUsers {
			return nil, api.ErrNoMemory.WithContext("fd", fd)
		}
		if r.active == len(r.users) {
			size := len(r.users) * 2
			if size == 0 {
				size = 32
			}
			if size > r.maxUsers {
				size = r.maxUsers
			}
			users := make([]*FDUser, size)
			copy(users, r.users)
			pollfds := make([]unix.PollFd, size)
			copy(pollfds, r.pollfds)
			r.users, r.pollfds = users, pollfds
		}
		idx = r.active
		r.active++
	}
	u := &FDUser{r: r, fd: fd, index: idx, handler: h}
	r.users[idx] = u
	r.pollfds[idx] = unix.PollFd{Fd: int32(fd)}
	r.nbusers++
	return u, nil
}

// RemoveUser unregisters u. Pending readiness for its slot in the current
// batch is discarded.
func (r *Reactor) RemoveUser(u *FDUser) {
	if u == nil || u.index < 0 {
		return
	}
	idx := u.index
	r.users[idx] = nil
	r.pollfds[idx] = unix.PollFd{Fd: -1}
	u.index = -1
	r.nbusers--
	for r.active > 0 && r.users[r.active-1] == nil {
		r.active--
	}
}

// pollTimeout rounds d up to whole milliseconds, capped at what poll(2)
// accepts.
func pollTimeout(d time.Duration) int {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

// RunOnce performs one loop iteration: fire an expired timeout, or block in
// the poller until the next deadline and dispatch ready descriptors.
func (r *Reactor) RunOnce() error {
	timeout := -1
	if front := r.timeouts.Front(); front != nil {
		t := front.Value.(*TimeoutUser)
		now := r.clock.Now()
		if !now.Before(t.when) {
			r.fire(t)
			return nil
		}
		timeout = pollTimeout(t.when.Sub(now))
	}

	n, err := r.poller.Poll(r.pollfds[:r.active], timeout)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if n <= 0 {
		return nil
	}
	end := r.active
	for i := 0; i < end && i < r.active; i++ {
		revents := r.pollfds[i].Revents
		if revents == 0 {
			continue
		}
		r.pollfds[i].Revents = 0
		u := r.users[i]
		if u == nil {
			continue
		}
		ev := fromPoll(revents)
		r.safeCall(func() { u.handler.PollEvent(u, ev) })
	}
	return nil
}

// Run loops until no descriptor users remain or ctx is cancelled.
func (r *Reactor) Run(ctx context.Context) error {
	for r.nbusers > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.RunOnce(); err != nil {
			return err
		}
	}
	return nil
}

// safeCall keeps the loop alive when a callback panics.
func (r *Reactor) safeCall(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("reactor callback panic", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()
	fn()
}
