package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/fake"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/reactor"
)

type wake struct {
	tid    uint32
	cookie uint64
	status api.Status
}

type harness struct {
	k     *kernel.Kernel
	r     *reactor.Reactor
	clock *fake.Clock
	wakes []wake
}

func newHarness(t *testing.T, opts ...kernel.Option) *harness {
	t.Helper()
	clock := fake.NewClock()
	r := reactor.New(reactor.WithClock(clock), reactor.WithPoller(fake.NewPoller(clock)))
	return &harness{k: kernel.New(r, opts...), r: r, clock: clock}
}

// spawn creates a process with one thread whose wakes are recorded.
func (h *harness) spawn(t *testing.T) *kernel.Thread {
	t.Helper()
	p, err := h.k.CreateProcess(nil, false)
	require.NoError(t, err)
	th, err := h.k.CreateThread(p)
	require.NoError(t, err)
	kernel.Release(p)
	h.watch(th)
	return th
}

func (h *harness) watch(th *kernel.Thread) {
	th.SetWaker(func(cookie uint64, status api.Status) {
		h.wakes = append(h.wakes, wake{tid: th.ID(), cookie: cookie, status: status})
	})
}

// runUntilIdle fires every armed timeout.
func (h *harness) runUntilIdle(t *testing.T) {
	t.Helper()
	for h.r.PendingTimeouts() > 0 {
		require.NoError(t, h.r.RunOnce())
	}
}
