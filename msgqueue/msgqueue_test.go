package msgqueue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/fake"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/msgqueue"
	"github.com/momentics/kbroker/reactor"
)

type wake struct {
	tid    uint32
	status api.Status
}

type harness struct {
	k     *kernel.Kernel
	r     *reactor.Reactor
	sys   *msgqueue.System
	clock *fake.Clock
	wakes []wake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := fake.NewClock()
	r := reactor.New(reactor.WithClock(clock), reactor.WithPoller(fake.NewPoller(clock)))
	k := kernel.New(r)
	return &harness{k: k, r: r, sys: msgqueue.New(k), clock: clock}
}

// spawn creates a single-threaded process and its message queue.
func (h *harness) spawn(t *testing.T) (*kernel.Thread, *msgqueue.Queue) {
	t.Helper()
	p, err := h.k.CreateProcess(nil, false)
	require.NoError(t, err)
	th, err := h.k.CreateThread(p)
	require.NoError(t, err)
	kernel.Release(p)
	th.SetWaker(func(_ uint64, status api.Status) {
		h.wakes = append(h.wakes, wake{tid: th.ID(), status: status})
	})
	q, err := h.sys.GetQueue(th)
	require.NoError(t, err)
	return th, q
}

func (h *harness) runUntilIdle(t *testing.T) {
	t.Helper()
	for h.r.PendingTimeouts() > 0 {
		require.NoError(t, h.r.RunOnce())
	}
}

func get(t *testing.T, h *harness, q *msgqueue.Queue, flags uint32) msgqueue.Message {
	t.Helper()
	m, err := h.sys.GetMessage(q, msgqueue.AnyMessage, flags)
	require.NoError(t, err)
	return m
}

func TestGetQueueIsStable(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	again, err := h.sys.GetQueue(th)
	require.NoError(t, err)
	require.Same(t, q, again)
	require.Same(t, th, q.Thread())
}
