package msgqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/msgqueue"
)

func TestLateTimerFiresOnceAndCatchesUp(t *testing.T) {
	h := newHarness(t)
	_, q := h.spawn(t)
	start := h.clock.Now()

	id, err := h.sys.SetTimer(q, 1, msgqueue.WMTimer, 5, 100*time.Millisecond, 77)
	require.NoError(t, err)
	require.Equal(t, uint32(5), id)

	h.clock.Advance(350 * time.Millisecond)
	require.NoError(t, h.r.RunOnce())

	m := get(t, h, q, msgqueue.GetRemove)
	assert.Equal(t, msgqueue.WMTimer, m.Msg)
	assert.Equal(t, uint32(1), m.Win)
	assert.Equal(t, uint64(5), m.WParam)
	assert.Equal(t, uint64(77), m.LParam)

	_, err = h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending, "missed periods are not replayed")

	next, ok := q.NextTimer()
	require.True(t, ok)
	assert.Equal(t, start.Add(400*time.Millisecond), next)
	armed, ok := h.r.NextTimeout()
	require.True(t, ok)
	assert.Equal(t, next, armed)
}

func TestTimerDrivenByReactor(t *testing.T) {
	h := newHarness(t)
	_, q := h.spawn(t)
	start := h.clock.Now()

	_, err := h.sys.SetTimer(q, 1, msgqueue.WMTimer, 1, 30*time.Millisecond, 0)
	require.NoError(t, err)
	_, err = h.sys.SetTimer(q, 1, msgqueue.WMTimer, 2, 20*time.Millisecond, 0)
	require.NoError(t, err)
	require.Equal(t, 1, h.r.PendingTimeouts(), "one reactor timeout mirrors the earliest timer")

	require.NoError(t, h.r.RunOnce())
	require.NoError(t, h.r.RunOnce())
	assert.Equal(t, 20*time.Millisecond, h.clock.Now().Sub(start))
	wakeBits, _ := q.Status(false)
	assert.NotZero(t, wakeBits&msgqueue.QSTimer)

	m := get(t, h, q, 0)
	assert.Equal(t, uint64(2), m.WParam)
	m = get(t, h, q, 0)
	assert.Equal(t, uint64(2), m.WParam, "peeking leaves the timer expired")

	m = get(t, h, q, msgqueue.GetRemove)
	assert.Equal(t, uint64(2), m.WParam)
	wakeBits, _ = q.Status(false)
	assert.Zero(t, wakeBits&msgqueue.QSTimer)

	next, ok := q.NextTimer()
	require.True(t, ok)
	assert.Equal(t, start.Add(30*time.Millisecond), next)
}

func TestSetTimerReplacesSameKey(t *testing.T) {
	h := newHarness(t)
	_, q := h.spawn(t)
	start := h.clock.Now()

	_, err := h.sys.SetTimer(q, 1, msgqueue.WMTimer, 1, time.Second, 0)
	require.NoError(t, err)
	_, err = h.sys.SetTimer(q, 1, msgqueue.WMTimer, 1, 10*time.Millisecond, 0)
	require.NoError(t, err)

	next, ok := q.NextTimer()
	require.True(t, ok)
	assert.Equal(t, start.Add(10*time.Millisecond), next)

	require.NoError(t, h.sys.KillTimer(q, 1, msgqueue.WMTimer, 1))
	_, ok = q.NextTimer()
	assert.False(t, ok)
	assert.Zero(t, h.r.PendingTimeouts())
	require.ErrorIs(t, h.sys.KillTimer(q, 1, msgqueue.WMTimer, 1), api.ErrInvalidParameter)
}

func TestKillExpiredTimer(t *testing.T) {
	h := newHarness(t)
	_, q := h.spawn(t)
	_, err := h.sys.SetTimer(q, 1, msgqueue.WMSysTimer, 1, time.Millisecond, 0)
	require.NoError(t, err)
	h.clock.Advance(time.Millisecond)
	require.NoError(t, h.r.RunOnce())

	require.NoError(t, h.sys.KillTimer(q, 1, msgqueue.WMSysTimer, 1))
	wakeBits, _ := q.Status(false)
	assert.Zero(t, wakeBits&msgqueue.QSTimer)
	_, err = h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)
}

func TestTimerIDAllocation(t *testing.T) {
	h := newHarness(t)
	_, q := h.spawn(t)

	a, err := h.sys.SetTimer(q, 0, msgqueue.WMTimer, 0, time.Second, 0)
	require.NoError(t, err)
	b, err := h.sys.SetTimer(q, 0, msgqueue.WMTimer, 0, time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7fff), a)
	assert.Equal(t, uint32(0x7ffe), b)

	_, err = h.sys.SetTimer(q, 0, 0x400, 0, time.Second, 0)
	require.ErrorIs(t, err, api.ErrInvalidParameter)
}

func TestTimerRateFloor(t *testing.T) {
	h := newHarness(t)
	_, q := h.spawn(t)
	start := h.clock.Now()
	_, err := h.sys.SetTimer(q, 1, msgqueue.WMTimer, 1, 0, 0)
	require.NoError(t, err)
	next, _ := q.NextTimer()
	assert.Equal(t, start.Add(time.Millisecond), next)
}
