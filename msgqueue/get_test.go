package msgqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
	"github.com/momentics/kbroker/msgqueue"
)

func TestRetrievalPriority(t *testing.T) {
	h := newHarness(t)
	sender, _ := h.spawn(t)
	th, q := h.spawn(t)

	_, err := h.sys.SetTimer(q, 0, msgqueue.WMTimer, 1, 10*time.Millisecond, 0)
	require.NoError(t, err)
	h.clock.Advance(10 * time.Millisecond)
	require.NoError(t, h.r.RunOnce())

	h.sys.IncPaintCount(q, 9, 1)
	require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Msg: 0x201}, false))
	require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Msg: 0x100}, true))
	h.sys.PostQuit(q, 3)
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Msg: 0x400}))
	_, err = h.sys.Send(sender, th, &msgqueue.Message{Type: msgqueue.MsgNotify, Msg: 0x500}, msgqueue.SendOptions{})
	require.NoError(t, err)

	want := []struct {
		typ msgqueue.MsgType
		msg uint32
	}{
		{msgqueue.MsgNotify, 0x500},
		{msgqueue.MsgPosted, 0x400},
		{msgqueue.MsgPosted, msgqueue.WMQuit},
		{msgqueue.MsgHardware, 0x100},
		{msgqueue.MsgHardware, 0x201},
		{msgqueue.MsgPosted, msgqueue.WMPaint},
	}
	for i, w := range want {
		m := get(t, h, q, msgqueue.GetRemove)
		assert.Equal(t, w.msg, m.Msg, "step %d", i)
		assert.Equal(t, w.typ, m.Type, "step %d", i)
		if m.Msg == msgqueue.WMQuit {
			assert.Equal(t, uint64(3), m.WParam)
		}
	}

	m := get(t, h, q, msgqueue.GetRemove)
	assert.Equal(t, msgqueue.WMPaint, m.Msg, "paint stays until the count drops")
	h.sys.IncPaintCount(q, 9, -1)
	m = get(t, h, q, msgqueue.GetRemove)
	assert.Equal(t, msgqueue.WMTimer, m.Msg)
	assert.Equal(t, uint64(1), m.WParam)
	_, err = h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)
	wakeBits, _ := q.Status(false)
	assert.Zero(t, wakeBits)
}

func TestMouseMovesCoalesce(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)

	for i := int32(1); i <= 3; i++ {
		require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Win: 1, Msg: msgqueue.WMMouseMove, X: i, Y: i * 10}, true))
	}
	require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Win: 2, Msg: msgqueue.WMMouseMove, X: 4}, true))
	require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Win: 2, Msg: 0x201}, true))
	require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Win: 2, Msg: msgqueue.WMMouseMove, X: 5}, true))

	m := get(t, h, q, msgqueue.GetRemove)
	assert.Equal(t, uint32(1), m.Win)
	assert.Equal(t, int32(3), m.X)
	assert.Equal(t, int32(30), m.Y)

	var xs []int32
	for {
		m, err := h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
		if err != nil {
			require.ErrorIs(t, err, api.ErrPending)
			break
		}
		xs = append(xs, m.X)
	}
	assert.Equal(t, []int32{4, 0, 5}, xs, "a click separates moves")
}

func TestPostedMouseMovesCoalesce(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)

	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 1, Msg: msgqueue.WMMouseMove, LParam: 1}))
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 1, Msg: msgqueue.WMMouseMove, LParam: 2}))
	m := get(t, h, q, msgqueue.GetRemove)
	assert.Equal(t, uint64(2), m.LParam, "the newer move wins")
	_, err := h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)

	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 1, Msg: msgqueue.WMMouseMove}))
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 1, Msg: 0x401}))
	assert.Equal(t, msgqueue.WMMouseMove, get(t, h, q, msgqueue.GetRemove).Msg)
	assert.Equal(t, uint32(0x401), get(t, h, q, msgqueue.GetRemove).Msg)
}

func TestRawInputHonoursFilterAndPeek(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	require.NoError(t, h.sys.SendHardware(th, &msgqueue.Message{Win: 1, Msg: 0x201}, false))

	_, err := h.sys.GetMessage(q, msgqueue.Filter{Win: 2, First: 0x100, Last: 0x109}, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)

	assert.Equal(t, uint32(0x201), get(t, h, q, 0).Msg)
	assert.Equal(t, uint32(0x201), get(t, h, q, 0).Msg, "peek leaves raw input queued")
	assert.Equal(t, uint32(0x201), get(t, h, q, msgqueue.GetRemove).Msg)
	_, err = h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)
}

func TestPeekedMessageDroppedByRemoveLast(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Msg: 0x401}))
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Msg: 0x402}))

	assert.Equal(t, uint32(0x401), get(t, h, q, 0).Msg)
	assert.Equal(t, uint32(0x401), get(t, h, q, 0).Msg, "peek leaves the message queued")
	assert.Equal(t, uint32(0x402), get(t, h, q, msgqueue.GetRemoveLast).Msg)
	assert.Equal(t, uint32(0x402), get(t, h, q, msgqueue.GetRemove).Msg)
	_, err := h.sys.GetMessage(q, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)
}

func TestFilterSelectsWindowAndRange(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 1, Msg: 0x400}))
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 2, Msg: 0x401}))
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Win: 2, Msg: 0x500}))

	m, err := h.sys.GetMessage(q, msgqueue.Filter{Win: 2, First: 0x500, Last: 0x5ff}, msgqueue.GetRemove)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x500), m.Msg)

	m, err = h.sys.GetMessage(q, msgqueue.Filter{Win: 2, First: 1, Last: 0}, msgqueue.GetRemove)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x401), m.Msg, "inverted range matches every code")

	_, err = h.sys.GetMessage(q, msgqueue.Filter{Win: 3, First: 1, Last: 0}, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending)

	_, err = h.sys.GetMessage(q, msgqueue.Filter{First: 0x12, Last: 0x12}, 0)
	require.ErrorIs(t, err, api.ErrPending)
	wakeBits, _ := q.Status(false)
	assert.NotZero(t, wakeBits&msgqueue.QSPostMessage)
}

func TestQueueWakesWaitingThread(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	hv, err := th.Process().AllocHandle(q, api.Synchronize, 0)
	require.NoError(t, err)

	wake, changed := q.SetMask(msgqueue.QSPostMessage, 0, false)
	assert.Zero(t, wake)
	assert.Zero(t, changed)
	st, err := h.k.Select(th, kernel.SelectRequest{Handles: []api.Handle{hv}, Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	require.Equal(t, api.StatusPending, st)

	h.sys.IncPaintCount(q, 1, 1)
	require.Empty(t, h.wakes, "paint is outside the mask")

	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Msg: 0x400}))
	require.Len(t, h.wakes, 1)
	assert.Equal(t, api.StatusWait0, h.wakes[0].status)
	assert.False(t, q.Signaled(nil), "satisfied wait clears the masks")
}

func TestSetMaskSkipWait(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Msg: 0x400}))

	wake, changed := q.SetMask(msgqueue.QSPostMessage, msgqueue.QSPostMessage, true)
	assert.Equal(t, msgqueue.QSPostMessage, wake)
	assert.Equal(t, msgqueue.QSPostMessage, changed)
	assert.False(t, q.Signaled(nil))

	_, changed = q.Status(true)
	assert.Equal(t, msgqueue.QSPostMessage, changed)
	wake, changed = q.Status(false)
	assert.Equal(t, msgqueue.QSPostMessage, wake)
	assert.Zero(t, changed)
}

func TestThreadExitTearsQueueDown(t *testing.T) {
	h := newHarness(t)
	th, q := h.spawn(t)
	_, err := h.sys.SetTimer(q, 1, msgqueue.WMTimer, 1, time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, h.sys.Post(th, &msgqueue.Message{Msg: 0x400, Data: []byte("x")}))
	require.Equal(t, 1, h.r.PendingTimeouts())

	h.k.KillThread(th, 0)
	assert.Zero(t, h.r.PendingTimeouts())
	assert.True(t, q.Destroyed(), "the thread held the only queue reference")
	require.ErrorIs(t, h.sys.Post(th, &msgqueue.Message{}), api.ErrInvalidParameter)

	kernel.Release(th)
	assert.Zero(t, h.k.LiveObjects())
}
