package msgqueue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/msgqueue"
)

func TestSendReplyRoundTrip(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)

	res, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Win: 7, Msg: 0x400, WParam: 1, LParam: 2}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 1, h.sys.LiveResults())

	wakeBits, _ := rq.Status(false)
	assert.NotZero(t, wakeBits&msgqueue.QSSendMessage)

	_, err = h.sys.GetMessageReply(sq, false)
	require.ErrorIs(t, err, api.ErrPending)

	m := get(t, h, rq, 0)
	assert.Equal(t, msgqueue.MsgSend, m.Type)
	assert.Equal(t, uint32(7), m.Win)
	assert.Equal(t, uint32(0x400), m.Msg)
	assert.Equal(t, uint64(1), m.WParam)
	assert.Equal(t, uint64(2), m.LParam)
	wakeBits, _ = rq.Status(false)
	assert.Zero(t, wakeBits&msgqueue.QSSendMessage, "sent list drained")

	require.NoError(t, h.sys.ReplyMessage(rq, 42, []byte("ok"), true))
	wakeBits, _ = sq.Status(false)
	assert.NotZero(t, wakeBits&msgqueue.QSSMResult)

	reply, err := h.sys.GetMessageReply(sq, false)
	require.NoError(t, err)
	assert.True(t, reply.Replied)
	assert.Equal(t, uint64(42), reply.Value)
	assert.Equal(t, []byte("ok"), reply.Data)
	assert.Zero(t, h.sys.LiveResults())

	_, err = h.sys.GetMessageReply(sq, false)
	require.ErrorIs(t, err, api.ErrAccessDenied, "a result is returned once")
	wakeBits, _ = sq.Status(false)
	assert.Zero(t, wakeBits&msgqueue.QSSMResult)
}

func TestSendTimeoutPullsUnreceivedMessage(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)
	start := h.clock.Now()

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x400}, msgqueue.SendOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	h.runUntilIdle(t)
	assert.Equal(t, 50*time.Millisecond, h.clock.Now().Sub(start))

	_, err = h.sys.GetMessageReply(sq, false)
	require.ErrorIs(t, err, api.ErrTimeout)
	assert.Zero(t, h.sys.LiveResults())

	_, err = h.sys.GetMessage(rq, msgqueue.AnyMessage, msgqueue.GetRemove)
	require.ErrorIs(t, err, api.ErrPending, "timed out message never reaches the receiver")
}

func TestTimeoutAfterReceiveFreedOnReply(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x400}, msgqueue.SendOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	get(t, h, rq, 0)
	h.runUntilIdle(t)

	_, err = h.sys.GetMessageReply(sq, false)
	require.ErrorIs(t, err, api.ErrTimeout)
	require.Equal(t, 1, h.sys.LiveResults(), "receiver still holds the result")

	require.NoError(t, h.sys.ReplyMessage(rq, 9, nil, true))
	assert.Zero(t, h.sys.LiveResults())
}

func TestEarlyReplyIsStoredOnce(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x400}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	get(t, h, rq, 0)

	require.NoError(t, h.sys.ReplyMessage(rq, 1, nil, false))
	require.NoError(t, h.sys.ReplyMessage(rq, 2, nil, true))
	err = h.sys.ReplyMessage(rq, 3, nil, true)
	require.ErrorIs(t, err, api.ErrInvalidParameter)

	reply, err := h.sys.GetMessageReply(sq, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reply.Value)
	assert.Zero(t, h.sys.LiveResults())
}

func TestNestedSendsReplyInnermostFirst(t *testing.T) {
	h := newHarness(t)
	a, aq := h.spawn(t)
	b, bq := h.spawn(t)

	_, err := h.sys.Send(a, b, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x401}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	_, err = h.sys.Send(a, b, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x402}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)

	require.Equal(t, uint32(0x401), get(t, h, bq, 0).Msg)
	require.Equal(t, uint32(0x402), get(t, h, bq, 0).Msg)
	require.NoError(t, h.sys.ReplyMessage(bq, 2, nil, true))
	require.NoError(t, h.sys.ReplyMessage(bq, 1, nil, true))

	reply, err := h.sys.GetMessageReply(aq, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reply.Value)
	reply, err = h.sys.GetMessageReply(aq, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), reply.Value)
	assert.Zero(t, h.sys.LiveResults())
}

func TestReceiverExitAnswersAccessDenied(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)

	for _, code := range []uint32{0x401, 0x402} {
		_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: code}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
		require.NoError(t, err)
	}
	get(t, h, rq, 0)
	h.k.KillThread(receiver, 0)

	for i := 0; i < 2; i++ {
		_, err := h.sys.GetMessageReply(sq, false)
		require.ErrorIs(t, err, api.ErrAccessDenied)
	}
	assert.Zero(t, h.sys.LiveResults())

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.ErrorIs(t, err, api.ErrInvalidParameter)
}

func TestSenderExitFreesOnReply(t *testing.T) {
	h := newHarness(t)
	sender, _ := h.spawn(t)
	receiver, rq := h.spawn(t)

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x400}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	h.k.KillThread(sender, 0)
	require.Equal(t, 1, h.sys.LiveResults())

	get(t, h, rq, 0)
	require.NoError(t, h.sys.ReplyMessage(rq, 1, nil, true))
	assert.Zero(t, h.sys.LiveResults())
}

func TestCancelledSendIsFreedByReceiver(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgSend, Msg: 0x400}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	reply, err := h.sys.GetMessageReply(sq, true)
	require.NoError(t, err)
	assert.False(t, reply.Replied)

	get(t, h, rq, 0)
	require.NoError(t, h.sys.ReplyMessage(rq, 1, nil, true))
	assert.Zero(t, h.sys.LiveResults())
}

func TestCallbackResultPostedToSender(t *testing.T) {
	h := newHarness(t)
	sender, sq := h.spawn(t)
	receiver, rq := h.spawn(t)

	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgCallback, Win: 3, Msg: 0x400},
		msgqueue.SendOptions{Timeout: api.InfiniteTimeout, Callback: 7, CallbackData: 9})
	require.NoError(t, err)
	_, err = h.sys.GetMessageReply(sq, false)
	require.ErrorIs(t, err, api.ErrAccessDenied, "callbacks do not block the sender")

	get(t, h, rq, 0)
	require.NoError(t, h.sys.ReplyMessage(rq, 5, nil, true))
	assert.Zero(t, h.sys.LiveResults())

	m := get(t, h, sq, 0)
	assert.Equal(t, msgqueue.MsgCallbackResult, m.Type)
	assert.Equal(t, uint32(3), m.Win)
	assert.Equal(t, uint64(7), m.WParam)
	assert.Equal(t, uint64(9), m.LParam)
	assert.Equal(t, uint64(5), m.Info)
}

func TestNotifyCarriesNoResult(t *testing.T) {
	h := newHarness(t)
	sender, _ := h.spawn(t)
	receiver, rq := h.spawn(t)

	res, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgNotify, Msg: 0x400}, msgqueue.SendOptions{Timeout: api.InfiniteTimeout})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, msgqueue.MsgNotify, get(t, h, rq, 0).Type)
	require.ErrorIs(t, h.sys.ReplyMessage(rq, 0, nil, true), api.ErrInvalidParameter)
}

func TestSendRejectsPostedType(t *testing.T) {
	h := newHarness(t)
	sender, _ := h.spawn(t)
	receiver, _ := h.spawn(t)
	_, err := h.sys.Send(sender, receiver, &msgqueue.Message{Type: msgqueue.MsgPosted}, msgqueue.SendOptions{})
	require.ErrorIs(t, err, api.ErrInvalidParameter)
}
