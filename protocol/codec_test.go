package protocol_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/protocol"
)

func TestEveryCodeHasFixedBody(t *testing.T) {
	for c := protocol.Code(0); c < protocol.NumCodes; c++ {
		body := protocol.NewRequestBody(c)
		require.NotNil(t, body, c.String())
		assert.GreaterOrEqual(t, binary.Size(body), 0, c.String())
		assert.NotContains(t, c.String(), "code(", "missing name")
	}
	assert.Nil(t, protocol.NewRequestBody(protocol.NumCodes))
	assert.False(t, protocol.NumCodes.Valid())
}

func TestDecodeRequestIncremental(t *testing.T) {
	raw, err := protocol.AppendRequest(nil, protocol.CodeCreateEvent,
		&protocol.CreateEventRequest{Access: api.GenericAll, ManualReset: 1}, []byte("evt"))
	require.NoError(t, err)
	require.Len(t, raw, protocol.RequestHeaderSize+16+3)

	for n := 0; n < len(raw); n++ {
		req, used, err := protocol.DecodeRequest(raw[:n], protocol.DefaultMaxVarSize)
		require.NoError(t, err)
		require.Nil(t, req, "prefix of %d bytes", n)
		require.Zero(t, used)
	}

	// two frames back to back
	raw2, err := protocol.AppendRequest(raw, protocol.CodeGetMsgQueue, nil, nil)
	require.NoError(t, err)
	req, used, err := protocol.DecodeRequest(raw2, protocol.DefaultMaxVarSize)
	require.NoError(t, err)
	require.Equal(t, len(raw), used)
	assert.Equal(t, protocol.CodeCreateEvent, req.Code)
	body := req.Body.(*protocol.CreateEventRequest)
	assert.Equal(t, api.GenericAll, body.Access)
	assert.Equal(t, uint32(1), body.ManualReset)
	assert.Equal(t, []byte("evt"), req.Data)

	raw[len(raw)-1] = 'X'
	assert.Equal(t, []byte("evt"), req.Data, "variable data is copied")

	req, used, err = protocol.DecodeRequest(raw2[used:], protocol.DefaultMaxVarSize)
	require.NoError(t, err)
	assert.Equal(t, protocol.RequestHeaderSize, used)
	assert.Equal(t, protocol.CodeGetMsgQueue, req.Code)
	assert.Nil(t, req.Data)
}

func TestDecodeRequestRejectsMalformed(t *testing.T) {
	raw, err := protocol.AppendRequest(nil, protocol.CodePostMessage, &protocol.PostMessageRequest{}, make([]byte, 100))
	require.NoError(t, err)
	_, _, err = protocol.DecodeRequest(raw, 64)
	require.ErrorIs(t, err, api.ErrInvalidParameter)

	bad := []byte{0xff, 0xff, 0, 0, 0, 0, 0, 0}
	_, _, err = protocol.DecodeRequest(bad, protocol.DefaultMaxVarSize)
	require.ErrorIs(t, err, api.ErrNotSupported)
}

func TestReplyAndWakeFrames(t *testing.T) {
	out, err := protocol.AppendReply(nil, api.StatusSuccess, &protocol.CreateReply{Handle: 4, Existed: 1}, nil)
	require.NoError(t, err)
	out, err = protocol.AppendReply(out, api.StatusInvalidHandle, nil, nil)
	require.NoError(t, err)
	out = protocol.AppendWake(out, protocol.WakeUp{Cookie: 0xfeed, Status: api.StatusTimeout})

	f, n, err := protocol.DecodeFrame(out, protocol.ReplyBodySize(&protocol.CreateReply{}))
	require.NoError(t, err)
	var cr protocol.CreateReply
	rest, err := f.DecodeBody(&cr)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, uint32(4), cr.Handle)
	assert.Equal(t, uint32(1), cr.Existed)
	out = out[n:]

	f, n, err = protocol.DecodeFrame(out, protocol.ReplyBodySize(&protocol.CreateReply{}))
	require.NoError(t, err)
	assert.Equal(t, protocol.KindReply, f.Header.Kind)
	assert.Equal(t, api.StatusInvalidHandle, f.Header.Status)
	assert.Empty(t, f.Body)
	out = out[n:]

	f, n, err = protocol.DecodeFrame(out, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindWake, f.Header.Kind)
	assert.Equal(t, uint64(0xfeed), f.Wake.Cookie)
	assert.Equal(t, api.StatusTimeout, f.Wake.Status)
	assert.Equal(t, len(out), n)
}

func TestReplyCarriesVariableData(t *testing.T) {
	out, err := protocol.AppendReply(nil, api.StatusSuccess, &protocol.MessageReplyReply{Replied: 1, Result: 42}, []byte("payload"))
	require.NoError(t, err)

	_, n, err := protocol.DecodeFrame(out[:len(out)-1], protocol.ReplyBodySize(&protocol.MessageReplyReply{}))
	require.NoError(t, err)
	require.Zero(t, n)

	f, _, err := protocol.DecodeFrame(out, protocol.ReplyBodySize(&protocol.MessageReplyReply{}))
	require.NoError(t, err)
	var r protocol.MessageReplyReply
	data, err := f.DecodeBody(&r)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), r.Result)
	assert.Equal(t, []byte("payload"), data)
}

func TestUnknownFrameKind(t *testing.T) {
	_, _, err := protocol.DecodeFrame(make([]byte, protocol.ReplyHeaderSize), nil)
	require.Error(t, err)
}
