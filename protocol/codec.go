// File: protocol/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame encoding and incremental decoding. Decoders follow one convention:
// an incomplete buffer yields (nil, 0, nil) so the caller can wait for more
// bytes; a malformed frame yields an error and the stream is unusable.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/kbroker/api"
)

// Sizes of the fixed headers.
const (
	RequestHeaderSize = 8
	ReplyHeaderSize   = 12
	WakeSize          = 12
)

// DefaultMaxVarSize bounds the variable part of a frame.
const DefaultMaxVarSize = 64 << 10

// Reply kinds.
const (
	KindReply uint8 = 1
	KindWake  uint8 = 2
)

var order = binary.LittleEndian

// RequestHeader precedes every request.
type RequestHeader struct {
	Code    Code
	_       uint16
	VarSize uint32
}

// ReplyHeader precedes every reply and wake frame.
type ReplyHeader struct {
	Kind    uint8
	_       [3]byte
	Status  api.Status
	VarSize uint32
}

// WakeUp is the body of an asynchronous wake frame.
type WakeUp struct {
	Cookie uint64
	Status api.Status
}

// Request is one decoded request. Body points to the code's fixed struct;
// Data is a private copy of the variable part.
type Request struct {
	Code Code
	Body any
	Data []byte
}

// DecodeRequest parses one request from the front of raw and returns it
// with the number of bytes consumed.
func DecodeRequest(raw []byte, maxVar int) (*Request, int, error) {
	if len(raw) < RequestHeaderSize {
		return nil, 0, nil
	}
	code := Code(order.Uint16(raw[0:]))
	varSize := order.Uint32(raw[4:])
	body := NewRequestBody(code)
	if body == nil {
		return nil, 0, api.ErrNotSupported.WithContext("code", uint16(code))
	}
	if maxVar > 0 && uint64(varSize) > uint64(maxVar) {
		return nil, 0, api.ErrInvalidParameter.WithContext("var_size", varSize)
	}
	bodySize := binary.Size(body)
	total := RequestHeaderSize + bodySize + int(varSize)
	if len(raw) < total {
		return nil, 0, nil
	}
	off := RequestHeaderSize
	if bodySize > 0 {
		if _, err := binary.Decode(raw[off:off+bodySize], order, body); err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", code, err)
		}
		off += bodySize
	}
	req := &Request{Code: code, Body: body}
	if varSize > 0 {
		req.Data = append([]byte(nil), raw[off:total]...)
	}
	return req, total, nil
}

// AppendRequest encodes a request onto dst. Clients and tests use it.
func AppendRequest(dst []byte, code Code, body any, data []byte) ([]byte, error) {
	dst = order.AppendUint16(dst, uint16(code))
	dst = order.AppendUint16(dst, 0)
	dst = order.AppendUint32(dst, uint32(len(data)))
	dst, err := appendBody(dst, body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", code, err)
	}
	return append(dst, data...), nil
}

// AppendReply encodes a reply frame onto dst. A nil body encodes no fixed
// part, which is what error replies carry.
func AppendReply(dst []byte, status api.Status, body any, data []byte) ([]byte, error) {
	dst = append(dst, KindReply, 0, 0, 0)
	dst = order.AppendUint32(dst, uint32(status))
	dst = order.AppendUint32(dst, uint32(len(data)))
	dst, err := appendBody(dst, body)
	if err != nil {
		return nil, err
	}
	return append(dst, data...), nil
}

// AppendWake encodes an asynchronous wake frame onto dst.
func AppendWake(dst []byte, w WakeUp) []byte {
	dst = append(dst, KindWake, 0, 0, 0)
	dst = order.AppendUint32(dst, uint32(api.StatusSuccess))
	dst = order.AppendUint32(dst, 0)
	dst = order.AppendUint64(dst, w.Cookie)
	return order.AppendUint32(dst, uint32(w.Status))
}

func appendBody(dst []byte, body any) ([]byte, error) {
	if body == nil || binary.Size(body) == 0 {
		return dst, nil
	}
	return binary.Append(dst, order, body)
}

// Frame is one decoded server-to-client frame.
type Frame struct {
	Header ReplyHeader
	Wake   WakeUp
	Body   []byte // fixed part and variable data of a reply
}

// DecodeFrame parses one server frame. Replies carry bodySize fixed bytes
// before their variable data; the caller knows it from the request it sent
// and the returned status (error replies have no fixed part).
func DecodeFrame(raw []byte, bodySize func(api.Status) int) (*Frame, int, error) {
	if len(raw) < ReplyHeaderSize {
		return nil, 0, nil
	}
	f := &Frame{}
	f.Header.Kind = raw[0]
	f.Header.Status = api.Status(order.Uint32(raw[4:]))
	f.Header.VarSize = order.Uint32(raw[8:])
	switch f.Header.Kind {
	case KindWake:
		total := ReplyHeaderSize + WakeSize
		if len(raw) < total {
			return nil, 0, nil
		}
		f.Wake.Cookie = order.Uint64(raw[ReplyHeaderSize:])
		f.Wake.Status = api.Status(order.Uint32(raw[ReplyHeaderSize+8:]))
		return f, total, nil
	case KindReply:
		n := 0
		if bodySize != nil {
			n = bodySize(f.Header.Status)
		}
		total := ReplyHeaderSize + n + int(f.Header.VarSize)
		if len(raw) < total {
			return nil, 0, nil
		}
		f.Body = append([]byte(nil), raw[ReplyHeaderSize:total]...)
		return f, total, nil
	default:
		return nil, 0, fmt.Errorf("unknown frame kind %d", f.Header.Kind)
	}
}

// DecodeBody fills body from the fixed part of a reply and returns the
// variable data that follows.
func (f *Frame) DecodeBody(body any) ([]byte, error) {
	if body == nil {
		return f.Body, nil
	}
	n := binary.Size(body)
	if n < 0 || n > len(f.Body) {
		return nil, fmt.Errorf("reply body too short: %d < %d", len(f.Body), n)
	}
	if n > 0 {
		if _, err := binary.Decode(f.Body[:n], order, body); err != nil {
			return nil, err
		}
	}
	return f.Body[n:], nil
}

// ReplyBodySize is the bodySize function for a reply to a request whose
// success body is like body. Only StatusSuccess replies carry the fixed
// part; every other status, pending and timeout included, has none.
func ReplyBodySize(body any) func(api.Status) int {
	n := 0
	if body != nil {
		n = binary.Size(body)
	}
	return func(st api.Status) int {
		if st != api.StatusSuccess {
			return 0
		}
		return n
	}
}
