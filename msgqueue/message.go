// File: msgqueue/message.go
// Author: momentics <momentics@gmail.com>
//
// Message records, filters and wire-visible constants.

package msgqueue

import (
	"container/list"
)

// Window message codes the queue interprets itself.
const (
	WMNull      uint32 = 0x0000
	WMPaint     uint32 = 0x000f
	WMQuit      uint32 = 0x0012
	WMKeyFirst  uint32 = 0x0100
	WMKeyLast   uint32 = 0x0109
	WMTimer     uint32 = 0x0113
	WMSysTimer  uint32 = 0x0118
	WMMouseMove uint32 = 0x0200
)

// Queue status bits.
const (
	QSKey         uint32 = 0x0001
	QSMouseMove   uint32 = 0x0002
	QSMouseButton uint32 = 0x0004
	QSPostMessage uint32 = 0x0008
	QSTimer       uint32 = 0x0010
	QSPaint       uint32 = 0x0020
	QSSendMessage uint32 = 0x0040
	QSHotkey      uint32 = 0x0080
	QSSMResult    uint32 = 0x8000

	qsInput = QSKey | QSMouseMove | QSMouseButton
)

// MsgType tells the receiver how a message was delivered.
type MsgType uint32

const (
	// MsgSend expects a reply; the sender waits for it.
	MsgSend MsgType = iota
	// MsgNotify is sent but never replied to.
	MsgNotify
	// MsgCallback delivers its reply back to the sender as a
	// MsgCallbackResult message instead of blocking the sender.
	MsgCallback
	// MsgCallbackResult carries the reply to a MsgCallback.
	MsgCallbackResult
	// MsgPosted is fire-and-forget.
	MsgPosted
	// MsgHardware is queued input.
	MsgHardware
)

var msgTypeNames = [...]string{"send", "notify", "callback", "callback_result", "posted", "hardware"}

func (t MsgType) String() string {
	if int(t) < len(msgTypeNames) {
		return msgTypeNames[t]
	}
	return "unknown"
}

// Get flags.
const (
	GetRemove     uint32 = 0x1
	GetSentOnly   uint32 = 0x2
	GetRemoveLast uint32 = 0x4
)

type listKind int

const (
	sentList listKind = iota
	postedList
	cookedHWList
	rawHWList
	numLists
)

// Message is one queued message. Data is owned by the message once queued.
type Message struct {
	Type   MsgType
	Win    uint32
	Msg    uint32
	WParam uint64
	LParam uint64
	Info   uint64
	X, Y   int32
	Time   uint32
	Data   []byte

	result *Result
	elem   *list.Element
}

// Filter selects messages by window and code range. A First greater than
// Last matches every code.
type Filter struct {
	Win   uint32
	First uint32
	Last  uint32
}

// AnyMessage matches everything.
var AnyMessage = Filter{First: 0, Last: ^uint32(0)}

func (f Filter) matchCode(msg uint32) bool {
	if f.First > f.Last {
		return true
	}
	return msg >= f.First && msg <= f.Last
}

func (f Filter) match(win, msg uint32) bool {
	if f.Win != 0 && win != f.Win {
		return false
	}
	return f.matchCode(msg)
}

func isKeyboardMsg(msg uint32) bool {
	return msg >= WMKeyFirst && msg <= WMKeyLast
}

// hardwareBit returns the wake bit raised by hardware message msg.
func hardwareBit(msg uint32) uint32 {
	switch {
	case msg == WMMouseMove:
		return QSMouseMove
	case isKeyboardMsg(msg):
		return QSKey
	default:
		return QSMouseButton
	}
}

// detach returns a copy safe to hand out after the original is freed.
func (m *Message) detach() Message {
	out := *m
	out.result = nil
	out.elem = nil
	return out
}
