// File: protocol/messages.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request and reply bodies. Every struct here has a fixed binary size;
// blank fields are padding.

package protocol

// Event operations for EventOpRequest.Op.
const (
	EventSet uint32 = iota
	EventReset
	EventPulse
)

type InitProcessRequest struct {
	ParentPID uint32
	Inherit   uint32
}

type InitThreadRequest struct {
	PID uint32
	_   uint32
}

// InitReply answers both init requests.
type InitReply struct {
	PID uint32
	TID uint32
}

// TerminateRequest names a thread or process handle.
type TerminateRequest struct {
	Handle   uint32
	ExitCode uint32
}

// TerminateReply reports whether the caller killed itself.
type TerminateReply struct {
	Self uint32
	_    uint32
}

type CloseHandleRequest struct {
	Handle uint32
	_      uint32
}

type DupHandleRequest struct {
	SrcProcess uint32
	SrcHandle  uint32
	DstProcess uint32
	Access     uint32
	Attributes uint32
	Options    uint32
}

// HandleReply carries a newly allocated handle.
type HandleReply struct {
	Handle uint32
	_      uint32
}

type SetHandleInfoRequest struct {
	Handle uint32
	Mask   uint32
	Flags  uint32
	_      uint32
}

type SetHandleInfoReply struct {
	OldFlags uint32
	_        uint32
}

// OpenIDRequest opens a process or thread by id.
type OpenIDRequest struct {
	ID         uint32
	Access     uint32
	Attributes uint32
	_          uint32
}

// CreateEventRequest is followed by the optional object name.
type CreateEventRequest struct {
	Access       uint32
	Attributes   uint32
	ManualReset  uint32
	InitialState uint32
}

// CreateReply answers every create request.
type CreateReply struct {
	Handle  uint32
	Existed uint32
}

// OpenNamedRequest is followed by the object name.
type OpenNamedRequest struct {
	Access     uint32
	Attributes uint32
}

type EventOpRequest struct {
	Handle uint32
	Op     uint32
}

type CreateMutexRequest struct {
	Access     uint32
	Attributes uint32
	Owned      uint32
	_          uint32
}

type ReleaseMutexRequest struct {
	Handle uint32
	_      uint32
}

// CountReply carries a previous count.
type CountReply struct {
	Prev uint32
	_    uint32
}

type CreateSemaphoreRequest struct {
	Access     uint32
	Attributes uint32
	Initial    uint32
	Max        uint32
}

type ReleaseSemaphoreRequest struct {
	Handle uint32
	Count  uint32
}

// SelectRequest is followed by the handle array, four bytes per handle.
// A negative TimeoutMs waits forever.
type SelectRequest struct {
	Flags        uint32
	SignalHandle uint32
	Cookie       uint64
	TimeoutMs    int64
}

type QueueAPCRequest struct {
	Thread uint32
	_      uint32
	Func   uint64
	Args   [3]uint64
}

type GetAPCReply struct {
	Found uint32
	_     uint32
	Func  uint64
	Args  [3]uint64
}

type SetQueueMaskRequest struct {
	WakeMask    uint32
	ChangedMask uint32
	SkipWait    uint32
	_           uint32
}

// QueueBitsReply carries the wake and changed bits of a queue.
type QueueBitsReply struct {
	WakeBits    uint32
	ChangedBits uint32
}

type GetQueueStatusRequest struct {
	Clear uint32
	_     uint32
}

// SendMessageRequest is followed by the message payload.
type SendMessageRequest struct {
	TID          uint32
	Type         uint32
	Win          uint32
	Msg          uint32
	WParam       uint64
	LParam       uint64
	Info         uint64
	TimeoutMs    int64
	Callback     uint64
	CallbackData uint64
}

type PostMessageRequest struct {
	TID    uint32
	Win    uint32
	Msg    uint32
	_      uint32
	WParam uint64
	LParam uint64
	Info   uint64
}

type PostQuitMessageRequest struct {
	ExitCode uint32
	_        uint32
}

type SendHardwareMessageRequest struct {
	TID    uint32
	Win    uint32
	Msg    uint32
	Cooked uint32
	X, Y   int32
	Time   uint32
	_      uint32
	WParam uint64
	LParam uint64
	Info   uint64
}

type GetMessageRequest struct {
	Flags uint32
	Win   uint32
	First uint32
	Last  uint32
}

// GetMessageReply is followed by the message payload.
type GetMessageReply struct {
	Type   uint32
	Win    uint32
	Msg    uint32
	X, Y   int32
	Time   uint32
	WParam uint64
	LParam uint64
	Info   uint64
}

// ReplyMessageRequest is followed by the reply payload.
type ReplyMessageRequest struct {
	Remove uint32
	_      uint32
	Result uint64
}

type GetMessageReplyRequest struct {
	Cancel uint32
	_      uint32
}

// MessageReplyReply is followed by the reply payload.
type MessageReplyReply struct {
	Replied uint32
	_       uint32
	Result  uint64
}

type SetWinTimerRequest struct {
	Win    uint32
	Msg    uint32
	ID     uint32
	RateMs uint32
	LParam uint64
}

type SetWinTimerReply struct {
	ID uint32
	_  uint32
}

type KillWinTimerRequest struct {
	Win uint32
	Msg uint32
	ID  uint32
	_   uint32
}

type IncPaintCountRequest struct {
	Win   uint32
	Delta int32
}

// Empty is the body of requests and replies without fixed fields.
type Empty struct{}

// NewRequestBody returns a zeroed body for c, or nil for an unknown code.
func NewRequestBody(c Code) any {
	switch c {
	case CodeInitProcess:
		return new(InitProcessRequest)
	case CodeInitThread:
		return new(InitThreadRequest)
	case CodeTerminateThread, CodeTerminateProcess:
		return new(TerminateRequest)
	case CodeCloseHandle:
		return new(CloseHandleRequest)
	case CodeDupHandle:
		return new(DupHandleRequest)
	case CodeSetHandleInfo:
		return new(SetHandleInfoRequest)
	case CodeOpenProcess, CodeOpenThread:
		return new(OpenIDRequest)
	case CodeCreateEvent:
		return new(CreateEventRequest)
	case CodeOpenEvent:
		return new(OpenNamedRequest)
	case CodeEventOp:
		return new(EventOpRequest)
	case CodeCreateMutex:
		return new(CreateMutexRequest)
	case CodeReleaseMutex:
		return new(ReleaseMutexRequest)
	case CodeCreateSemaphore:
		return new(CreateSemaphoreRequest)
	case CodeReleaseSemaphore:
		return new(ReleaseSemaphoreRequest)
	case CodeSelect:
		return new(SelectRequest)
	case CodeQueueAPC:
		return new(QueueAPCRequest)
	case CodeGetAPC, CodeGetMsgQueue:
		return new(Empty)
	case CodeSetQueueMask:
		return new(SetQueueMaskRequest)
	case CodeGetQueueStatus:
		return new(GetQueueStatusRequest)
	case CodeSendMessage:
		return new(SendMessageRequest)
	case CodePostMessage:
		return new(PostMessageRequest)
	case CodePostQuitMessage:
		return new(PostQuitMessageRequest)
	case CodeSendHardwareMessage:
		return new(SendHardwareMessageRequest)
	case CodeGetMessage:
		return new(GetMessageRequest)
	case CodeReplyMessage:
		return new(ReplyMessageRequest)
	case CodeGetMessageReply:
		return new(GetMessageReplyRequest)
	case CodeSetWinTimer:
		return new(SetWinTimerRequest)
	case CodeKillWinTimer:
		return new(KillWinTimerRequest)
	case CodeIncPaintCount:
		return new(IncPaintCountRequest)
	}
	return nil
}
