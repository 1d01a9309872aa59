// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Fixed-layout request/reply codec spoken between clients and the broker.
//
// Every frame is a little-endian header, a fixed body whose layout is
// determined by the request code, and VarSize bytes of variable data
// (object names, handle arrays, message payloads).

package protocol

import "fmt"

// Code identifies a request.
type Code uint16

const (
	CodeInitProcess Code = iota
	CodeInitThread
	CodeTerminateThread
	CodeTerminateProcess
	CodeCloseHandle
	CodeDupHandle
	CodeSetHandleInfo
	CodeOpenProcess
	CodeOpenThread
	CodeCreateEvent
	CodeOpenEvent
	CodeEventOp
	CodeCreateMutex
	CodeReleaseMutex
	CodeCreateSemaphore
	CodeReleaseSemaphore
	CodeSelect
	CodeQueueAPC
	CodeGetAPC
	CodeGetMsgQueue
	CodeSetQueueMask
	CodeGetQueueStatus
	CodeSendMessage
	CodePostMessage
	CodePostQuitMessage
	CodeSendHardwareMessage
	CodeGetMessage
	CodeReplyMessage
	CodeGetMessageReply
	CodeSetWinTimer
	CodeKillWinTimer
	CodeIncPaintCount

	NumCodes
)

var codeNames = [NumCodes]string{
	"init_process", "init_thread", "terminate_thread", "terminate_process",
	"close_handle", "dup_handle", "set_handle_info", "open_process", "open_thread",
	"create_event", "open_event", "event_op", "create_mutex", "release_mutex",
	"create_semaphore", "release_semaphore", "select", "queue_apc", "get_apc",
	"get_msg_queue", "set_queue_mask", "get_queue_status", "send_message",
	"post_message", "post_quit_message", "send_hardware_message", "get_message",
	"reply_message", "get_message_reply", "set_win_timer", "kill_win_timer",
	"inc_paint_count",
}

func (c Code) String() string {
	if c < NumCodes {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

// Valid reports whether c names a known request.
func (c Code) Valid() bool { return c < NumCodes }
