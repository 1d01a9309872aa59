// File: server/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request dispatch table.

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/protocol"
)

type result struct {
	status api.Status
	body   any
	data   []byte
}

func ok(body any) (result, error) {
	return result{status: api.StatusSuccess, body: body}, nil
}

func okData(body any, data []byte) (result, error) {
	return result{status: api.StatusSuccess, body: body, data: data}, nil
}

type handlerFunc func(b *Broker, c *conn, req *protocol.Request) (result, error)

var handlers = [protocol.NumCodes]handlerFunc{
	protocol.CodeInitProcess:         handleInitProcess,
	protocol.CodeInitThread:          handleInitThread,
	protocol.CodeTerminateThread:     handleTerminateThread,
	protocol.CodeTerminateProcess:    handleTerminateProcess,
	protocol.CodeCloseHandle:         handleCloseHandle,
	protocol.CodeDupHandle:           handleDupHandle,
	protocol.CodeSetHandleInfo:       handleSetHandleInfo,
	protocol.CodeOpenProcess:         handleOpenProcess,
	protocol.CodeOpenThread:          handleOpenThread,
	protocol.CodeCreateEvent:         handleCreateEvent,
	protocol.CodeOpenEvent:           handleOpenEvent,
	protocol.CodeEventOp:             handleEventOp,
	protocol.CodeCreateMutex:         handleCreateMutex,
	protocol.CodeReleaseMutex:        handleReleaseMutex,
	protocol.CodeCreateSemaphore:     handleCreateSemaphore,
	protocol.CodeReleaseSemaphore:    handleReleaseSemaphore,
	protocol.CodeSelect:              handleSelect,
	protocol.CodeQueueAPC:            handleQueueAPC,
	protocol.CodeGetAPC:              handleGetAPC,
	protocol.CodeGetMsgQueue:         handleGetMsgQueue,
	protocol.CodeSetQueueMask:        handleSetQueueMask,
	protocol.CodeGetQueueStatus:      handleGetQueueStatus,
	protocol.CodeSendMessage:         handleSendMessage,
	protocol.CodePostMessage:         handlePostMessage,
	protocol.CodePostQuitMessage:     handlePostQuitMessage,
	protocol.CodeSendHardwareMessage: handleSendHardwareMessage,
	protocol.CodeGetMessage:          handleGetMessage,
	protocol.CodeReplyMessage:        handleReplyMessage,
	protocol.CodeGetMessageReply:     handleGetMessageReply,
	protocol.CodeSetWinTimer:         handleSetWinTimer,
	protocol.CodeKillWinTimer:        handleKillWinTimer,
	protocol.CodeIncPaintCount:       handleIncPaintCount,
}

// dispatch runs one request and sends exactly one reply. A failing handler
// leaves no partial state behind; its error becomes the reply status.
func (b *Broker) dispatch(c *conn, req *protocol.Request) {
	b.metrics.Add("requests."+req.Code.String(), 1)
	var (
		res result
		err error
	)
	switch {
	case c.thread == nil && req.Code != protocol.CodeInitProcess && req.Code != protocol.CodeInitThread:
		err = api.ErrAccessDenied.WithContext("reason", "connection not initialized")
	case c.thread != nil && c.thread.Terminated():
		err = api.ErrProcessTerminating
	default:
		res, err = handlers[req.Code](b, c, req)
	}
	if err != nil {
		b.metrics.Add("errors", 1)
		c.log.Debug("request failed", zap.Stringer("code", req.Code), zap.Error(err))
		res = result{status: api.StatusOf(err)}
	}
	frame, ferr := protocol.AppendReply(b.frames.Get(), res.status, res.body, res.data)
	if ferr != nil {
		c.log.Error("encode reply", zap.Stringer("code", req.Code), zap.Error(ferr))
		frame, _ = protocol.AppendReply(nil, api.StatusInternalError, nil, nil)
	}
	c.send(frame)
	b.updateGauges()
}
