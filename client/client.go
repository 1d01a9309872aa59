// File: client/client.go
// Package client is a blocking client for the broker: one Client is one
// broker thread.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Requests are answered in order, so a Client runs one request at a time.
// Wake frames that arrive while a reply is awaited are kept until Wait
// asks for their cookie.

package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/protocol"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client closed")

// Config holds client parameters.
type Config struct {
	Path string // broker socket
	// JoinPID, when set, attaches the connection as a new thread of that
	// process instead of starting a process.
	JoinPID   uint32
	ParentPID uint32
	Inherit   bool
	// CallTimeout bounds every round trip when the context has no deadline.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Client is one broker connection.
type Client struct {
	cfg    Config
	log    *zap.Logger
	mu     sync.Mutex
	conn   net.Conn
	buf    []byte
	wakes  map[uint64]api.Status
	cookie uint64
	closed bool

	pid uint32
	tid uint32
}

// Dial connects to the broker and performs the init handshake.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Path, err)
	}
	c := &Client{cfg: cfg, log: cfg.Logger, conn: conn, wakes: make(map[uint64]api.Status)}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	var rep protocol.InitReply
	if cfg.JoinPID != 0 {
		_, _, err = c.Call(ctx, protocol.CodeInitThread, &protocol.InitThreadRequest{PID: cfg.JoinPID}, nil, &rep)
	} else {
		req := &protocol.InitProcessRequest{ParentPID: cfg.ParentPID}
		if cfg.Inherit {
			req.Inherit = 1
		}
		_, _, err = c.Call(ctx, protocol.CodeInitProcess, req, nil, &rep)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.pid, c.tid = rep.PID, rep.TID
	c.log = c.log.With(zap.Uint32("pid", c.pid), zap.Uint32("tid", c.tid))
	return c, nil
}

// PID returns the broker process id of this client.
func (c *Client) PID() uint32 { return c.pid }

// TID returns the broker thread id of this client.
func (c *Client) TID() uint32 { return c.tid }

// Close drops the connection; the broker ends the thread.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Call sends one request and decodes its reply into reply, which must be
// the success body type of code or nil. Error statuses come back as api
// errors; other statuses (pending, timeout, wait indices) are returned as is.
func (c *Client) Call(ctx context.Context, code protocol.Code, body any, data []byte, reply any) (api.Status, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, ErrClosed
	}
	raw, err := protocol.AppendRequest(nil, code, body, data)
	if err != nil {
		return 0, nil, err
	}
	if err := c.setDeadline(ctx); err != nil {
		return 0, nil, err
	}
	if _, err := c.conn.Write(raw); err != nil {
		return 0, nil, fmt.Errorf("%s: %w", code, err)
	}
	for {
		f, err := c.readFrame(protocol.ReplyBodySize(reply))
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", code, err)
		}
		if f.Header.Kind == protocol.KindWake {
			c.wakes[f.Wake.Cookie] = f.Wake.Status
			continue
		}
		st := f.Header.Status
		if err := api.ErrorOf(st); err != nil {
			return st, nil, err
		}
		if st != api.StatusSuccess {
			return st, nil, nil
		}
		rest, err := f.DecodeBody(reply)
		return st, rest, err
	}
}

// awaitWake blocks until the wake frame for cookie arrives.
func (c *Client) awaitWake(ctx context.Context, cookie uint64) (api.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if st, ok := c.wakes[cookie]; ok {
			delete(c.wakes, cookie)
			return st, nil
		}
		if c.closed {
			return 0, ErrClosed
		}
		if err := c.setDeadline(ctx); err != nil {
			return 0, err
		}
		f, err := c.readFrame(nil)
		if err != nil {
			return 0, err
		}
		if f.Header.Kind != protocol.KindWake {
			c.log.Warn("unexpected reply while waiting", zap.Stringer("status", f.Header.Status))
			continue
		}
		c.wakes[f.Wake.Cookie] = f.Wake.Status
	}
}

func (c *Client) setDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok && c.cfg.CallTimeout > 0 {
		deadline = time.Now().Add(c.cfg.CallTimeout)
	}
	return c.conn.SetDeadline(deadline)
}

func (c *Client) readFrame(bodySize func(api.Status) int) (*protocol.Frame, error) {
	var chunk [4096]byte
	for {
		f, n, err := protocol.DecodeFrame(c.buf, bodySize)
		if err != nil {
			return nil, err
		}
		if f != nil {
			c.buf = append(c.buf[:0], c.buf[n:]...)
			return f, nil
		}
		n, err = c.conn.Read(chunk[:])
		if err != nil {
			return nil, err
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}
