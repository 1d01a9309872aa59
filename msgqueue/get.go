// File: msgqueue/get.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Posting, hardware input and message retrieval.

package msgqueue

import (
	"github.com/momentics/kbroker/api"
	"github.com/momentics/kbroker/kernel"
)

// WMHotkey raises QSHotkey in addition to QSPostMessage.
const WMHotkey uint32 = 0x0312

func (s *System) target(to *kernel.Thread) (*Queue, error) {
	q, ok := QueueOf(to)
	if !ok || q.dead {
		return nil, api.ErrInvalidParameter.WithContext("tid", to.ID())
	}
	return q, nil
}

// Post appends m to to's posted list. A mouse move directly behind another
// one for the same window replaces it.
func (s *System) Post(to *kernel.Thread, m *Message) error {
	q, err := s.target(to)
	if err != nil {
		return err
	}
	m.Type = MsgPosted
	m.result = nil
	if m.Time == 0 {
		m.Time = s.tick()
	}
	if !q.mergeMessage(postedList, m) {
		q.appendMessage(postedList, m)
	}
	bits := QSPostMessage
	if m.Msg == WMHotkey {
		bits |= QSHotkey
	}
	q.setBits(bits)
	return nil
}

// PostQuit flags q so the next retrieval past the posted list yields WM_QUIT.
func (s *System) PostQuit(q *Queue, exitCode uint32) {
	q.quit = true
	q.exitCode = exitCode
	q.setBits(QSPostMessage)
}

// SendHardware queues input for to. Raw input is cooked by the client and
// reposted with cooked set. Consecutive mouse moves to one window collapse
// into the newest.
func (s *System) SendHardware(to *kernel.Thread, m *Message, cooked bool) error {
	q, err := s.target(to)
	if err != nil {
		return err
	}
	kind := rawHWList
	if cooked {
		kind = cookedHWList
	}
	m.Type = MsgHardware
	m.result = nil
	if m.Time == 0 {
		m.Time = s.tick()
	}
	if !q.mergeMessage(kind, m) {
		q.appendMessage(kind, m)
	}
	q.setBits(hardwareBit(m.Msg))
	return nil
}

func (q *Queue) mergeMessage(kind listKind, m *Message) bool {
	if m.Msg != WMMouseMove {
		return false
	}
	back := q.lists[kind].Back()
	if back == nil {
		return false
	}
	prev := back.Value.(*Message)
	if prev.result != nil || prev.Win != m.Win || prev.Msg != m.Msg || prev.Type != m.Type {
		return false
	}
	prev.WParam = m.WParam
	prev.LParam = m.LParam
	prev.X, prev.Y = m.X, m.Y
	prev.Time = m.Time
	prev.Info = m.Info
	return true
}

// IncPaintCount adjusts the pending paint count of win.
func (s *System) IncPaintCount(q *Queue, win uint32, delta int) {
	idx := -1
	for i := range q.paint {
		if q.paint[i].win == win {
			idx = i
			break
		}
	}
	if idx < 0 {
		if delta <= 0 {
			return
		}
		q.paint = append(q.paint, paintEntry{win: win})
		idx = len(q.paint) - 1
	}
	q.paint[idx].count += delta
	if q.paint[idx].count <= 0 {
		q.paint = append(q.paint[:idx], q.paint[idx+1:]...)
	}
	if len(q.paint) > 0 {
		q.setBits(QSPaint)
	} else {
		q.clearBits(QSPaint)
	}
}

func (q *Queue) find(kind listKind, f Filter) *Message {
	for e := q.lists[kind].Front(); e != nil; e = e.Next() {
		m := e.Value.(*Message)
		if f.match(m.Win, m.Msg) {
			return m
		}
	}
	return nil
}

// take hands out m. Without GetRemove it stays queued and is remembered as
// the last peeked message.
func (s *System) take(q *Queue, kind listKind, m *Message, flags uint32) Message {
	out := m.detach()
	if flags&GetRemove != 0 {
		q.removeMessage(kind, m)
		return out
	}
	q.lastMsg = m
	q.lastList = kind
	return out
}

// GetMessage retrieves the next message for q. Sent messages come first
// and are always removed; then posted messages, WM_QUIT, cooked and raw
// input, WM_PAINT and finally expired timers. api.ErrPending means nothing
// matched.
func (s *System) GetMessage(q *Queue, f Filter, flags uint32) (Message, error) {
	if q.dead {
		return Message{}, api.ErrProcessTerminating
	}
	if e := q.lists[sentList].Front(); e != nil {
		return s.receiveSent(q, e.Value.(*Message)), nil
	}
	if flags&GetSentOnly != 0 {
		return Message{}, api.ErrPending
	}

	q.changedBits = 0
	if last := q.lastMsg; last != nil {
		q.lastMsg = nil
		if flags&GetRemoveLast != 0 {
			q.removeMessage(q.lastList, last)
			s.freeMessage(last)
		}
	}

	if m := q.find(postedList, f); m != nil {
		return s.take(q, postedList, m, flags), nil
	}
	if q.quit && f.matchCode(WMQuit) {
		if flags&GetRemove != 0 {
			q.quit = false
			if q.lists[postedList].Len() == 0 {
				q.clearBits(QSPostMessage)
			}
		}
		return Message{Type: MsgPosted, Msg: WMQuit, WParam: uint64(q.exitCode), Time: s.tick()}, nil
	}
	if m := q.find(cookedHWList, f); m != nil {
		return s.take(q, cookedHWList, m, flags), nil
	}
	if m := q.find(rawHWList, f); m != nil {
		return s.take(q, rawHWList, m, flags), nil
	}
	if f.matchCode(WMPaint) {
		for _, p := range q.paint {
			if f.Win == 0 || f.Win == p.win {
				return Message{Type: MsgPosted, Win: p.win, Msg: WMPaint, Time: s.tick()}, nil
			}
		}
	}
	if t := q.findExpiredTimer(f); t != nil {
		out := Message{Type: MsgPosted, Win: t.win, Msg: t.msg, WParam: uint64(t.id), LParam: t.lparam, Time: s.tick()}
		if flags&GetRemove != 0 {
			q.restartTimer(t)
		}
		return out, nil
	}
	return Message{}, api.ErrPending
}
