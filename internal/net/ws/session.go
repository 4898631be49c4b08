package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSendQueueFull indicates the session's outbound queue is saturated.
	ErrSendQueueFull = errors.New("ws: send queue full")
	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("ws: session closed")
)

// session is the outbound half of a websocket client. Frames are queued by
// Send and written by a dedicated goroutine so the hub loop never blocks on
// the network.
type session struct {
	conn        *websocket.Conn
	messageType int
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	writeWait   time.Duration
	pingPeriod  time.Duration
}

func newSession(conn *websocket.Conn, queue int, binary bool, writeWait, pingPeriod time.Duration) *session {
	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}
	return &session{
		conn:        conn,
		messageType: messageType,
		send:        make(chan []byte, queue),
		done:        make(chan struct{}),
		writeWait:   writeWait,
		pingPeriod:  pingPeriod,
	}
}

// Send queues frame without blocking.
func (s *session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops the writer, which closes the socket.
func (s *session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			s.flush()
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(s.messageType, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				s.Close()
				return
			}
		}
	}
}

// flush writes whatever is still queued when the session closes.
func (s *session) flush() {
	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteMessage(s.messageType, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
