package stream

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CloseSessionNotFound is sent when a client subscribes to an unknown
// session id.
const CloseSessionNotFound = 4404

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

var errSinkClosed = errors.New("stream: sink closed")

// WSSink adapts a websocket connection to the hub's Sink contract. A
// buffered channel decouples Publish from the client's read speed; a
// full buffer counts as a failed send.
type WSSink struct {
	conn    *websocket.Conn
	send    chan []byte
	closeMu sync.Once
	done    chan struct{}
}

// NewWSSink wraps the connection and starts its write pump. The caller
// owns the read side (usually only to detect close frames).
func NewWSSink(conn *websocket.Conn) *WSSink {
	s := &WSSink{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

func (s *WSSink) Send(data []byte) error {
	select {
	case <-s.done:
		return errSinkClosed
	case s.send <- data:
		return nil
	default:
		return errors.New("stream: subscriber buffer full")
	}
}

func (s *WSSink) Close() {
	s.closeMu.Do(func() { close(s.done) })
}

// Wait blocks until the sink is closed.
func (s *WSSink) Wait() {
	<-s.done
}

func (s *WSSink) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

// ReadUntilClose consumes inbound frames so pongs and close frames are
// processed, and closes the sink when the client goes away.
func (s *WSSink) ReadUntilClose() {
	defer s.Close()
	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RejectUnknownSession closes the raw connection with the dedicated
// close code before any subscription happens.
func RejectUnknownSession(conn *websocket.Conn, sessionID string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseSessionNotFound, "unknown session "+sessionID))
	conn.Close()
}
