package gateway

import (
	"net"
	"time"

	"github.com/gorilla/websocket"

	"cardroom/internal/codec"
)

// MessageConn hides the transport: the dispatcher speaks whole JSON
// documents and never cares whether they traveled as websocket messages or
// length-prefixed TCP frames.
type MessageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

type wsMessageConn struct {
	conn *websocket.Conn
}

func newWSMessageConn(conn *websocket.Conn) *wsMessageConn {
	conn.SetReadLimit(codec.MaxFrameBytes)
	return &wsMessageConn{conn: conn}
}

func (w *wsMessageConn) ReadMessage() ([]byte, error) {
	for {
		messageType, payload, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// Control frames are handled by gorilla; ignore stray text frames.
		if messageType == websocket.BinaryMessage || messageType == websocket.TextMessage {
			return payload, nil
		}
	}
}

func (w *wsMessageConn) WriteMessage(payload []byte) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (w *wsMessageConn) SetReadDeadline(t time.Time) error { return w.conn.SetReadDeadline(t) }
func (w *wsMessageConn) RemoteAddr() string                { return w.conn.RemoteAddr().String() }
func (w *wsMessageConn) Close() error                      { return w.conn.Close() }

type tcpMessageConn struct {
	conn net.Conn
}

func newTCPMessageConn(conn net.Conn) *tcpMessageConn {
	return &tcpMessageConn{conn: conn}
}

func (t *tcpMessageConn) ReadMessage() ([]byte, error) {
	return codec.ReadFrame(t.conn)
}

func (t *tcpMessageConn) WriteMessage(payload []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return codec.WriteFrame(t.conn, payload)
}

func (t *tcpMessageConn) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *tcpMessageConn) RemoteAddr() string { return t.conn.RemoteAddr().String() }
func (t *tcpMessageConn) Close() error       { return t.conn.Close() }
