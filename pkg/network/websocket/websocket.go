// Package websocket wraps a single gorilla/websocket client connection
// with serialized reads and writes.
package websocket

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/screenport/agent/pkg/logger"
)

const (
	maxMessageSize = 10 * 1024
	writeWait      = 10 * time.Second
)

var errClosed = errors.New("connection closed")

type MessageHandler func(message []byte, err error)

// WS pumps messages between the wire and the OnMessage callback.
// All writes go through the send channel, all reads happen on the
// reader goroutine, so the raw conn is never used concurrently.
type WS struct {
	conn *websocket.Conn
	send chan []byte
	log  *logger.Logger

	OnMessage MessageHandler

	once sync.Once
	Done chan struct{}
}

func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, log), nil
}

func newSocket(conn *websocket.Conn, log *logger.Logger) *WS {
	return &WS{
		conn: conn,
		send: make(chan []byte, 32),
		log:  log,
		Done: make(chan struct{}),
	}
}

// Listen starts the reader and writer pumps.
// Non-blocking; Done is closed when the reader stops.
func (ws *WS) Listen() {
	go ws.writer()
	go ws.reader()
}

// Write queues a message for the writer pump.
func (ws *WS) Write(data []byte) error {
	select {
	case ws.send <- data:
		return nil
	case <-ws.Done:
		return errClosed
	}
}

// Wait exposes the closed-on-shutdown channel.
func (ws *WS) Wait() <-chan struct{} { return ws.Done }

// SetOnMessage installs the inbound message callback.
// Must be called before Listen.
func (ws *WS) SetOnMessage(fn MessageHandler) { ws.OnMessage = fn }

func (ws *WS) Close() {
	ws.once.Do(func() {
		close(ws.Done)
		_ = ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = ws.conn.Close()
	})
}

func (ws *WS) reader() {
	defer ws.Close()
	ws.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Error().Err(err).Msg("read fail")
			}
			if ws.OnMessage != nil {
				ws.OnMessage(nil, err)
			}
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message, nil)
		}
	}
}

func (ws *WS) writer() {
	for {
		select {
		case message := <-ws.send:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				ws.log.Error().Err(err).Msg("write fail")
				ws.Close()
				return
			}
		case <-ws.Done:
			return
		}
	}
}
