package hub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketObserver adapts an HTTP request into an Observer. The upgrade
// happens in Handshake so a half-open connection is never broadcast to.
type WebSocketObserver struct {
	upgrader *websocket.Upgrader
	w        http.ResponseWriter
	r        *http.Request

	writeMu   sync.Mutex
	conn      *websocket.Conn
	closeOnce sync.Once
}

// NewWebSocketObserver prepares an observer for the request.
func NewWebSocketObserver(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) *WebSocketObserver {
	return &WebSocketObserver{upgrader: upgrader, w: w, r: r}
}

func (o *WebSocketObserver) Handshake(ctx context.Context) error {
	conn, err := o.upgrader.Upgrade(o.w, o.r, nil)
	if err != nil {
		return err
	}
	o.conn = conn
	return nil
}

// Send writes msg as a single text frame. Writes are serialized per connection.
func (o *WebSocketObserver) Send(ctx context.Context, msg string) error {
	if o.conn == nil {
		return errors.New("websocket not connected")
	}
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (o *WebSocketObserver) Close() error {
	if o.conn == nil {
		return nil
	}
	var err error
	o.closeOnce.Do(func() {
		o.writeMu.Lock()
		_ = o.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		o.writeMu.Unlock()
		err = o.conn.Close()
	})
	return err
}

// Wait reads and discards inbound frames until the peer disconnects or ctx ends.
func (o *WebSocketObserver) Wait(ctx context.Context) error {
	if o.conn == nil {
		return errors.New("websocket not connected")
	}
	errC := make(chan error, 1)
	go func() {
		for {
			if _, _, err := o.conn.ReadMessage(); err != nil {
				errC <- err
				return
			}
		}
	}()
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
