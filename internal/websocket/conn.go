package websocket

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var errNotBinary = errors.New("not binary message")

// NewServer returns an HTTP server that upgrades MQTT over Websocket clients
// and hands each connection to dispatch on its own goroutine.
func NewServer(address string, checkOrigin bool, dispatch func(net.Conn)) *http.Server {
	return &http.Server{
		Addr:    address,
		Handler: Handler(checkOrigin, dispatch),
	}
}

// Handler upgrades requests offering the "mqtt" subprotocol.
func Handler(checkOrigin bool, dispatch func(net.Conn)) http.Handler {
	up := websocket.Upgrader{
		Subprotocols: []string{"mqtt"}, // [MQTT-6.0.0-4]
	}
	if !checkOrigin {
		up.CheckOrigin = func(*http.Request) bool { return true }
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if protos := websocket.Subprotocols(r); len(protos) == 0 || protos[0] != "mqtt" { // [MQTT-6.0.0-3]
			errMsg := "websocket client not supported. sub protocol must be 'mqtt'"
			http.Error(w, errMsg, http.StatusNotAcceptable)
			return
		}

		// Upgrade replies with an HTTP error itself on failure.
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		go dispatch(&wsConn{Conn: conn})
	})
}

// wsConn presents a Websocket as a byte stream. MQTT packets may span
// Websocket messages and a message may hold several packets. [MQTT-6.0.0-2]
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Write(p []byte) (int, error) {
	err := c.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			var err error
			var mt int
			if mt, c.r, err = c.NextReader(); err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage { // [MQTT-6.0.0-1]
				c.r = nil
				return 0, errNotBinary
			}
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetWriteDeadline(t); err != nil {
		return err
	}
	return c.SetReadDeadline(t)
}
