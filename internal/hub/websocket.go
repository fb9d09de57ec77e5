package hub

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketConn adapts a gorilla websocket connection to the hub's Conn
// interface. Gorilla permits only one concurrent writer per connection, so
// writes are serialized here; broadcasts and pong replies may otherwise
// interleave from different goroutines.
type WebsocketConn struct {
	writeMu sync.Mutex
	ws      *websocket.Conn
}

// NewWebsocketConn wraps an upgraded websocket connection.
func NewWebsocketConn(ws *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{ws: ws}
}

func (c *WebsocketConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *WebsocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *WebsocketConn) Close() error {
	return c.ws.Close()
}
