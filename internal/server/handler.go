package server

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
)

// ServeWs owns one websocket connection: the write pump runs in its own
// goroutine while this goroutine reads frames and dispatches them through
// the RPC handler. Responses and snapshot pushes share the Send channel, so
// frame writes never interleave.
func ServeWs(hub *Hub, rpc *RPCHandler, conn *websocket.Conn) {
	client := NewClient(hub, conn)
	go client.writePump()

	defer func() {
		if client.UserID != "" {
			hub.unregister <- client
		} else {
			close(client.Send)
		}
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		resp := rpc.Handle(context.Background(), client, data)
		select {
		case client.Send <- resp:
		default:
			// Outbound buffer wedged; drop the connection.
			return
		}
	}
}
