// Package net wires ws_dial/ws_send/ws_recv/ws_close/ws_serve onto a Runtime,
// grounded on the teacher's internal/network/websocket.go
// (WebSocketConn: an *websocket.Conn plus an id) and
// websocket_server.go (WebSocketServer: an Upgrader and a client map),
// giving gorilla/websocket a concrete home among SPEC_FULL.md's host
// modules.
package net

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"lumen/internal/value"
)

type conn struct {
	ws *websocket.Conn
}

type registry struct {
	mu   sync.Mutex
	next int
	conn map[int]*conn
}

func newRegistry() *registry { return &registry{conn: make(map[int]*conn)} }

func (r *registry) store(c *conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.conn[r.next] = c
	return r.next
}

func (r *registry) get(handle int) (*conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conn[handle]
	return c, ok
}

type Exposer interface {
	Expose(name string, fn func([]value.Value) ([]value.Value, error))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Register installs ws_dial, ws_send, ws_recv, ws_close, and ws_serve
// (which starts a listener on addr, blocks until the first connection
// is upgraded and returns that connection's handle; later connections
// are stored in the registry but not returned to the script). This
// demonstrates the
// host-async-but-synchronous-evaluator split of spec.md §9: the dial
// site runs gorilla's handshake, then every send/recv is a plain
// blocking call from the script's point of view).
func Register(rt Exposer) {
	reg := newRegistry()

	rt.Expose("ws_dial", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || !args[0].IsString() {
			return nil, fmt.Errorf("ws.dial(url): string expected")
		}
		c, _, err := websocket.DefaultDialer.Dial(args[0].AsString(), nil)
		if err != nil {
			return nil, fmt.Errorf("ws.dial: %w", err)
		}
		handle := reg.store(&conn{ws: c})
		return []value.Value{value.Int(int64(handle))}, nil
	})

	rt.Expose("ws_send", func(args []value.Value) ([]value.Value, error) {
		if len(args) < 2 || !args[0].IsInt() || !args[1].IsString() {
			return nil, fmt.Errorf("ws.send(handle, text): integer+string expected")
		}
		c, ok := reg.get(int(args[0].AsInt()))
		if !ok {
			return nil, fmt.Errorf("ws.send: unknown handle")
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, []byte(args[1].AsString())); err != nil {
			return nil, fmt.Errorf("ws.send: %w", err)
		}
		return nil, nil
	})

	rt.Expose("ws_recv", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || !args[0].IsInt() {
			return nil, fmt.Errorf("ws.recv(handle): integer expected")
		}
		c, ok := reg.get(int(args[0].AsInt()))
		if !ok {
			return nil, fmt.Errorf("ws.recv: unknown handle")
		}
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("ws.recv: %w", err)
		}
		return []value.Value{value.Str(string(msg))}, nil
	})

	rt.Expose("ws_close", func(args []value.Value) ([]value.Value, error) {
		if len(args) == 0 || !args[0].IsInt() {
			return nil, fmt.Errorf("ws.close(handle): integer expected")
		}
		c, ok := reg.get(int(args[0].AsInt()))
		if !ok {
			return nil, fmt.Errorf("ws.close: unknown handle")
		}
		return nil, c.ws.Close()
	})

	rt.Expose("ws_serve", func(args []value.Value) ([]value.Value, error) {
		if len(args) < 1 || !args[0].IsString() {
			return nil, fmt.Errorf("ws.serve(addr): string expected")
		}
		addr := args[0].AsString()
		accepted := make(chan int, 1)
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				c, err := upgrader.Upgrade(w, r, nil)
				if err != nil {
					return
				}
				handle := reg.store(&conn{ws: c})
				select {
				case accepted <- handle:
				default:
				}
			})
			_ = http.ListenAndServe(addr, mux)
		}()
		handle := <-accepted
		return []value.Value{value.Int(int64(handle))}, nil
	})
}
