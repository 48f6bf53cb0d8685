package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Broadcaster serves the event stream over websocket at /events so
// external UIs can watch a run. Every connection sees the global stream.
type Broadcaster struct {
	publisher Publisher
	upgrader  websocket.Upgrader
	server    *http.Server
	logger    *slog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewBroadcaster creates a broadcaster listening on addr.
func NewBroadcaster(pub Publisher, addr string, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broadcaster{
		publisher: pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle("/events", b)
	b.server = &http.Server{Addr: addr, Handler: mux}
	return b
}

// Start begins serving in the background.
func (b *Broadcaster) Start() {
	go func() {
		if err := b.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("event broadcaster stopped", "error", err)
		}
	}()
	b.logger.Info("event broadcaster listening", "addr", b.server.Addr)
}

// Shutdown closes all connections and stops the server.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	for conn := range b.conns {
		conn.Close()
	}
	b.mu.Unlock()
	return b.server.Shutdown(ctx)
}

// ServeHTTP upgrades the connection and streams events until the peer
// disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	ch := b.publisher.Subscribe(GlobalRunID)
	done := make(chan struct{})

	go b.readPump(conn, done)
	go b.writePump(conn, ch, done)
}

// readPump discards client messages; it exists to notice disconnects and
// keep the pong handler serviced.
func (b *Broadcaster) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards events as individual JSON text frames.
func (b *Broadcaster) writePump(conn *websocket.Conn, ch <-chan Event, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		b.publisher.Unsubscribe(GlobalRunID, ch)
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case e, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(e)
			if err != nil {
				b.logger.Warn("marshal event", "type", e.Type, "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
