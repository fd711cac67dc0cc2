package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	clientBuffer = 32
	writeWait    = 5 * time.Second
)

// Event is the JSON message pushed to status display clients.
type Event struct {
	Type   string    `json:"type"`
	State  State     `json:"state,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Level  int       `json:"level"`
	Time   time.Time `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Broadcaster is an Observer that pushes every notification to connected
// websocket clients. Slow clients drop messages rather than blocking the
// engine.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	now     func() time.Time
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		now:     time.Now,
	}
}

func (b *Broadcaster) OnState(state State, detail string) {
	b.broadcast(Event{Type: "state", State: state, Detail: detail, Time: b.now()})
}

func (b *Broadcaster) OnLevel(level int) {
	b.broadcast(Event{Type: "level", Level: level, Time: b.now()})
}

func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.clients)
}

func (b *Broadcaster) broadcast(event Event) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode status event")

		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.clients {
		select {
		case c.send <- message:
		default:
		}
	}
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("status websocket upgrade failed")

		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.writePump(c)
	b.readPump(c)
}

// readPump only watches for the client going away.
func (b *Broadcaster) readPump(c *client) {
	defer b.remove(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) writePump(c *client) {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

// Serve exposes the broadcaster at /status until ctx is cancelled.
func (b *Broadcaster) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/status", b)

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("status feed listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
