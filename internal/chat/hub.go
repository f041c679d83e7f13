package chat

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

type subscriber struct {
	send chan Event
}

// Hub fans transcript events out to the websocket connections of each user
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
	upgrader    websocket.Upgrader
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Publish queues ev for every connection of userID. Slow connections drop events.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers[userID] {
		select {
		case sub.send <- ev:
		default:
			slog.Warn("Dropping event for slow client", "user", userID, "type", ev.Type)
		}
	}
}

// Subscribers counts the open connections of userID
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[userID])
}

func (h *Hub) subscribe(userID string) *subscriber {
	sub := &subscriber{send: make(chan Event, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[*subscriber]struct{})
	}
	h.subscribers[userID][sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[userID], sub)
	if len(h.subscribers[userID]) == 0 {
		delete(h.subscribers, userID)
	}
}

// Serve upgrades the request and streams events for userID until the client goes away
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Error upgrading websocket", "user", userID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.subscribe(userID)
	defer h.unsubscribe(userID, sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			// the client never sends anything useful; reading drives pongs and close
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ev := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("Websocket write failed", "user", userID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
