package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"papergen/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub relays run-progress events from Redis pub/sub to websocket clients.
// A client authorizes with the run-scoped token returned when the job was
// submitted, and only receives events for that run.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	redisClient *redis.Client
	auth        *middleware.JWTAuth
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(redisClient *redis.Client, auth *middleware.JWTAuth) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		redisClient: redisClient,
		auth:        auth,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	runID, err := h.auth.VerifyRunToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(runID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(runID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(runID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[runID] = append(h.connections[runID], conn)

	// First subscriber for this run starts the pub/sub relay
	if len(h.connections[runID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[runID] = cancel
		go h.subscribeToPubSub(ctx, runID)
	}

	log.Printf("WebSocket connected: run %s (total: %d)", runID, len(h.connections[runID]))
}

func (h *Hub) unregisterConnection(runID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[runID]
	for i, c := range conns {
		if c == conn {
			h.connections[runID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[runID]) == 0 {
		delete(h.connections, runID)
		if cancel, ok := h.cancelFuncs[runID]; ok {
			cancel()
			delete(h.cancelFuncs, runID)
		}
	}

	log.Printf("WebSocket disconnected: run %s", runID)
}

func (h *Hub) subscribeToPubSub(ctx context.Context, runID uuid.UUID) {
	channel := "run_updates:" + runID.String()
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(runID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(runID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[runID] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}
