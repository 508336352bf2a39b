package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/auth"
	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// WSHub pushes award stream events to connected sessions. A member sees events
// for their own wallet; organizers see every request event.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*wsClient
}

type wsClient struct {
	conn *websocket.Conn
	role string
	wmu  sync.Mutex
}

func (c *wsClient) send(data []byte) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamAward, h.dispatch)
}

func (h *WSHub) dispatch(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	for _, c := range h.recipients(event) {
		c.send(data)
	}
}

func (h *WSHub) recipients(event events.Event) []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	wallet := event.Wallet()
	var out []*wsClient
	for w, clients := range h.connections {
		for _, c := range clients {
			if wallet == "" || w == wallet || c.role == models.RoleOrganizer {
				out = append(out, c)
			}
		}
	}
	return out
}

func (h *WSHub) register(wallet string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[wallet] = append(h.connections[wallet], c)
}

func (h *WSHub) unregister(wallet string, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[wallet]
	for i, x := range clients {
		if x == c {
			h.connections[wallet] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[wallet]) == 0 {
		delete(h.connections, wallet)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleWS authenticates with ?token= and then only reads, to keep the
// connection alive until the client leaves.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	client := &wsClient{conn: conn, role: claims.Role}
	h.register(claims.Wallet, client)
	defer func() {
		h.unregister(claims.Wallet, client)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
