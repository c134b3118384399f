// internal/handler/ws_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"presence-service/internal/middleware"
	"presence-service/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WSMessage struct {
	Type    string         `json:"type"`
	UserID  int64          `json:"userId,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	connID   string
	userID   int64
	nickname string
}

// Hub tracks this instance's live WebSocket clients and fans presence
// events out to them. Cross-instance events arrive over the Redis
// subscription; the shared online/offline bookkeeping itself lives in the
// presence tracker, not here.
type Hub struct {
	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	logger     *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     logger,
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			h.logger.Info("Client registered",
				zap.String("connectionId", client.connID),
				zap.Int64("userId", client.userID))

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("connectionId", client.connID),
				zap.Int64("userId", client.userID))

		case message := <-h.broadcast:
			h.clientsMu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop the event rather than block.
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

type WSHandler struct {
	logger          *zap.Logger
	presenceService PresenceService
	secretKey       string
	redis           *redis.Client
	eventChannel    string
	hub             *Hub
}

func NewWSHandler(
	logger *zap.Logger,
	presenceService PresenceService,
	secretKey string,
	redisClient *redis.Client,
	eventChannel string,
) *WSHandler {
	h := &WSHandler{
		logger:          logger,
		presenceService: presenceService,
		secretKey:       secretKey,
		redis:           redisClient,
		eventChannel:    eventChannel,
		hub:             newHub(logger),
	}

	go h.hub.run()
	if h.redis != nil {
		go h.subscribeEvents()
	}

	return h
}

// subscribeEvents relays presence events published by any service instance
// to this instance's connected clients.
func (h *WSHandler) subscribeEvents() {
	pubsub := h.redis.Subscribe(context.Background(), h.eventChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.hub.broadcast <- []byte(msg.Payload)
	}
}

// HandlePresenceWebSocket authenticates the connection, registers it with
// the presence tracker under a fresh connection id, and pumps events until
// the peer goes away.
func (h *WSHandler) HandlePresenceWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	claims, err := middleware.ParseToken(h.secretKey, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	connID := uuid.New().String()
	sess := &model.SessionData{
		UserID:      claims.UserID,
		Nickname:    claims.Nickname,
		ConnectedAt: time.Now().UTC(),
	}

	cameOnline := h.presenceService.Connect(c.Request.Context(), connID, sess)
	middleware.RecordWebSocketConnection()
	if cameOnline && h.redis == nil {
		// Without Redis there is no pub/sub relay; notify local clients
		// directly.
		h.broadcastLocalStatus(claims.UserID, model.PresenceOnline)
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		connID:   connID,
		userID:   claims.UserID,
		nickname: claims.Nickname,
	}

	h.hub.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *WSHandler) readPump(client *Client) {
	defer func() {
		h.hub.unregister <- client
		client.conn.Close()

		res := h.presenceService.Disconnect(context.Background(), client.connID)
		middleware.RecordWebSocketDisconnection()
		if res != nil && res.FullyOffline && h.redis == nil {
			h.broadcastLocalStatus(res.UserID, model.PresenceOffline)
		}
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		// The presence socket is server-push; the only client message we
		// answer is an application-level ping.
		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			h.logger.Warn("Failed to parse message", zap.Error(err))
			continue
		}
		if wsMsg.Type == "PING" {
			pong, _ := json.Marshal(WSMessage{Type: "PONG"})
			select {
			case client.send <- pong:
			default:
			}
		}
	}
}

func (h *WSHandler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) broadcastLocalStatus(userID int64, status model.PresenceStatus) {
	payload, _ := json.Marshal(WSMessage{
		Type:    "USER_STATUS",
		UserID:  userID,
		Payload: map[string]any{"status": string(status)},
	})
	h.hub.broadcast <- payload
}
