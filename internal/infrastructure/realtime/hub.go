package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	deliveryapp "github.com/jdfresh/backend/internal/application/delivery"
	orderapp "github.com/jdfresh/backend/internal/application/order"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 2048
)

// Client event names accepted on the tracking socket
const (
	eventUpdateLocation = "update-location"
	eventUpdateStatus   = "delivery-status-update"
)

// Message is the envelope exchanged with tracking room subscribers
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outMessage is the envelope pushed to subscribers
type outMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`

	// excludeUserID suppresses delivery to the publisher's own connections
	excludeUserID string
}

// Publisher applies agent-pushed tracking events through the delivery
// pipeline so the socket and the REST endpoints share one state machine
type Publisher interface {
	PublishLocation(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID, req *deliveryapp.LocationRequest) error
	PublishStatus(ctx context.Context, actor orderapp.Actor, orderID uuid.UUID, status string) error
}

// Client is one WebSocket subscriber inside a tracking room
type Client struct {
	ID      string
	Actor   orderapp.Actor
	OrderID uuid.UUID
	conn    *websocket.Conn
	send    chan outMessage
	done    chan struct{}
	once    sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans tracking updates out to per-order rooms. Each order has its
// own room; a client subscribes to exactly one order and only receives
// updates for it. Slow clients never block a broadcast, their messages
// are dropped instead.
type Hub struct {
	upgrader       websocket.Upgrader
	logger         *zap.Logger
	heartbeat      time.Duration
	sendBufferSize int
	maxClients     int
	publisher      Publisher

	mu    sync.RWMutex
	rooms map[uuid.UUID]map[string]*Client

	ctx    context.Context
	cancel context.CancelFunc
}

// Option is a functional option for configuring the hub
type Option func(*Hub)

// WithLogger sets the logger for the hub
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithHeartbeat sets the ping interval for idle connections
func WithHeartbeat(interval time.Duration) Option {
	return func(h *Hub) {
		h.heartbeat = interval
	}
}

// WithSendBufferSize sets the per-client outbound buffer
func WithSendBufferSize(size int) Option {
	return func(h *Hub) {
		h.sendBufferSize = size
	}
}

// WithMaxClients caps the number of concurrent subscribers
func WithMaxClients(max int) Option {
	return func(h *Hub) {
		h.maxClients = max
	}
}

// NewHub creates a tracking hub
func NewHub(opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:         zap.NewNop(),
		heartbeat:      30 * time.Second,
		sendBufferSize: 64,
		maxClients:     10000,
		rooms:          make(map[uuid.UUID]map[string]*Client),
		ctx:            ctx,
		cancel:         cancel,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// SetPublisher wires the delivery pipeline the hub routes inbound
// events through. Set once during startup, the hub and the delivery
// service reference each other.
func (h *Hub) SetPublisher(p Publisher) {
	h.publisher = p
}

// Stop disconnects every subscriber and shuts the hub down
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for _, client := range room {
			client.close()
		}
	}
	h.rooms = make(map[uuid.UUID]map[string]*Client)

	h.logger.Info("Tracking hub stopped")
}

// BroadcastTracking pushes a tracking update into the order's room. The
// publisher's own connections are skipped.
func (h *Hub) BroadcastTracking(orderID uuid.UUID, update *deliveryapp.TrackingUpdate) {
	h.broadcast(orderID, outMessage{
		Event:         "tracking_update",
		Data:          update,
		excludeUserID: update.PublisherID,
	})
}

func (h *Hub) broadcast(orderID uuid.UUID, msg outMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[orderID] {
		if msg.excludeUserID != "" && client.Actor.ID.String() == msg.excludeUserID {
			continue
		}
		select {
		case client.send <- msg:
		default:
			// Buffer full, client is too slow to keep up
			h.logger.Warn("Dropping tracking update for slow client",
				zap.String("client_id", client.ID),
				zap.String("order_id", orderID.String()))
		}
	}
}

// ClientCount returns the number of connected subscribers across all rooms
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, room := range h.rooms {
		count += len(room)
	}
	return count
}

// RoomSize returns the number of subscribers watching one order
func (h *Hub) RoomSize(orderID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}

// Serve upgrades the request and subscribes it to the order's tracking
// room until the client disconnects or the hub stops. Authorization must
// happen before calling Serve.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orderID uuid.UUID, actor orderapp.Actor) error {
	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		return fmt.Errorf("realtime: maximum number of tracking connections reached")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("realtime: upgrade failed: %w", err)
	}

	client := &Client{
		ID:      uuid.New().String(),
		Actor:   actor,
		OrderID: orderID,
		conn:    conn,
		send:    make(chan outMessage, h.sendBufferSize),
		done:    make(chan struct{}),
	}

	h.register(client)
	defer h.unregister(client)

	h.logger.Info("Tracking client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", actor.ID.String()),
		zap.String("order_id", orderID.String()))

	client.send <- outMessage{Event: "connected", Data: map[string]string{"client_id": client.ID}}

	go h.readPump(client)
	h.writePump(client)
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.OrderID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.OrderID] = room
	}
	room[c.ID] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.OrderID]
	if !ok {
		return
	}
	delete(room, c.ID)
	if len(room) == 0 {
		delete(h.rooms, c.OrderID)
	}
	c.conn.Close()
}

// readPump reads inbound frames. Delivery agents may push location and
// status events; anything else is ignored. Errors are reported back to
// the sender only, never fanned out.
func (h *Hub) readPump(c *Client) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		h.handleClientEvent(c, msg)
	}
}

func (h *Hub) handleClientEvent(c *Client, msg Message) {
	if h.publisher == nil {
		return
	}

	var err error
	switch msg.Event {
	case eventUpdateLocation:
		var req deliveryapp.LocationRequest
		if err = json.Unmarshal(msg.Data, &req); err == nil {
			err = h.publisher.PublishLocation(h.ctx, c.Actor, c.OrderID, &req)
		}
	case eventUpdateStatus:
		var req struct {
			Status string `json:"status"`
		}
		if err = json.Unmarshal(msg.Data, &req); err == nil {
			err = h.publisher.PublishStatus(h.ctx, c.Actor, c.OrderID, req.Status)
		}
	default:
		return
	}

	if err != nil {
		h.logger.Warn("Tracking event rejected",
			zap.String("client_id", c.ID),
			zap.String("order_id", c.OrderID.String()),
			zap.String("event", msg.Event),
			zap.Error(err))
		select {
		case c.send <- outMessage{Event: "error", Data: map[string]string{"event": msg.Event, "message": "event rejected"}}:
		default:
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("Failed to marshal tracking message", zap.Error(err))
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ deliveryapp.Broadcaster = (*Hub)(nil)
