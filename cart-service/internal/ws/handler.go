package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/broadcast"
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type OwnerResolver interface {
	FromRequest(r *http.Request) (domain.Owner, error)
}

// CartLookup returns the cart owned by owner, used to authorise cart:{id}
// subscriptions.
type CartLookup interface {
	CartID(ctx context.Context, owner domain.Owner) (string, error)
}

// clientMessage is what a connected client may send.
type clientMessage struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Topic  string `json:"topic"`
}

type ack struct {
	Event string `json:"event"`
	Topic string `json:"topic,omitempty"`
	Error string `json:"error,omitempty"`
}

type Handler struct {
	hub      *broadcast.Hub
	owners   OwnerResolver
	carts    CartLookup
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(hub *broadcast.Hub, owners OwnerResolver, carts CartLookup, log *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		owners: owners,
		carts:  carts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the gateway terminates browser traffic and enforces origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeHTTP authenticates before upgrading; the connection is then joined to
// its owner's topic for its whole life.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, err := h.owners.FromRequest(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrInvalidToken) {
			status = http.StatusUnauthorized
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}

	sub := h.hub.Register()
	h.hub.Subscribe(sub, owner.Topic())
	metrics.LiveConnections.Inc()
	h.log.DebugContext(r.Context(), "live client connected", slog.String("owner", owner.String()), slog.Uint64("conn", sub.ID()))

	c := &client{h: h, conn: conn, sub: sub, owner: owner, replies: make(chan ack, 4)}
	go c.writePump()
	c.readPump()
}

type client struct {
	h       *Handler
	conn    *websocket.Conn
	sub     *broadcast.Subscriber
	owner   domain.Owner
	replies chan ack
}

func (c *client) readPump() {
	defer func() {
		c.h.hub.Remove(c.sub)
		metrics.LiveConnections.Dec()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.log.Debug("live client read error", slog.Any("error", err))
			}
			return
		}
		c.reply(c.handle(msg))
	}
}

func (c *client) handle(msg clientMessage) ack {
	topic := strings.TrimSpace(msg.Topic)
	switch msg.Action {
	case "subscribe":
		if !c.allowed(topic) {
			return ack{Event: "error", Topic: topic, Error: "forbidden"}
		}
		c.h.hub.Subscribe(c.sub, topic)
		return ack{Event: "subscribed", Topic: topic}
	case "unsubscribe":
		if topic == c.owner.Topic() {
			return ack{Event: "error", Topic: topic, Error: "cannot leave own topic"}
		}
		c.h.hub.Unsubscribe(c.sub, topic)
		return ack{Event: "unsubscribed", Topic: topic}
	default:
		return ack{Event: "error", Error: "unknown action"}
	}
}

// allowed reports whether the connection may join topic: its own owner topic
// or the cart:{id} topic of the cart it owns.
func (c *client) allowed(topic string) bool {
	if topic == c.owner.Topic() {
		return true
	}
	cartID, ok := strings.CutPrefix(topic, "cart:")
	if !ok || cartID == "" || c.h.carts == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	owned, err := c.h.carts.CartID(ctx, c.owner)
	if err != nil {
		c.h.log.Warn("cart lookup for subscription failed", slog.String("owner", c.owner.String()), slog.Any("error", err))
		return false
	}
	return owned == cartID
}

func (c *client) reply(a ack) {
	select {
	case c.replies <- a:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sub.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case a := <-c.replies:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			b, _ := json.Marshal(a)
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
