package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/google/uuid"
)

const backplaneTimeout = 2 * time.Second

// Message is the frame a client receives.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type envelope struct {
	Origin  string          `json:"origin"`
	Topics  []string        `json:"topics"`
	Message json.RawMessage `json:"message"`
}

// Broadcaster fans cart events out to local subscribers and, when a
// backplane is configured, to the other instances.
type Broadcaster struct {
	hub       *Hub
	backplane Backplane
	origin    string
	log       *slog.Logger
}

// New returns a broadcaster. backplane may be nil for a single instance.
func New(hub *Hub, backplane Backplane, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hub:       hub,
		backplane: backplane,
		origin:    uuid.NewString(),
		log:       log,
	}
}

func (b *Broadcaster) Hub() *Hub {
	return b.hub
}

// Publish never blocks on slow subscribers or the backplane and never fails
// the caller; problems are logged.
func (b *Broadcaster) Publish(ctx context.Context, events ...domain.Event) {
	for _, ev := range events {
		msg, err := json.Marshal(Message{Event: ev.Name, Data: ev.Payload})
		if err != nil {
			b.log.ErrorContext(ctx, "failed to encode event", slog.String("event", ev.Name), slog.Any("error", err))
			continue
		}
		b.hub.Deliver(ev.Topics, msg)

		if b.backplane == nil {
			continue
		}
		env, err := json.Marshal(envelope{Origin: b.origin, Topics: ev.Topics, Message: msg})
		if err != nil {
			b.log.ErrorContext(ctx, "failed to encode envelope", slog.String("event", ev.Name), slog.Any("error", err))
			continue
		}
		go b.forward(ev.Name, env)
	}
}

func (b *Broadcaster) forward(event string, env []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), backplaneTimeout)
	defer cancel()
	if err := b.backplane.Publish(ctx, env); err != nil {
		metrics.BroadcastMessages.WithLabelValues("backplane_error").Inc()
		b.log.Warn("backplane publish failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	metrics.BroadcastMessages.WithLabelValues("backplane_out").Inc()
}

// Run relays messages from other instances to local subscribers until ctx is
// done. Without a backplane it just waits.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.backplane == nil {
		<-ctx.Done()
		return nil
	}
	err := b.backplane.Subscribe(ctx, b.receive)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Broadcaster) receive(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Warn("malformed backplane message", slog.Any("error", err))
		return
	}
	if env.Origin == b.origin {
		return
	}
	metrics.BroadcastMessages.WithLabelValues("backplane_in").Inc()
	b.hub.Deliver(env.Topics, env.Message)
}
