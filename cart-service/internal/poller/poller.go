package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	CheckoutTopic = "checkout-outbox"
	ConsumerGroup = "cart-service-consumer"
	retryDelay    = time.Second
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartClearer empties a user's cart and notifies their live clients.
type CartClearer interface {
	ClearForUser(ctx context.Context, userID string) error
}

// checkoutEvent is the part of the checkout outbox record the cart cares about.
type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

// Poller consumes completed checkouts and clears the buyer's cart.
type Poller struct {
	carts  CartClearer
	reader MessageReader
	log    *slog.Logger
}

func NewKafkaReader(brokers []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    CheckoutTopic,
		GroupID:  ConsumerGroup,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(carts CartClearer, reader MessageReader, log *slog.Logger) *Poller {
	return &Poller{carts: carts, reader: reader, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.getMessageAndClearCart(ctx); err != nil && ctx.Err() == nil {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", slog.Any("error", err))
	}
}

// getMessageAndClearCart handles one message. Only a failed read is returned;
// a bad or unprocessable message is logged and skipped.
func (p *Poller) getMessageAndClearCart(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.ErrorContext(ctx, "error reading message", slog.Any("error", err))
		}
		return err
	}

	var ev checkoutEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.log.WarnContext(ctx, "error parsing message", slog.Int64("offset", m.Offset), slog.Any("error", err))
		return nil
	}
	if ev.UserID == "" {
		p.log.WarnContext(ctx, "missing or invalid user_id", slog.Int64("offset", m.Offset))
		return nil
	}

	if err := p.carts.ClearForUser(ctx, ev.UserID); err != nil {
		p.log.ErrorContext(ctx, "failed to clear cart after checkout",
			slog.String("user_id", ev.UserID),
			slog.String("checkout_id", ev.CheckoutID),
			slog.Any("error", err),
		)
		return nil
	}
	p.log.InfoContext(ctx, "cart cleared after checkout",
		slog.String("user_id", ev.UserID),
		slog.String("checkout_id", ev.CheckoutID),
	)
	return nil
}
