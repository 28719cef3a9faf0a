package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/metrics"
	"github.com/fjod/go_cart/pkg/catalogapi"
	"github.com/fjod/go_cart/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const DefaultTimeout = 2 * time.Second

// errCallerGone marks a failure caused by the caller's own context ending. It
// says nothing about the catalog's health.
var errCallerGone = errors.New("caller context done")

// Client reads price and stock from the product catalog. Every call is
// bounded by a timeout and guarded by a circuit breaker; anything other than
// a definite "not found" surfaces as domain.ErrServiceUnavailable.
type Client struct {
	api     catalogapi.CatalogClient
	timeout time.Duration
	breaker *circuitbreaker.Breaker[*catalogapi.Product]
	log     *slog.Logger
}

func NewClient(api catalogapi.CatalogClient, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := circuitbreaker.DefaultConfig("catalog")
	cfg.Ignore = func(err error) bool {
		if errors.Is(err, errCallerGone) {
			return true
		}
		switch status.Code(err) {
		case codes.NotFound, codes.InvalidArgument, codes.Canceled:
			return true
		}
		return false
	}
	return &Client{
		api:     api,
		timeout: timeout,
		breaker: circuitbreaker.New[*catalogapi.Product](cfg, log),
		log:     log,
	}
}

// Dial opens an instrumented connection to the product service.
func Dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to product service: %w", err)
	}
	return conn, nil
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := c.breaker.Execute(func() (*catalogapi.Product, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		p, err := c.api.GetProduct(callCtx, &catalogapi.GetProductRequest{ID: productID})
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerGone, err)
		}
		return p, err
	})
	if err != nil {
		return nil, c.classify(ctx, productID, err)
	}

	metrics.CatalogLookups.WithLabelValues("ok").Inc()
	return &domain.Product{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		AvailableStock: int(p.AvailableStock),
		Images:         p.Images,
	}, nil
}

func (c *Client) classify(ctx context.Context, productID string, err error) error {
	switch {
	case errors.Is(err, errCallerGone):
		metrics.CatalogLookups.WithLabelValues("canceled").Inc()
		return fmt.Errorf("catalog lookup for %s: %w", productID, ctx.Err())
	case status.Code(err) == codes.NotFound, status.Code(err) == codes.InvalidArgument:
		// the catalog rejects ids it cannot parse; no such product exists
		metrics.CatalogLookups.WithLabelValues("not_found").Inc()
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.CatalogLookups.WithLabelValues("breaker_open").Inc()
	default:
		metrics.CatalogLookups.WithLabelValues("error").Inc()
		c.log.WarnContext(ctx, "catalog lookup failed",
			slog.String("product_id", productID),
			slog.String("code", status.Code(err).String()),
			slog.Any("error", err),
		)
	}
	return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
}
