package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/fjod/go_cart/pkg/catalogapi"
	"github.com/fjod/go_cart/product-service/internal/domain"
	db "github.com/fjod/go_cart/product-service/internal/repository"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CatalogServer serves read-only product lookups to the cart service.
type CatalogServer struct {
	repo db.RepoInterface
	log  *slog.Logger
}

var _ catalogapi.CatalogServer = (*CatalogServer)(nil)

func NewCatalogServer(repo db.RepoInterface, log *slog.Logger) *CatalogServer {
	return &CatalogServer{
		repo: repo,
		log:  log,
	}
}

func (s *CatalogServer) GetProduct(ctx context.Context, req *catalogapi.GetProductRequest) (*catalogapi.Product, error) {
	id, err := strconv.ParseInt(req.ID, 10, 64)
	if err != nil || id <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid product id %q", req.ID)
	}

	p, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, domain.ErrProductNotFound) {
		return nil, status.Errorf(codes.NotFound, "product %d not found", id)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "product lookup failed", slog.Int64("product_id", id), slog.Any("error", err))
		return nil, status.Errorf(codes.Internal, "failed to fetch product: %v", err)
	}

	return toAPI(p), nil
}

func toAPI(p *domain.Product) *catalogapi.Product {
	out := &catalogapi.Product{
		ID:             strconv.FormatInt(p.ID, 10),
		Name:           p.Name,
		Price:          p.Price,
		AvailableStock: p.Stock,
	}
	if p.ImageURL != "" {
		out.Images = []string{p.ImageURL}
	}
	return out
}
