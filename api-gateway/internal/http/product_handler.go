package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/pkg/catalogapi"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	catalog catalogapi.CatalogClient
	timeout time.Duration
}

func NewProductHandler(catalog catalogapi.CatalogClient, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
	}
}

type ProductResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Price   string   `json:"price"`
	InStock bool     `json:"in_stock"`
	Stock   int32    `json:"available_stock"`
	Images  []string `json:"images"`
}

// Get serves a single product by id, e.g. for a product page that needs the
// live price before adding to the cart.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := chi.URLParam(r, "productID")
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id is required")
		return
	}

	p, err := h.catalog.GetProduct(ctx, &catalogapi.GetProductRequest{ID: id})
	if err != nil {
		handleGRPCError(w, err)
		return
	}

	images := p.Images
	if images == nil {
		images = []string{}
	}
	respondJSON(w, http.StatusOK, ProductResponse{
		ID:      p.ID,
		Name:    p.Name,
		Price:   p.Price.StringFixed(2),
		InStock: p.AvailableStock > 0,
		Stock:   p.AvailableStock,
		Images:  images,
	})
}
