package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/service"
	"github.com/fjod/go_cart/cart-service/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxRequestBodySize = 1 << 20 // 1MB

type CartService interface {
	GetCart(ctx context.Context, owner domain.Owner) (*service.CartView, error)
	AddItem(ctx context.Context, owner domain.Owner, productID string, quantity int, variant domain.Variant) (*domain.Cart, error)
	UpdateItem(ctx context.Context, owner domain.Owner, ref domain.LineRef, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, owner domain.Owner, ref domain.LineRef) (*domain.Cart, error)
	Clear(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	ApplyCoupon(ctx context.Context, owner domain.Owner, code string) (*domain.Cart, error)
	RemoveCoupon(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Merge(ctx context.Context, user domain.Owner, guestSessionID string) (*domain.Cart, error)
	Validate(ctx context.Context, owner domain.Owner) (*service.ValidationResult, error)
}

type Identifier interface {
	Identify(r *http.Request) (session.Identity, error)
}

type CartHandler struct {
	svc      CartService
	ids      Identifier
	validate *validator.Validate
	timeout  time.Duration
	log      *slog.Logger
}

func NewCartHandler(svc CartService, ids Identifier, timeout time.Duration, log *slog.Logger) *CartHandler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &CartHandler{svc: svc, ids: ids, validate: v, timeout: timeout, log: log}
}

type AddItemRequestDTO struct {
	ProductID string            `json:"product_id" validate:"required,max=64"`
	Quantity  int               `json:"quantity" validate:"required,min=1,max=100"`
	Variant   map[string]string `json:"variant" validate:"omitempty,max=10,dive,keys,required,max=64,endkeys,max=128"`
}

// UpdateItemRequestDTO sets a line's quantity. Zero or less removes the line.
type UpdateItemRequestDTO struct {
	Quantity *int              `json:"quantity" validate:"required,max=100"`
	Variant  map[string]string `json:"variant" validate:"omitempty,max=10"`
}

type RemoveItemRequestDTO struct {
	Variant map[string]string `json:"variant" validate:"omitempty,max=10"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code" validate:"required,max=64"`
}

type MergeRequestDTO struct {
	SessionID string `json:"session_id" validate:"omitempty,max=128"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := h.ids.Identify(r)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}
	// no identity is fine here: the service answers with an empty cart
	owner, _ := session.Resolve(id)

	view, err := h.svc.GetCart(ctx, owner)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req AddItemRequestDTO
	if !h.decode(w, r, &req, true) {
		return
	}

	cart, err := h.svc.AddItem(ctx, owner, strings.TrimSpace(req.ProductID), req.Quantity, domain.Variant(req.Variant))
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateItemRequestDTO
	if !h.decode(w, r, &req, true) {
		return
	}

	ref := domain.LineRef{ProductID: productID, Variant: domain.Variant(req.Variant)}
	cart, err := h.svc.UpdateItem(ctx, owner, ref, *req.Quantity)
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req RemoveItemRequestDTO
	if !h.decode(w, r, &req, false) {
		return
	}

	ref := domain.LineRef{ProductID: productID, Variant: domain.Variant(req.Variant)}
	cart, err := h.svc.RemoveItem(ctx, owner, ref)
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	cart, err := h.svc.Clear(ctx, owner)
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req ApplyCouponRequestDTO
	if !h.decode(w, r, &req, true) {
		return
	}

	cart, err := h.svc.ApplyCoupon(ctx, owner, req.Code)
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	cart, err := h.svc.RemoveCoupon(ctx, owner)
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// Merge folds the caller's guest cart into their user cart after sign-in.
// The guest session comes from the body, or from the usual session header.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := h.ids.Identify(r)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}
	if id.UserID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "merge requires a signed-in user")
		return
	}
	var req MergeRequestDTO
	if !h.decode(w, r, &req, false) {
		return
	}
	guestSessionID := req.SessionID
	if guestSessionID == "" {
		guestSessionID = id.SessionID
	}

	cart, err := h.svc.Merge(ctx, domain.UserOwner(id.UserID), guestSessionID)
	if err != nil {
		h.handleError(w, r, err, cart)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Validate(ctx, owner)
	if err != nil {
		h.handleError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *CartHandler) NewSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusCreated, SessionResponse{SessionID: session.NewSessionID()})
}

// owner resolves the caller for a write; it answers the request itself when
// there is no usable identity.
func (h *CartHandler) owner(w http.ResponseWriter, r *http.Request) (domain.Owner, bool) {
	id, err := h.ids.Identify(r)
	if err == nil {
		var owner domain.Owner
		owner, err = session.Resolve(id)
		if err == nil {
			return owner, true
		}
	}
	h.handleError(w, r, err, nil)
	return domain.Owner{}, false
}

// decode reads and validates a JSON body. With required unset an empty body
// is accepted and leaves dst zero.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !required && errors.Is(err, io.EOF) {
			return true
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "request validation failed",
			Code:    "invalid_request",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "productID"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id is required")
		return "", false
	}
	return id, true
}
