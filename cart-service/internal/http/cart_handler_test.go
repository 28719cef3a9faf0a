package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/service"
	"github.com/fjod/go_cart/cart-service/internal/session"
	"github.com/fjod/go_cart/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const testSecret = "handler-secret"

type ServiceMock struct {
	cart  *domain.Cart
	err   error
	owner domain.Owner
	ref   domain.LineRef
	qty   int
	guest string
}

func (s *ServiceMock) GetCart(_ context.Context, owner domain.Owner) (*service.CartView, error) {
	s.owner = owner
	if s.err != nil {
		return nil, s.err
	}
	return &service.CartView{Cart: s.cart}, nil
}

func (s *ServiceMock) AddItem(_ context.Context, owner domain.Owner, productID string, quantity int, variant domain.Variant) (*domain.Cart, error) {
	s.owner, s.ref, s.qty = owner, domain.LineRef{ProductID: productID, Variant: variant}, quantity
	return s.cart, s.err
}

func (s *ServiceMock) UpdateItem(_ context.Context, owner domain.Owner, ref domain.LineRef, quantity int) (*domain.Cart, error) {
	s.owner, s.ref, s.qty = owner, ref, quantity
	return s.cart, s.err
}

func (s *ServiceMock) RemoveItem(_ context.Context, owner domain.Owner, ref domain.LineRef) (*domain.Cart, error) {
	s.owner, s.ref = owner, ref
	return s.cart, s.err
}

func (s *ServiceMock) Clear(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	s.owner = owner
	return s.cart, s.err
}

func (s *ServiceMock) ApplyCoupon(_ context.Context, owner domain.Owner, _ string) (*domain.Cart, error) {
	s.owner = owner
	return s.cart, s.err
}

func (s *ServiceMock) RemoveCoupon(_ context.Context, owner domain.Owner) (*domain.Cart, error) {
	s.owner = owner
	return s.cart, s.err
}

func (s *ServiceMock) Merge(_ context.Context, user domain.Owner, guestSessionID string) (*domain.Cart, error) {
	s.owner, s.guest = user, guestSessionID
	return s.cart, s.err
}

func (s *ServiceMock) Validate(_ context.Context, owner domain.Owner) (*service.ValidationResult, error) {
	s.owner = owner
	if s.err != nil {
		return nil, s.err
	}
	return &service.ValidationResult{IsValid: true, Cart: s.cart}, nil
}

func newTestHandler(svc CartService) *CartHandler {
	ids := session.NewResolver(session.NewTokenVerifier(testSecret))
	return NewCartHandler(svc, ids, 5*time.Second, logger.Discard())
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := session.Sign(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + token
}

func withProductID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("productID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestGetCart_Success(t *testing.T) {
	svc := &ServiceMock{cart: &domain.Cart{ID: "c1", UserID: "u1", Items: []domain.CartLine{{ProductID: "p1", Quantity: 2}}}}
	handler := newTestHandler(svc)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/", nil)
	request.Header.Set("Authorization", bearer(t, "u1"))

	handler.GetCart(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	var response struct {
		ID    string `json:"id"`
		Items []struct {
			ProductID string `json:"product_id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.ID != "c1" || len(response.Items) != 1 {
		t.Errorf("Unexpected cart in response: %+v", response)
	}
	if svc.owner != domain.UserOwner("u1") {
		t.Errorf("Expected owner user:u1, got %s", svc.owner)
	}
}

func TestGetCart_WithoutIdentityIsAllowed(t *testing.T) {
	svc := &ServiceMock{cart: &domain.Cart{Items: []domain.CartLine{}}}
	handler := newTestHandler(svc)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, httptest.NewRequest("GET", "/", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.owner.Valid() {
		t.Errorf("Expected no owner, got %s", svc.owner)
	}
}

func TestGetCart_InvalidToken(t *testing.T) {
	handler := newTestHandler(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/", nil)
	request.Header.Set("Authorization", "Bearer nope")
	request.Header.Set(session.HeaderSessionID, "guest-1")

	handler.GetCart(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
	if resp := decodeError(t, recorder); resp.Code != "invalid_token" {
		t.Errorf("Expected error code 'invalid_token', got '%s'", resp.Code)
	}
}

func TestAddItem_Success(t *testing.T) {
	svc := &ServiceMock{cart: &domain.Cart{ID: "c1", SessionID: "guest-1"}}
	handler := newTestHandler(svc)

	body, _ := json.Marshal(AddItemRequestDTO{ProductID: "p1", Quantity: 2, Variant: map[string]string{"size": "M"}})
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/items", bytes.NewReader(body))
	request.Header.Set(session.HeaderSessionID, "guest-1")

	handler.AddItem(recorder, request)

	if recorder.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}
	if svc.owner != domain.SessionOwner("guest-1") {
		t.Errorf("Expected owner session:guest-1, got %s", svc.owner)
	}
	if svc.ref.ProductID != "p1" || svc.qty != 2 || svc.ref.Variant["size"] != "M" {
		t.Errorf("Unexpected call: %+v qty=%d", svc.ref, svc.qty)
	}
}

func TestAddItem_SessionRequired(t *testing.T) {
	handler := newTestHandler(&ServiceMock{})

	body, _ := json.Marshal(AddItemRequestDTO{ProductID: "p1", Quantity: 2})
	recorder := httptest.NewRecorder()
	handler.AddItem(recorder, httptest.NewRequest("POST", "/items", bytes.NewReader(body)))

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	if resp := decodeError(t, recorder); resp.Code != "session_required" {
		t.Errorf("Expected error code 'session_required', got '%s'", resp.Code)
	}
}

func TestAddItem_InvalidJSON(t *testing.T) {
	handler := newTestHandler(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/items", bytes.NewReader([]byte("invalid json")))
	request.Header.Set(session.HeaderSessionID, "guest-1")

	handler.AddItem(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	if resp := decodeError(t, recorder); resp.Code != "invalid_request" {
		t.Errorf("Expected error code 'invalid_request', got '%s'", resp.Code)
	}
}

func TestAddItem_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing product", `{"quantity":1}`, "product_id"},
		{"zero quantity", `{"product_id":"p1","quantity":0}`, "quantity"},
		{"quantity over cap", `{"product_id":"p1","quantity":101}`, "quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestHandler(&ServiceMock{})
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest("POST", "/items", bytes.NewReader([]byte(tt.body)))
			request.Header.Set(session.HeaderSessionID, "guest-1")

			handler.AddItem(recorder, request)

			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
			}
			resp := decodeError(t, recorder)
			details, _ := resp.Details.(map[string]any)
			if _, ok := details[tt.field]; !ok {
				t.Errorf("Expected details for %q, got %v", tt.field, resp.Details)
			}
		})
	}
}

func TestAddItem_ErrorMapping(t *testing.T) {
	current := &domain.Cart{ID: "c1", SessionID: "guest-1", Items: []domain.CartLine{{ProductID: "p1", Quantity: 4}}}
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
		{&domain.StockError{ProductID: "p1", Available: 5, Requested: 6}, http.StatusConflict, "out_of_stock"},
		{domain.ErrConflict, http.StatusConflict, "conflict"},
		{domain.ErrQuantityLimit, http.StatusBadRequest, "quantity_limit"},
		{domain.ErrServiceUnavailable, http.StatusBadGateway, "service_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			handler := newTestHandler(&ServiceMock{cart: current, err: tt.err})
			body, _ := json.Marshal(AddItemRequestDTO{ProductID: "p1", Quantity: 2})
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest("POST", "/items", bytes.NewReader(body))
			request.Header.Set(session.HeaderSessionID, "guest-1")

			handler.AddItem(recorder, request)

			if recorder.Code != tt.status {
				t.Errorf("Expected status code %d, got %d", tt.status, recorder.Code)
			}
			resp := decodeError(t, recorder)
			if resp.Code != tt.code {
				t.Errorf("Expected error code '%s', got '%s'", tt.code, resp.Code)
			}
			if resp.Cart == nil || resp.Cart.Items[0].Quantity != 4 {
				t.Errorf("Expected the current cart in the error body, got %+v", resp.Cart)
			}
		})
	}
}

func TestAddItem_StockDetails(t *testing.T) {
	handler := newTestHandler(&ServiceMock{err: &domain.StockError{ProductID: "p1", Available: 5, Requested: 6}})
	body, _ := json.Marshal(AddItemRequestDTO{ProductID: "p1", Quantity: 2})
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/items", bytes.NewReader(body))
	request.Header.Set(session.HeaderSessionID, "guest-1")

	handler.AddItem(recorder, request)

	details, _ := decodeError(t, recorder).Details.(map[string]any)
	if details["available"] != float64(5) || details["requested"] != float64(6) {
		t.Errorf("Unexpected stock details: %v", details)
	}
}

func TestUpdateItem_PassesQuantityAndVariant(t *testing.T) {
	svc := &ServiceMock{cart: &domain.Cart{}}
	handler := newTestHandler(svc)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("PUT", "/items/p1", bytes.NewReader([]byte(`{"quantity":0,"variant":{"size":"L"}}`)))
	request.Header.Set(session.HeaderSessionID, "guest-1")
	request = withProductID(request, "p1")

	handler.UpdateItem(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.ref.ProductID != "p1" || svc.ref.Variant["size"] != "L" || svc.qty != 0 {
		t.Errorf("Unexpected call: %+v qty=%d", svc.ref, svc.qty)
	}
}

func TestUpdateItem_QuantityRequired(t *testing.T) {
	handler := newTestHandler(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("PUT", "/items/p1", bytes.NewReader([]byte(`{}`)))
	request.Header.Set(session.HeaderSessionID, "guest-1")
	request = withProductID(request, "p1")

	handler.UpdateItem(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestRemoveItem_EmptyBody(t *testing.T) {
	svc := &ServiceMock{cart: &domain.Cart{}}
	handler := newTestHandler(svc)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/items/p1", nil)
	request.Header.Set(session.HeaderSessionID, "guest-1")
	request = withProductID(request, "p1")

	handler.RemoveItem(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, recorder.Code)
	}
	if svc.ref.ProductID != "p1" || svc.ref.Variant != nil {
		t.Errorf("Unexpected ref: %+v", svc.ref)
	}
}

func TestRemoveItem_NotFound(t *testing.T) {
	handler := newTestHandler(&ServiceMock{err: domain.ErrItemNotFound})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/items/p1", nil)
	request.Header.Set(session.HeaderSessionID, "guest-1")
	request = withProductID(request, "p1")

	handler.RemoveItem(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestApplyCoupon_Invalid(t *testing.T) {
	handler := newTestHandler(&ServiceMock{err: domain.ErrInvalidCoupon})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/coupon", bytes.NewReader([]byte(`{"code":"NOPE"}`)))
	request.Header.Set(session.HeaderSessionID, "guest-1")

	handler.ApplyCoupon(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, recorder.Code)
	}
	if resp := decodeError(t, recorder); resp.Code != "invalid_coupon" {
		t.Errorf("Expected error code 'invalid_coupon', got '%s'", resp.Code)
	}
}

func TestMerge_RequiresUser(t *testing.T) {
	handler := newTestHandler(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/merge", nil)
	request.Header.Set(session.HeaderSessionID, "guest-1")

	handler.Merge(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, recorder.Code)
	}
}

func TestMerge_GuestFromHeaderOrBody(t *testing.T) {
	svc := &ServiceMock{cart: &domain.Cart{}}
	handler := newTestHandler(svc)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/merge", nil)
	request.Header.Set("Authorization", bearer(t, "u1"))
	request.Header.Set(session.HeaderSessionID, "guest-h")
	handler.Merge(recorder, request)

	if recorder.Code != http.StatusOK || svc.guest != "guest-h" || svc.owner != domain.UserOwner("u1") {
		t.Errorf("Unexpected merge: status=%d guest=%q owner=%s", recorder.Code, svc.guest, svc.owner)
	}

	recorder = httptest.NewRecorder()
	request = httptest.NewRequest("POST", "/merge", bytes.NewReader([]byte(`{"session_id":"guest-b"}`)))
	request.Header.Set("Authorization", bearer(t, "u1"))
	request.Header.Set(session.HeaderSessionID, "guest-h")
	handler.Merge(recorder, request)

	if svc.guest != "guest-b" {
		t.Errorf("Expected body session to win, got %q", svc.guest)
	}
}

func TestNewSession(t *testing.T) {
	handler := newTestHandler(&ServiceMock{})

	recorder := httptest.NewRecorder()
	handler.NewSession(recorder, httptest.NewRequest("POST", "/session", nil))

	if recorder.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, recorder.Code)
	}
	var resp SessionResponse
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil || resp.SessionID == "" {
		t.Errorf("Expected a session id, got %+v (%v)", resp, err)
	}
}
