package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

type ErrorResponse struct {
	Error   string       `json:"error"`
	Code    string       `json:"code,omitempty"`
	Details any          `json:"details,omitempty"`
	Cart    *domain.Cart `json:"cart,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorStatus maps a cart error to its HTTP status and stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNoIdentity):
		return http.StatusBadRequest, "session_required"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, domain.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidCoupon):
		return http.StatusBadRequest, "invalid_coupon"
	case errors.Is(err, domain.ErrQuantityLimit):
		return http.StatusBadRequest, "quantity_limit"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusBadGateway, "service_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// handleError writes err with the cart as it stood before the rejected
// change, so clients can re-render without another fetch.
func (h *CartHandler) handleError(w http.ResponseWriter, r *http.Request, err error, cart *domain.Cart) {
	status, code := errorStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: code, Cart: cart}

	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		resp.Details = map[string]int{
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		}
	}

	if status == http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		resp.Error = "internal server error"
	}
	respondJSON(w, status, resp)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
