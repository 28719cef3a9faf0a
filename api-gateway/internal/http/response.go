package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleGRPCError converts gRPC status codes to HTTP status codes.
func handleGRPCError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var httpStatus int
	var code string

	switch st.Code() {
	case codes.InvalidArgument:
		httpStatus = http.StatusBadRequest
		code = "invalid_argument"
	case codes.NotFound:
		httpStatus = http.StatusNotFound
		code = "not_found"
	case codes.Unauthenticated:
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case codes.ResourceExhausted:
		httpStatus = http.StatusTooManyRequests
		code = "rate_limit_exceeded"
	case codes.Unavailable:
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case codes.DeadlineExceeded:
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	}

	respondError(w, httpStatus, code, st.Message())
}
