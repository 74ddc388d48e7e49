package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/cheeseshop/internal/checkout"
	"github.com/fjod/cheeseshop/internal/repository"
	"github.com/fjod/cheeseshop/internal/service"
	"github.com/fjod/cheeseshop/internal/session"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts storefront errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, service.ErrUnknownItem):
		httpStatus = http.StatusNotFound
		code = "unknown_item"
	case errors.Is(err, repository.ErrPurchaseNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, session.ErrCheckoutInProgress):
		httpStatus = http.StatusConflict
		code = "checkout_in_progress"
	case errors.Is(err, checkout.ErrSubmissionFailed):
		httpStatus = http.StatusBadGateway
		code = "submission_failed"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	default:
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	}

	respondJSON(w, httpStatus, ErrorResponse{
		Error:   http.StatusText(httpStatus),
		Code:    code,
		Details: err.Error(),
	})
}
