package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// Handler serves admission checks and bucket listings for one filter
type Handler struct {
	filter    *scopefence.Filter
	observers []scopefence.Observer
}

// NewHandler creates a new API handler. Observers see every decision made
// through POST /check.
func NewHandler(filter *scopefence.Filter, observers ...scopefence.Observer) *Handler {
	return &Handler{filter: filter, observers: observers}
}

// CheckRequest represents the incoming admission check request
type CheckRequest struct {
	ConsumerID string `json:"consumer_id,omitempty"` // Optional: empty is anonymous
	ProviderID string `json:"provider_id,omitempty"` // Optional: provider the call is routed to
}

// CheckResponse represents the admission check response
type CheckResponse struct {
	Allowed      bool   `json:"allowed"`
	Scope        string `json:"scope,omitempty"`          // Rejecting scope
	Key          string `json:"key,omitempty"`            // Rejecting bucket
	Message      string `json:"message,omitempty"`        // Rejection message
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"` // Milliseconds until retry (if rejected)
}

// LimitsResponse lists every bucket of the filter
type LimitsResponse struct {
	Filter   string                      `json:"filter"`
	Provider string                      `json:"provider,omitempty"`
	Buckets  []scopefence.BucketSnapshot `json:"buckets"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CheckRateLimit handles POST /check requests.
// The check is a real admission: it spends tokens like a proxied request.
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	ctx := scopefence.WithIdentity(r.Context(), scopefence.Identity{
		Consumer: req.ConsumerID,
		Provider: req.ProviderID,
	})
	d := h.filter.Decide(ctx)
	for _, o := range h.observers {
		o.ObserveDecision(ctx, h.filter.Name(), d)
	}

	statusCode := http.StatusOK
	response := CheckResponse{Allowed: d.Admitted}

	var rle *scopefence.RateLimitExceededError
	if err := h.filter.Err(d); errors.As(err, &rle) {
		statusCode = rle.StatusCode
		response.Scope = string(rle.Scope)
		response.Key = rle.Key.String()
		response.Message = rle.Message
		response.RetryAfterMs = rle.RetryAfter.Milliseconds()
	}

	writeJSON(w, statusCode, response)
}

// Limits handles GET /limits requests
func (h *Handler) Limits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	writeJSON(w, http.StatusOK, LimitsResponse{
		Filter:   h.filter.Name(),
		Provider: h.filter.Provider(),
		Buckets:  h.filter.Registry().Snapshot(),
	})
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
