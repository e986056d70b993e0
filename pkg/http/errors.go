package http

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// LockedResponse is the 423 body for a locked account
type LockedResponse struct {
	Error            string     `json:"error"`
	Permanent        bool       `json:"permanent"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	RemainingSeconds int64      `json:"remaining_seconds,omitempty"`
	Message          string     `json:"message"`
}

// RateLimitedResponse is the 429 body for a throttled origin
type RateLimitedResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteInvalidCredentials is the single response for wrong or unknown credentials
func WriteInvalidCredentials(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid identifier or password")
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

// WriteLocked writes 423 Locked. A nil lockedUntil means the lock is permanent.
func WriteLocked(w http.ResponseWriter, lockedUntil *time.Time, remainingSeconds int64) {
	resp := LockedResponse{Error: "account_locked"}
	if lockedUntil == nil {
		resp.Permanent = true
		resp.Message = "Account is locked. Please contact an administrator."
	} else {
		until := lockedUntil.UTC()
		resp.LockedUntil = &until
		resp.RemainingSeconds = remainingSeconds
		resp.Message = "Account is temporarily locked. Please try again later."
	}
	WriteJSON(w, http.StatusLocked, resp)
}

// WriteRateLimited writes 429 with a Retry-After header in whole seconds
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int64(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	WriteJSON(w, http.StatusTooManyRequests, RateLimitedResponse{
		Error:             "rate_limited",
		Message:           "Too many attempts. Please try again later.",
		RetryAfterSeconds: seconds,
	})
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "service_unavailable", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
