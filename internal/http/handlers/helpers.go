package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/clupso/server/internal/auth"
)

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}

// respondWithJSON sends a JSON response with the given status code
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondAuthError maps service errors onto the HTTP status contract.
// Unclassified errors become a generic 500 so internals never leak.
func respondAuthError(w http.ResponseWriter, err error) {
	var vErr *auth.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondWithError(w, http.StatusBadRequest, vErr.Message)
	case errors.Is(err, auth.ErrEmailTaken):
		respondWithError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidTOTP):
		respondWithError(w, http.StatusUnauthorized, "invalid TOTP code")
	case errors.Is(err, auth.ErrTOTPNotSetup):
		respondWithError(w, http.StatusBadRequest, "TOTP not set up")
	case errors.Is(err, auth.ErrTOTPNotEnabled):
		respondWithError(w, http.StatusBadRequest, "TOTP is not enabled")
	case errors.Is(err, auth.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, auth.ErrDeviceNotFound):
		respondWithError(w, http.StatusNotFound, "device not found")
	case errors.Is(err, auth.ErrResetTokenInvalid):
		respondWithError(w, http.StatusBadRequest, "invalid or expired reset token")
	case errors.Is(err, auth.ErrNotConfigured):
		log.Printf("Request failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "server configuration error")
	default:
		log.Printf("Request failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// Take first IP if multiple
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	return r.RemoteAddr
}

// clientInfo builds the activity metadata for a request.
func clientInfo(r *http.Request, deviceID, browser, os string) auth.ClientInfo {
	return auth.ClientInfo{
		IPAddress: getClientIP(r),
		Browser:   browser,
		OS:        os,
		DeviceID:  deviceID,
	}
}
