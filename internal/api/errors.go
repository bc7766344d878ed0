package api

import (
	"encoding/json"
	"net/http"

	"github.com/wallet-cards/internal/types"
)

// ErrorResponse is the wire shape of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// mapServiceError maps service errors to HTTP status codes. Upstream
// messages are forwarded; unknown errors stay generic.
func mapServiceError(err error) (int, string) {
	if serviceErr, ok := err.(*types.ServiceError); ok {
		switch serviceErr.Code {
		case types.CodeInvalidWallet, types.CodeInvalidInput:
			return http.StatusBadRequest, serviceErr.Message
		case types.CodeUpstreamUnavailable, types.CodeUpstreamQueryFailed, types.CodeRenderFailed:
			return http.StatusInternalServerError, serviceErr.Message
		case types.CodeMethodNotAllowed:
			return http.StatusMethodNotAllowed, serviceErr.Message
		default:
			return http.StatusInternalServerError, "Unexpected server error"
		}
	}

	return http.StatusInternalServerError, "Unexpected server error"
}
