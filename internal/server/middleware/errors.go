package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every error the server writes.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes a JSON error body tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     msg,
		RequestID: GetRequestID(r.Context()),
	})
}
