package middleware

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON body of every response.
type Envelope struct {
	Success           bool         `json:"success"`
	Message           string       `json:"message,omitempty"`
	Data              any          `json:"data,omitempty"`
	Errors            []FieldError `json:"errors,omitempty"`
	Code              string       `json:"code,omitempty"`
	RequiresTwoFactor bool         `json:"requires_two_factor,omitempty"`
	RetryAfter        int          `json:"retry_after,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes env with the given status.
func WriteJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteError writes a failed envelope carrying only message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}
