// Package shared holds the response helpers every handler package uses, so
// the error envelope stays identical across modules.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "pagemd/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError translates a domain error into the HTTP error envelope. Errors
// without a domain code render as a generic 500; internal detail never
// reaches the client.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.GetCode(err)
	status := dErrors.ToHTTPStatus(code)

	message := "internal server error"
	var domainErr *dErrors.DomainError
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   string(code),
		Message: message,
	})
}

// WriteJSON renders a success payload.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
