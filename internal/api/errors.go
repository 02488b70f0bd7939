package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx JSON response, for example
//
//	{"status":404,"code":"not_found","message":"Item not found"}
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Clients branch on these, not on the message text.
const (
	ErrCodeBadRequest     = "bad_request"         // 400: body is not JSON
	ErrCodeNotFound       = "not_found"           // 404: unknown item or route
	ErrCodeMethodNotAllow = "method_not_allowed"  // 405
	ErrCodeTooLarge       = "request_too_large"   // 413
	ErrCodeValidation     = "validation_error"    // 422: well-formed JSON, wrong shape
	ErrCodeInternal       = "internal_error"      // 500
	ErrCodeUnavailable    = "service_unavailable" // 503: optional integration disabled
)

// writeJSON sets the content type, writes status and encodes v. A nil v
// writes headers only.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
