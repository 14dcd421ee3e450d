// Package httputil centralizes JSON response writing and domain error
// translation so every handler produces the same envelopes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "verifyd/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the standard error envelope:
//
//	{"error": "<code>", "error_description": "<message>"}
//
// Internal errors omit the description so infrastructure details (oracle
// stderr, SQL errors) never reach clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, StatusOf(code), body)
}

// StatusOf maps domain error codes to HTTP status codes.
func StatusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeNotCertified:
		return http.StatusForbidden
	case dErrors.CodeQuotaExceeded:
		return http.StatusPaymentRequired
	case dErrors.CodeConflict, dErrors.CodeAlreadyCertified:
		return http.StatusConflict
	case dErrors.CodeSourceMissing:
		return http.StatusGone
	case dErrors.CodeStampingFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
