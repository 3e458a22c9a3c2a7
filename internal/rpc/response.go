package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/tron-run/tron/internal/apperr"
)

// ErrorResponse is the wire envelope for every failed call, REST or RPC.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the taxonomy code from apperr.Code alongside a
// human-readable message.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes outside the apperr taxonomy: malformed requests never reach
// a handler, so they never get a Kind to translate.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "SESSION_NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL"
)

// httpStatusForKind maps an apperr.Kind to the HTTP status REST callers
// expect; the RPC method-call endpoint ignores this and always answers
// 200 with the error embedded in the body, since a method error isn't a
// transport failure.
func httpStatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGuardrail:
		return http.StatusForbidden
	case apperr.KindInvariant:
		return http.StatusUnprocessableEntity
	case apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a hand-coded error response, for requests that never
// reach a Handler (bad JSON, missing path params).
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeErrorFromErr translates a Handler's returned error into the wire
// envelope via the apperr taxonomy, the single error-to-code path every
// REST route and the generic /rpc endpoint shares.
func writeErrorFromErr(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := apperr.Code(kind)
	if kind == apperr.KindNotFound {
		code = ErrCodeNotFound
	}
	writeJSON(w, httpStatusForKind(kind), ErrorResponse{Error: ErrorDetail{Code: code, Message: err.Error()}})
}

// writeSuccess writes a bare success acknowledgement.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
