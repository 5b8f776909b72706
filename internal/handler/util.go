package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/whatsapp-inbox/internal/service"
	"github.com/capitalize-ai/whatsapp-inbox/pkg/logger"
)

const maxBodyBytes = 64 << 10

// kindInvalidRequest marks requests rejected before they reach the controller.
const kindInvalidRequest = "invalid_request"

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response for a malformed request.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Kind: kindInvalidRequest})
}

// statusFor maps a controller error kind to an HTTP status.
func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState:
		return http.StatusConflict
	case service.KindGated:
		return http.StatusLocked
	case service.KindEmptyContent, service.KindMissingField:
		return http.StatusBadRequest
	case service.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes a controller error. Untyped errors are internal
// failures; their details are logged, not returned.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	kind := service.KindOf(err)
	if kind == "" {
		log.Error("request failed", zap.String("operation", op), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, statusFor(kind), errorResponse{Error: err.Error(), Kind: string(kind)})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
