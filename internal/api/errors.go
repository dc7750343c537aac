package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/deckscan-core/internal/autofocus"
	"github.com/nerrad567/deckscan-core/internal/deck"
	"github.com/nerrad567/deckscan-core/internal/experiment"
	"github.com/nerrad567/deckscan-core/internal/framestore"
	"github.com/nerrad567/deckscan-core/internal/motion"
	"github.com/nerrad567/deckscan-core/internal/scanlist"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeConflict   = "conflict"
	ErrCodeInternal   = "internal_error"
	ErrCodeValidation = "validation_error"
	ErrCodeHardware   = "hardware_error"
	ErrCodeBusy       = "busy"
	ErrCodeReadOnly   = "read_only"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorMapping ties a domain sentinel to an HTTP status and code.
type errorMapping struct {
	target error
	status int
	code   string
}

// domainErrors is checked in order; the first errors.Is match wins.
var domainErrors = []errorMapping{
	{scanlist.ErrReadOnly, http.StatusConflict, ErrCodeReadOnly},
	{experiment.ErrAlreadyRunning, http.StatusConflict, ErrCodeConflict},
	{experiment.ErrNotRunning, http.StatusConflict, ErrCodeConflict},
	{motion.ErrBusy, http.StatusConflict, ErrCodeBusy},
	{autofocus.ErrBusy, http.StatusConflict, ErrCodeBusy},

	{scanlist.ErrIndexOutOfRange, http.StatusNotFound, ErrCodeNotFound},
	{experiment.ErrRunNotFound, http.StatusNotFound, ErrCodeNotFound},

	{scanlist.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
	{scanlist.ErrCrossWell, http.StatusBadRequest, ErrCodeValidation},
	{scanlist.ErrInvalidGrid, http.StatusBadRequest, ErrCodeValidation},
	{scanlist.ErrConfiguration, http.StatusBadRequest, ErrCodeValidation},
	{scanlist.ErrInsufficientPoints, http.StatusBadRequest, ErrCodeValidation},
	{experiment.ErrInvalidParams, http.StatusBadRequest, ErrCodeValidation},
	{autofocus.ErrInvalidRange, http.StatusBadRequest, ErrCodeValidation},
	{deck.ErrResolution, http.StatusBadRequest, ErrCodeValidation},
	{deck.ErrUnknownSlot, http.StatusBadRequest, ErrCodeValidation},
	{deck.ErrUnknownWell, http.StatusBadRequest, ErrCodeValidation},
	{deck.ErrNoLabware, http.StatusBadRequest, ErrCodeValidation},
	{deck.ErrOutOfDeck, http.StatusBadRequest, ErrCodeValidation},
	{deck.ErrUnsupportedUnit, http.StatusBadRequest, ErrCodeValidation},
	{motion.ErrOutOfRange, http.StatusBadRequest, ErrCodeValidation},
	{motion.ErrUnknownAxis, http.StatusBadRequest, ErrCodeValidation},
	{framestore.ErrUnsupportedFormat, http.StatusBadRequest, ErrCodeValidation},

	{motion.ErrDriverTimeout, http.StatusBadGateway, ErrCodeHardware},
	{motion.ErrDriverDisconnected, http.StatusBadGateway, ErrCodeHardware},
}

// writeDomainError maps a domain error onto a structured response.
// Unknown errors become a 500 without leaking their text.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	s.logger.Error("request failed", "error", err)
	writeInternalError(w, "internal server error")
}
