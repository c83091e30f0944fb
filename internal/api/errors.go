package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"housekeeping/internal/apperr"
)

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Error: APIError{Code: code, Message: message},
	})
}

// WriteErr maps an engine error to its HTTP status and envelope.
// Internal errors never leak their cause to the client.
func WriteErr(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		WriteError(w, http.StatusServiceUnavailable, string(apperr.KindBusy), "request cancelled")
		return
	}
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	msg := "internal error"
	var e *apperr.Error
	if errors.As(err, &e) && kind != apperr.KindInternal {
		msg = e.Message
	} else if kind == apperr.KindBusy {
		msg = "timed out waiting for the entity lock"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	WriteError(w, status, string(kind), msg)
}

func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindInvalidTransition, apperr.KindInvalidRoomTransition, apperr.KindNotAssigned, apperr.KindInsufficientStock:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBusy:
		return http.StatusServiceUnavailable
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindIntegrity, apperr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into v, writing a VALIDATION_FAILED
// response and returning false when the body is malformed.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, string(apperr.KindValidation), "invalid json")
		return false
	}
	return true
}
