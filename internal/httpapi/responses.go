package httpapi

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"gallerybot/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		WriteJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{
			Code:    "validation_error",
			Message: "invalid request",
			Fields:  ve.Fields,
		}})
		return
	}

	code := ""
	var ce *domain.CodedError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_error", "invalid request")
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, orCode(code, "not_found"), "not found")
	case errors.Is(err, domain.ErrConflict):
		WriteError(w, http.StatusConflict, orCode(code, "conflict"), "conflict")
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, orCode(code, "forbidden"), "forbidden")
	case errors.Is(err, domain.ErrPersistence):
		WriteError(w, http.StatusServiceUnavailable, "persistence_failed", "could not save, try again")
	case errors.Is(err, domain.ErrDelivery):
		WriteError(w, http.StatusBadGateway, "delivery_failed", "delivery failed")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func orCode(code, fallback string) string {
	if code != "" {
		return code
	}
	return fallback
}
