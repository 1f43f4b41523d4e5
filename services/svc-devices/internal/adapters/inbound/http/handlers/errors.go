package handlers

import (
	"errors"
	"net/http"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/middleware"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/rs/zerolog"
)

const (
	codeImmutableField   = "IMMUTABLE_FIELD"
	codeStateLocked      = "STATE_LOCKED"
	codeMalformedPatch   = "MALFORMED_PATCH"
	codeValidationFailed = "VALIDATION_FAILED"
	codeNotFound         = "NOT_FOUND"

	msgDeviceNotFound     = "device not found"
	msgInvalidDeviceID    = "invalid device ID"
	msgInvalidRequestBody = "invalid request body"
	msgInvalidState       = "Invalid state. Valid values: Available, InUse, Inactive."
	msgBrandRequired      = "brand is required"
	msgInternalError      = "internal server error"
)

// errorMapping controls how a model validation failure is reported. Patch
// requests answer it with 422 and per-field details, other writes with 400.
type errorMapping struct {
	validationAsUnprocessable bool
}

func (h *DeviceHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, mapping errorMapping) {
	lifecycleErr, isLifecycle := model.AsLifecycleError(err)

	switch {
	case errors.Is(err, model.ErrInvalidInput):
		if isLifecycle && lifecycleErr.Fields != nil && lifecycleErr.Fields.HasErrors() {
			status, code := http.StatusBadRequest, middleware.CodeInvalidInput
			if mapping.validationAsUnprocessable {
				status, code = http.StatusUnprocessableEntity, codeValidationFailed
			}

			middleware.WriteErrorWithDetails(w, status, code, lifecycleErr.Error(), lifecycleErr.Fields.Errors)

			return
		}

		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, err.Error())
	case errors.Is(err, model.ErrInvalidDeviceID):
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, msgInvalidDeviceID)
	case errors.Is(err, model.ErrImmutableField):
		middleware.WriteError(w, http.StatusBadRequest, codeImmutableField, err.Error())
	case errors.Is(err, model.ErrStateLock):
		middleware.WriteError(w, http.StatusBadRequest, codeStateLocked, err.Error())
	case errors.Is(err, model.ErrMalformedPatch):
		middleware.WriteError(w, http.StatusBadRequest, codeMalformedPatch, err.Error())
	case errors.Is(err, model.ErrDeviceNotFound):
		middleware.WriteError(w, http.StatusNotFound, codeNotFound, msgDeviceNotFound)
	case errors.Is(err, model.ErrDuplicateDevice):
		middleware.WriteError(w, http.StatusConflict, middleware.CodeConflict, err.Error())
	case errors.Is(err, model.ErrServiceUnavailable):
		logError(h.logger, r, err).Msg("device store unavailable")
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.CodeServiceUnavailable, model.ErrServiceUnavailable.Error())
	default:
		logError(h.logger, r, err).Msg("device request failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternalError, msgInternalError)
	}
}

func logError(log logger.Logger, r *http.Request, err error) *zerolog.Event {
	reqLogger := log.WithContext(r.Context())

	return reqLogger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path)
}
