package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"github.com/architeacher/device-inventory/pkg/idempotency"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/middleware"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases/commands"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases/queries"
)

const (
	allowCollection = "GET, POST, OPTIONS"
	allowDevice     = "GET, PUT, PATCH, DELETE, OPTIONS"
)

type DeviceHandler struct {
	app    *usecases.Application
	logger logger.Logger
}

func NewDeviceHandler(app *usecases.Application, log logger.Logger) *DeviceHandler {
	return &DeviceHandler{
		app:    app,
		logger: log.Component("device_handler"),
	}
}

func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	filter, err := params.filter()
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	h.list(w, r, filter)
}

func (h *DeviceHandler) ListDevicesByBrand(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	params.State = nil

	filter, err := params.filter()
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	if filter.Brand == nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, msgBrandRequired)

		return
	}

	h.list(w, r, filter)
}

func (h *DeviceHandler) ListDevicesByState(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	if params.State == nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, msgInvalidState)

		return
	}

	params.Brand = nil

	filter, err := params.filter()
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	h.list(w, r, filter)
}

func (h *DeviceHandler) list(w http.ResponseWriter, r *http.Request, filter model.DeviceFilter) {
	result, err := h.app.Queries.ListDevices.Execute(r.Context(), queries.ListDevicesQuery{Filter: filter})
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	writeJSONResponse(w, http.StatusOK, toDeviceListResponse(result))
}

func (h *DeviceHandler) OptionsDevices(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(allowHeader, allowCollection)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, msgInvalidRequestBody)

		return
	}

	device, err := h.app.Commands.CreateDevice.Handle(r.Context(), commands.CreateDeviceCommand{
		Name:  req.Name,
		Brand: req.Brand,
		State: stateOrDefault(req.State),
	})
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	if key, ok := idempotency.FromContext(r.Context()); ok {
		reqLogger := h.logger.WithContext(r.Context())
		reqLogger.Debug().Str("idempotency_key", key).Str("device_id", device.ID.String()).Msg("device created")
	}

	w.Header().Set(locationHeader, deviceLocation(device.ID))
	writeJSONResponse(w, http.StatusCreated, toDeviceData(device))
}

func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := bindDeviceID(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	device, err := h.app.Queries.GetDevice.Execute(r.Context(), queries.GetDeviceQuery{ID: id})
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	writeJSONResponse(w, http.StatusOK, toDeviceData(device))
}

func (h *DeviceHandler) OptionsDevice(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(allowHeader, allowDevice)
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := bindDeviceID(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, msgInvalidRequestBody)

		return
	}

	if req.CreationTime == nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, "creationTime is required")

		return
	}

	creationTime, err := time.Parse(time.RFC3339Nano, *req.CreationTime)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeInvalidInput, "creationTime must be an RFC 3339 timestamp")

		return
	}

	_, err = h.app.Commands.UpdateDevice.Handle(r.Context(), commands.UpdateDeviceCommand{
		ID:           id,
		Name:         req.Name,
		Brand:        req.Brand,
		State:        stateOrDefault(req.State),
		CreationTime: creationTime,
	})
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) PatchDevice(w http.ResponseWriter, r *http.Request) {
	id, err := bindDeviceID(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	if !acceptsPatchMediaType(r.Header.Get(contentTypeHeader)) {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, middleware.CodeUnsupportedMedia,
			"patch requests must use "+jsonPatch)

		return
	}

	ops, err := decodePatchDocument(r.Body)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	_, err = h.app.Commands.PatchDevice.Handle(r.Context(), commands.PatchDeviceCommand{
		ID:         id,
		Operations: ops,
	})
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{validationAsUnprocessable: true})

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := bindDeviceID(r)
	if err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	if _, err := h.app.Commands.DeleteDevice.Handle(r.Context(), commands.DeleteDeviceCommand{ID: id}); err != nil {
		h.writeServiceError(w, r, err, errorMapping{})

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// acceptsPatchMediaType allows JSON Patch and, for lenient clients, plain JSON.
func acceptsPatchMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == jsonPatch || mediaType == applicationJSON
}
