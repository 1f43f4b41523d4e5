package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

const (
	contentTypeHeader = "Content-Type"
	locationHeader    = "Location"
	allowHeader       = "Allow"
	applicationJSON   = "application/json"
	jsonPatch         = "application/json-patch+json"

	devicesPath = "/v1/devices"
)

type (
	deviceData struct {
		ID           openapi_types.UUID `json:"id"`
		Name         string             `json:"name"`
		Brand        string             `json:"brand"`
		State        string             `json:"state"`
		CreationTime time.Time          `json:"creationTime"`
		UpdatedAt    *time.Time         `json:"updatedAt,omitempty"`
	}

	paginationData struct {
		Page        uint `json:"page"`
		Size        uint `json:"size"`
		TotalItems  uint `json:"totalItems"`
		TotalPages  uint `json:"totalPages"`
		HasNext     bool `json:"hasNext"`
		HasPrevious bool `json:"hasPrevious"`
	}

	deviceListResponse struct {
		Data       []deviceData   `json:"data"`
		Pagination paginationData `json:"pagination"`
	}

	createDeviceRequest struct {
		Name  string  `json:"name"`
		Brand string  `json:"brand"`
		State *string `json:"state,omitempty"`
	}

	updateDeviceRequest struct {
		Name         string  `json:"name"`
		Brand        string  `json:"brand"`
		State        *string `json:"state,omitempty"`
		CreationTime *string `json:"creationTime"`
	}
)

func writeJSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set(contentTypeHeader, applicationJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func deviceLocation(id model.DeviceID) string {
	return fmt.Sprintf("%s/%s", devicesPath, id.String())
}

func toDeviceData(device *model.Device) deviceData {
	data := deviceData{
		ID:           device.ID.UUID,
		Name:         device.Name,
		Brand:        device.Brand,
		State:        device.State.String(),
		CreationTime: device.CreationTime,
	}

	if !device.UpdatedAt.IsZero() {
		updatedAt := device.UpdatedAt
		data.UpdatedAt = &updatedAt
	}

	return data
}

func toDeviceListResponse(list *model.DeviceList) deviceListResponse {
	data := make([]deviceData, 0, len(list.Devices))
	for index := range list.Devices {
		data = append(data, toDeviceData(list.Devices[index]))
	}

	return deviceListResponse{
		Data: data,
		Pagination: paginationData{
			Page:        list.Pagination.Page,
			Size:        list.Pagination.Size,
			TotalItems:  list.Pagination.TotalItems,
			TotalPages:  list.Pagination.TotalPages,
			HasNext:     list.Pagination.HasNext,
			HasPrevious: list.Pagination.HasPrevious,
		},
	}
}
