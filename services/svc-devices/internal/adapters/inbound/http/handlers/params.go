package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/domain/model"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

type listParams struct {
	Brand *string
	State *string
	Page  *int
	Size  *int
	Sort  *string
}

func bindDeviceID(r *http.Request) (model.DeviceID, error) {
	var id openapi_types.UUID

	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return model.DeviceID{}, model.ErrInvalidDeviceID
	}

	return model.DeviceID{UUID: id}, nil
}

func bindListParams(r *http.Request) (listParams, error) {
	var params listParams

	query := r.URL.Query()

	bindings := []struct {
		name string
		dest any
	}{
		{name: "brand", dest: &params.Brand},
		{name: "state", dest: &params.State},
		{name: "page", dest: &params.Page},
		{name: "size", dest: &params.Size},
		{name: "sort", dest: &params.Sort},
	}

	for _, binding := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, binding.name, query, binding.dest); err != nil {
			return listParams{}, &model.LifecycleError{
				Kind:    model.ErrInvalidInput,
				Message: fmt.Sprintf("invalid format for parameter %s", binding.name),
			}
		}
	}

	return params, nil
}

// filter turns bound query parameters into a device filter. A present but
// unknown state is reported with the canonical message.
func (p listParams) filter() (model.DeviceFilter, error) {
	filter := model.DefaultDeviceFilter()

	if p.Brand != nil && strings.TrimSpace(*p.Brand) != "" {
		brand := *p.Brand
		filter.Brand = &brand
	}

	if p.State != nil {
		state, err := model.ParseState(*p.State)
		if err != nil {
			return model.DeviceFilter{}, invalidStateError()
		}

		filter.State = &state
	}

	if p.Page != nil {
		if *p.Page < 1 {
			return model.DeviceFilter{}, invalidInput("page must be at least 1")
		}

		filter.Page = uint(*p.Page)
	}

	if p.Size != nil {
		if *p.Size < 1 || uint(*p.Size) > model.MaxPageSize {
			return model.DeviceFilter{}, invalidInput(fmt.Sprintf("size must be between 1 and %d", model.MaxPageSize))
		}

		filter.Size = uint(*p.Size)
	}

	if p.Sort != nil {
		sort, ok := model.ParseSort(*p.Sort)
		if !ok {
			return model.DeviceFilter{}, invalidInput(fmt.Sprintf("unsupported sort %q", *p.Sort))
		}

		filter.Sort = sort
	}

	return filter, nil
}

func invalidInput(message string) error {
	return &model.LifecycleError{Kind: model.ErrInvalidInput, Message: message}
}

func invalidStateError() error {
	return invalidInput(msgInvalidState)
}

// stateOrDefault resolves an optional request state; absent or empty means
// Available.
func stateOrDefault(raw *string) model.State {
	if raw == nil || *raw == "" {
		return model.StateAvailable
	}

	return requestState(*raw)
}

// requestState resolves a state sent in a request body. Unknown values are
// kept verbatim so field validation can report them.
func requestState(raw string) model.State {
	if state, err := model.ParseState(raw); err == nil {
		return state
	}

	return model.State(raw)
}
