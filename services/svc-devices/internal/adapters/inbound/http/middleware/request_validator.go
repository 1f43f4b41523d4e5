package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// RequestValidator rejects requests that do not match the OpenAPI document.
// Requests the document does not describe are passed on so the router can
// answer them with 404 or 405.
func RequestValidator(doc *openapi3.T, log logger.Logger) (func(http.Handler) http.Handler, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("building OpenAPI router: %w", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)

				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if !errors.Is(err, routers.ErrPathNotFound) && !errors.Is(err, routers.ErrMethodNotAllowed) {
					reqLogger := log.WithContext(r.Context())
					reqLogger.Warn().Err(err).Str("path", r.URL.Path).Msg("OpenAPI route lookup failed")
				}

				next.ServeHTTP(w, r)

				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options:    options,
			}

			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				var maxBytesErr *http.MaxBytesError
				if errors.As(err, &maxBytesErr) {
					WriteError(w, http.StatusRequestEntityTooLarge, CodeInvalidInput,
						fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit))

					return
				}

				var requestErr *openapi3filter.RequestError
				if errors.As(err, &requestErr) {
					WriteError(w, http.StatusBadRequest, CodeInvalidInput, validationMessage(requestErr))

					return
				}

				reqLogger := log.WithContext(r.Context())
				reqLogger.Error().Err(err).Str("path", r.URL.Path).Msg("request validation failed unexpectedly")
				WriteError(w, http.StatusInternalServerError, CodeInternalError, "request could not be validated")

				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func validationMessage(err *openapi3filter.RequestError) string {
	reason := err.Reason
	if reason == "" && err.Err != nil {
		reason = err.Err.Error()
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err.Err, &schemaErr) {
		reason = schemaErr.Reason
		if pointer := schemaErr.JSONPointer(); len(pointer) > 0 && err.Parameter == nil {
			return fmt.Sprintf("invalid request body at %q: %s", "/"+strings.Join(pointer, "/"), reason)
		}
	}

	switch {
	case err.Parameter != nil:
		return fmt.Sprintf("invalid %s parameter %q: %s", err.Parameter.In, err.Parameter.Name, reason)
	case err.RequestBody != nil:
		return "invalid request body: " + reason
	default:
		return reason
	}
}
