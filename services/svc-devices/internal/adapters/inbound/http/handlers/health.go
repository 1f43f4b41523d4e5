package handlers

import (
	"net/http"
	"time"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases/queries"
)

type HealthHandler struct {
	app *usecases.Application
}

func NewHealthHandler(app *usecases.Application) *HealthHandler {
	return &HealthHandler{app: app}
}

// HealthCheck reports every dependency. Only an unhealthy report, meaning a
// critical dependency failed, answers 503.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Queries.FetchHealthReport.Execute(r.Context(), queries.FetchHealthReportQuery{})
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":    queries.StatusUnhealthy,
			"timestamp": time.Now().UTC(),
		})

		return
	}

	status := http.StatusOK
	if result.Status == queries.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, result)
}

func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Queries.FetchLiveness.Execute(r.Context(), queries.FetchLivenessQuery{})
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, queries.LivenessResult{Status: queries.StatusUnavailable})

		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Queries.FetchReadiness.Execute(r.Context(), queries.FetchReadinessQuery{})
	if err != nil || !result.Ready {
		writeJSONResponse(w, http.StatusServiceUnavailable, queries.ReadinessResult{Status: queries.StatusUnavailable})

		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}
