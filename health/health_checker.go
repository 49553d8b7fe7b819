// Package health provides health checking functionality for the claim intake service.
package health

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/salulink/authi-claims/config"
	"github.com/salulink/authi-claims/interfaces"
)

// Pinger probes an external dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	catalog  interfaces.CatalogStore
	cases    interfaces.CaseRepository
	analysis Pinger
	reloadAt []time.Duration
	nowFunc  func() time.Time
}

// NewHealthChecker creates a new health checker with injected dependencies.
// analysis may be nil when no analysis service is configured.
func NewHealthChecker(catalog interfaces.CatalogStore, cases interfaces.CaseRepository, analysis Pinger, reloadAt string) interfaces.HealthChecker {
	times, err := config.ParseReloadAt(reloadAt)
	if err != nil {
		times = []time.Duration{6 * time.Hour, 18 * time.Hour}
	}
	return &HealthCheckerImpl{
		catalog:  catalog,
		cases:    cases,
		analysis: analysis,
		reloadAt: times,
		nowFunc:  time.Now,
	}
}

// HealthCheck returns HTTP-specific health data.
// The analysis service is informational only: the fallback heuristic keeps
// note analysis working while it is down.
func (h *HealthCheckerImpl) HealthCheck(ctx context.Context) (status string, data map[string]any, httpStatus int) {
	rows := h.catalog.RowCounts()
	loadErrors := h.catalog.LoadErrors()
	lastUpdate := h.catalog.GetLastUpdated()
	isUpdating := h.catalog.IsUpdating()
	conditions := len(h.catalog.Conditions())

	dataAge := h.nowFunc().Sub(lastUpdate)

	switch {
	case lastUpdate.IsZero() || conditions == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 48*time.Hour:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 24*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case len(loadErrors) > 0:
		status = "degraded"
		httpStatus = http.StatusOK

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	analysisStatus := "not_configured"
	if h.analysis != nil {
		if err := h.analysis.Ping(ctx); err != nil {
			analysisStatus = "unavailable"
		} else {
			analysisStatus = "available"
		}
	}

	data = map[string]any{
		"data_age_hours":   math.Round(dataAge.Hours()*10) / 10,
		"conditions":       conditions,
		"rows":             rows,
		"is_updating":      isUpdating,
		"analysis_service": analysisStatus,
		"next_update":      h.CalculateNextUpdate().Format(time.RFC3339),
	}
	if !lastUpdate.IsZero() {
		data["last_update"] = lastUpdate.Format(time.RFC3339)
	}
	if len(loadErrors) > 0 {
		data["load_errors"] = loadErrors
	}
	if h.cases != nil {
		data["saved_cases"] = h.cases.Count()
	}

	return status, data, httpStatus
}

// CalculateNextUpdate returns the next scheduled reference data reload
func (h *HealthCheckerImpl) CalculateNextUpdate() time.Time {
	now := h.nowFunc()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, offset := range h.reloadAt {
		if at := midnight.Add(offset); at.After(now) {
			return at
		}
	}

	// Every run of today has passed, next is the first one tomorrow
	return midnight.AddDate(0, 0, 1).Add(h.reloadAt[0])
}
