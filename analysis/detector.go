package analysis

import (
	"context"
	"time"

	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
)

// Source tells where detected conditions came from
type Source string

const (
	SourceService  Source = "service"
	SourceFallback Source = "fallback"
)

// Result is the outcome of one detection. Err is the service failure that
// caused a fallback, if any; the conditions are always usable.
type Result struct {
	Conditions []string `json:"conditions"`
	Source     Source   `json:"source"`
	Err        error    `json:"-"`
}

// Service is the remote side of detection
type Service interface {
	Analyze(ctx context.Context, note string) ([]string, error)
}

// Detector combines the analysis service with the keyword fallback
type Detector struct {
	service Service
}

// NewDetector returns a detector. A nil service always uses the fallback.
func NewDetector(service Service) *Detector {
	return &Detector{service: service}
}

// Detect never fails: a service error or an empty label list is replaced by
// Fallback(note)
func (d *Detector) Detect(ctx context.Context, note string) Result {
	if d.service != nil {
		start := time.Now()
		conditions, err := d.service.Analyze(ctx, note)
		metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

		if err == nil && len(conditions) > 0 {
			metrics.AnalysisTotal.WithLabelValues(string(SourceService)).Inc()
			return Result{Conditions: conditions, Source: SourceService}
		}
		if err != nil {
			logging.Warn("Note analysis failed, using keyword fallback", "error", err)
		} else {
			logging.Warn("Note analysis detected nothing, using keyword fallback")
		}
		metrics.AnalysisTotal.WithLabelValues(string(SourceFallback)).Inc()
		return Result{Conditions: Fallback(note), Source: SourceFallback, Err: err}
	}

	metrics.AnalysisTotal.WithLabelValues(string(SourceFallback)).Inc()
	return Result{Conditions: Fallback(note), Source: SourceFallback}
}
