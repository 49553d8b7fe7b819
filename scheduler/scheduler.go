// Package scheduler reloads the reference datasets on a daily schedule and
// runs the housekeeping jobs of the intake service: idle session eviction
// and stale data monitoring.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/salulink/authi-claims/interfaces"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
	"github.com/salulink/authi-claims/refdata"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

const (
	evictionInterval = 10 * time.Minute
	staleAfter       = 25 * time.Hour
)

// SessionEvictor drops sessions idle for longer than maxIdle
type SessionEvictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// Options configures the scheduled jobs
type Options struct {
	ReloadAt    string        // gocron At() expression, "06:00;18:00"
	SessionIdle time.Duration // zero disables eviction
}

// Scheduler handles reference data reloads and housekeeping using
// dependency injection
type Scheduler struct {
	catalog   interfaces.CatalogStore
	loader    interfaces.DatasetLoader
	validator interfaces.DataValidator
	sessions  SessionEvictor
	opts      Options
	scheduler *gocron.Scheduler
	nowFunc   func() time.Time
}

// NewScheduler creates a new scheduler instance with injected dependencies.
// sessions may be nil.
func NewScheduler(catalog interfaces.CatalogStore, loader interfaces.DatasetLoader, validator interfaces.DataValidator, sessions SessionEvictor, opts Options) *Scheduler {
	if opts.ReloadAt == "" {
		opts.ReloadAt = "06:00;18:00"
	}
	return &Scheduler{
		catalog:   catalog,
		loader:    loader,
		validator: validator,
		sessions:  sessions,
		opts:      opts,
		scheduler: gocron.NewScheduler(time.Local),
		nowFunc:   time.Now,
	}
}

// Start performs the initial load, then schedules the reloads and the
// housekeeping jobs. A failed initial load leaves the catalog empty and the
// service running.
func (s *Scheduler) Start() error {
	if err := s.Reload(); err != nil {
		logging.Error("Initial reference data load failed, serving an empty catalog", "error", err)
	}

	if _, err := s.scheduler.Every(1).Days().At(s.opts.ReloadAt).Do(func() {
		if err := s.Reload(); err != nil {
			logging.Error("Failed to reload reference data", "error", err)
		}
	}); err != nil {
		logging.Error("Failed to schedule reloads", "error", err)
		return fmt.Errorf("failed to schedule reloads: %w", err)
	}

	if s.sessions != nil && s.opts.SessionIdle > 0 {
		if _, err := s.scheduler.Every(evictionInterval).WaitForSchedule().Do(func() {
			s.sessions.EvictIdle(s.opts.SessionIdle)
		}); err != nil {
			return fmt.Errorf("failed to schedule session eviction: %w", err)
		}
	}

	if _, err := s.scheduler.Every(1).Hour().WaitForSchedule().Do(s.checkStaleness); err != nil {
		return fmt.Errorf("failed to schedule staleness check: %w", err)
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Reload loads the datasets and swaps them into the catalog. When every
// dataset fails and the catalog already serves data, the current data is
// kept.
func (s *Scheduler) Reload() error {
	// Prevent concurrent updates
	if !s.catalog.BeginUpdate() {
		logging.Info("Reload already in progress, skipping...")
		return nil
	}
	defer s.catalog.EndUpdate()

	logging.Info(fmt.Sprintf("Starting reference data reload at: %s", s.nowFunc().Format(time.RFC3339)))
	start := time.Now()

	ds := s.loader.Load()
	if ds.Failed() {
		if len(s.catalog.Conditions()) > 0 {
			return fmt.Errorf("every dataset failed to load, keeping the data loaded at %s",
				s.catalog.GetLastUpdated().Format(time.RFC3339))
		}
		s.catalog.Replace(ds)
		s.recordRows(ds)
		return fmt.Errorf("every dataset failed to load")
	}

	s.logReport(s.validator.ReportDataQuality(ds))

	s.catalog.Replace(ds)
	s.recordRows(ds)

	logging.Info("Reference data reload completed",
		"duration", time.Since(start).String(),
		"conditions", len(s.catalog.Conditions()),
		"failed_datasets", len(ds.Errors))
	return nil
}

func (s *Scheduler) recordRows(ds *refdata.Dataset) {
	metrics.CatalogRows.WithLabelValues(refdata.DatasetConditions).Set(float64(len(ds.Conditions)))
	metrics.CatalogRows.WithLabelValues(refdata.DatasetTreatments).Set(float64(len(ds.Treatments)))
	metrics.CatalogRows.WithLabelValues(refdata.DatasetMedicines).Set(float64(len(ds.Medicines)))
}

func (s *Scheduler) logReport(report *interfaces.DataQualityReport) {
	if len(report.DuplicateICDCodes) > 0 {
		logging.Warn("Duplicate ICD codes detected",
			"conditions", len(report.DuplicateICDCodes),
			"codes", report.DuplicateICDCodes,
		)
	}

	if len(report.DuplicateProcedures) > 0 {
		logging.Warn("Duplicate procedures detected",
			"conditions", len(report.DuplicateProcedures),
			"codes", report.DuplicateProcedures,
		)
	}

	if len(report.UnknownBasketTypes) > 0 {
		logging.Warn("Treatments with unknown basket types are ignored",
			"basket_types", report.UnknownBasketTypes,
		)
	}

	if len(report.ConditionsWithoutICD) > 0 {
		logging.Warn("Conditions without ICD codes",
			"count", len(report.ConditionsWithoutICD),
			"conditions", report.ConditionsWithoutICD,
		)
	}

	if len(report.ConditionsWithoutMeds) > 0 {
		logging.Info("Conditions without medicines",
			"count", len(report.ConditionsWithoutMeds),
			"conditions", report.ConditionsWithoutMeds,
		)
	}

	logging.Info("Data quality report",
		"non_numeric_coverage", report.NonNumericCoverage,
		"excluded_medicines", report.ExcludedMedicines,
		"failed_datasets", report.FailedDatasets,
	)
}

// checkStaleness warns when the reference data has not been reloaded
func (s *Scheduler) checkStaleness() {
	lastUpdate := s.catalog.GetLastUpdated()
	if lastUpdate.IsZero() || s.nowFunc().Sub(lastUpdate) > staleAfter {
		logging.Warn("Reference data hasn't been updated in over 25 hours",
			"last_update", lastUpdate.Format(time.RFC3339))
	}
}
