// Package interfaces defines the contracts between the intake service
// components, so the workflow, handlers and scheduler can be tested with
// in-memory doubles.
package interfaces

import (
	"context"
	"time"

	"github.com/salulink/authi-claims/analysis"
	"github.com/salulink/authi-claims/caserecord"
	"github.com/salulink/authi-claims/claim"
	"github.com/salulink/authi-claims/refdata"
	"github.com/salulink/authi-claims/refdata/entities"
)

// DataQualityReport summarizes issues found in the reference datasets
type DataQualityReport struct {
	DuplicateICDCodes     map[string][]string `json:"duplicateIcdCodes,omitempty"`
	DuplicateProcedures   map[string][]string `json:"duplicateProcedures,omitempty"`
	UnknownBasketTypes    []string            `json:"unknownBasketTypes,omitempty"`
	NonNumericCoverage    int                 `json:"nonNumericCoverage"`
	ExcludedMedicines     int                 `json:"excludedMedicines"`
	ConditionsWithoutICD  []string            `json:"conditionsWithoutIcd,omitempty"`
	ConditionsWithoutMeds []string            `json:"conditionsWithoutMedicines,omitempty"`
	FailedDatasets        []string            `json:"failedDatasets,omitempty"`
}

// CatalogLookup resolves reference data for one condition. Unknown
// conditions yield empty results, never errors.
type CatalogLookup interface {
	LookupICDCodes(condition string) []entities.ICDEntry
	LookupTreatments(condition string) (diagnostic, management []entities.Procedure)
	LookupMedications(condition string) []entities.MedicineGroup

	FindICDCode(condition, code string) (entities.ICDEntry, bool)
	FindProcedure(condition string, basket entities.BasketType, code string) (entities.Procedure, bool)
	FindMedicine(condition string, key entities.MedicineKey) (entities.Medicine, bool)
}

// CatalogStore is the reloadable catalog as seen by the scheduler and the
// health checker
type CatalogStore interface {
	CatalogLookup
	Replace(ds *refdata.Dataset)
	Conditions() []string
	RowCounts() map[string]int
	LoadErrors() map[string]string
	GetLastUpdated() time.Time
	BeginUpdate() bool
	EndUpdate()
	IsUpdating() bool
	GetServerStartTime() time.Time
}

// DatasetLoader reads the reference datasets
type DatasetLoader interface {
	Load() *refdata.Dataset
}

// ConditionDetector turns a clinical note into candidate conditions
type ConditionDetector interface {
	Detect(ctx context.Context, note string) analysis.Result
}

// CaseRepository stores saved cases
type CaseRepository interface {
	Save(rec *caserecord.Record) (*caserecord.Record, error)
	List() []*caserecord.Record
	Get(id int64) (*caserecord.Record, error)
	LoadForEdit(id int64) (*caserecord.Record, error)
	Count() int
}

// ClaimExporter renders a case record into a claim document
type ClaimExporter interface {
	Export(ctx context.Context, rec *caserecord.Record) (*claim.Claim, error)
}

// Scheduler manages periodic jobs
type Scheduler interface {
	Start() error
	Stop()
}

// HealthChecker reports service health
type HealthChecker interface {
	// HealthCheck returns the status label, details and the HTTP status to use
	HealthCheck(ctx context.Context) (status string, details map[string]any, httpStatus int)

	// CalculateNextUpdate returns the next scheduled reference data reload
	CalculateNextUpdate() time.Time
}

// DataValidator validates user input and reference data
type DataValidator interface {
	ValidateNote(note string) error
	ValidateCode(code string) error
	ValidatePlan(plan string) error
	ValidateAttachment(name string, size int64) error
	ReportDataQuality(ds *refdata.Dataset) *DataQualityReport
}
