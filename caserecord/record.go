// Package caserecord holds the case record, the aggregate accumulated by the
// intake workflow and persisted by the case store.
package caserecord

import (
	"time"

	"github.com/salulink/authi-claims/refdata/entities"
	"github.com/salulink/authi-claims/selection"
)

type (
	ICDSelection        = selection.Set[string, entities.ICDEntry]
	Basket              = selection.Set[string, entities.BasketItem]
	MedicationSelection = selection.Set[entities.MedicineKey, entities.Medicine]
)

// Attachment is an uploaded supporting file, kept as a base64 data URL
type Attachment struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// Documentation is the supporting evidence recorded for one procedure code
type Documentation struct {
	Notes string      `json:"notes"`
	File  *Attachment `json:"file,omitempty"`
}

// Record is one clinical case. ID and CreatedAt stay zero until the case is
// saved. A nil basket is absent; an empty non-nil basket is present.
type Record struct {
	ID                  int64                    `json:"id,omitempty"`
	CreatedAt           time.Time                `json:"createdAt,omitzero"`
	ClinicalNote        string                   `json:"clinicalNote"`
	DetectedConditions  []string                 `json:"detectedConditions"`
	ConfirmedCondition  string                   `json:"confirmedCondition,omitempty"`
	SelectedICDCodes    ICDSelection             `json:"selectedIcdCodes"`
	DiagnosticBasket    *Basket                  `json:"diagnosticBasket,omitempty"`
	ManagementBasket    *Basket                  `json:"managementBasket,omitempty"`
	Documentation       map[string]Documentation `json:"documentation,omitempty"`
	SelectedMedications MedicationSelection      `json:"selectedMedications"`
	RegistrationNote    string                   `json:"registrationNote"`
}

// New returns an empty in-progress record
func New() *Record {
	return &Record{
		DetectedConditions: []string{},
		Documentation:      make(map[string]Documentation),
	}
}

// Saved reports whether the record was assigned an identity by the store
func (r *Record) Saved() bool { return r.ID != 0 }

// HasDetected reports whether condition is one of the detected labels
func (r *Record) HasDetected(condition string) bool {
	for _, c := range r.DetectedConditions {
		if c == condition {
			return true
		}
	}
	return false
}

// HasBasket reports whether at least one treatment basket is present
func (r *Record) HasBasket() bool {
	return r.DiagnosticBasket != nil || r.ManagementBasket != nil
}

// BasketItemCount is the number of procedures selected across both baskets
func (r *Record) BasketItemCount() int {
	return r.DiagnosticBasket.Len() + r.ManagementBasket.Len()
}

// Basket returns the basket of the given type, creating it when create is set
func (r *Record) Basket(t entities.BasketType, create bool) *Basket {
	switch t {
	case entities.BasketDiagnostic:
		if r.DiagnosticBasket == nil && create {
			r.DiagnosticBasket = &Basket{}
		}
		return r.DiagnosticBasket
	case entities.BasketManagement:
		if r.ManagementBasket == nil && create {
			r.ManagementBasket = &Basket{}
		}
		return r.ManagementBasket
	}
	return nil
}

// ClearDownstream drops every selection that depends on the confirmed
// condition
func (r *Record) ClearDownstream() {
	r.SelectedICDCodes.Clear()
	r.DiagnosticBasket = nil
	r.ManagementBasket = nil
	r.Documentation = make(map[string]Documentation)
	r.SelectedMedications.Clear()
}

// Clone returns a deep copy sharing no mutable state with r
func (r *Record) Clone() *Record {
	c := *r
	c.DetectedConditions = append([]string{}, r.DetectedConditions...)
	c.SelectedICDCodes = *r.SelectedICDCodes.Clone()
	c.DiagnosticBasket = r.DiagnosticBasket.Clone()
	c.ManagementBasket = r.ManagementBasket.Clone()
	c.SelectedMedications = *r.SelectedMedications.Clone()

	c.Documentation = make(map[string]Documentation, len(r.Documentation))
	for code, doc := range r.Documentation {
		if doc.File != nil {
			file := *doc.File
			doc.File = &file
		}
		c.Documentation[code] = doc
	}
	return &c
}
