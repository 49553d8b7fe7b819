package workflow

import (
	"github.com/salulink/authi-claims/catalog"
	"github.com/salulink/authi-claims/refdata/entities"
)

// ICDOption is a catalog ICD entry with its selection state
type ICDOption struct {
	entities.ICDEntry
	Selected bool `json:"selected"`
}

// ProcedureOption is a catalog procedure with its selection state
type ProcedureOption struct {
	entities.Procedure
	Selected bool `json:"selected"`
	Quantity int  `json:"quantity,omitempty"`
}

// TreatmentOptions are the two baskets of the confirmed condition
type TreatmentOptions struct {
	Diagnostic []ProcedureOption `json:"diagnostic"`
	Management []ProcedureOption `json:"management"`
}

// MedicationOption is a catalog medicine with its selection state
type MedicationOption struct {
	entities.Medicine
	Selected bool `json:"selected"`
}

// MedicationGroupOption is one medicine class after plan filtering
type MedicationGroupOption struct {
	MedicineClass string             `json:"medicineClass"`
	Medicines     []MedicationOption `json:"medicines"`
}

// ICDOptions lists the ICD entries of the confirmed condition
func (c *Controller) ICDOptions() []ICDOption {
	entries := c.deps.Catalog.LookupICDCodes(c.record.ConfirmedCondition)
	out := make([]ICDOption, 0, len(entries))
	for _, e := range entries {
		out = append(out, ICDOption{ICDEntry: e, Selected: c.record.SelectedICDCodes.Contains(e.Code)})
	}
	return out
}

// TreatmentOptions lists both baskets of the confirmed condition
func (c *Controller) TreatmentOptions() TreatmentOptions {
	diagnostic, management := c.deps.Catalog.LookupTreatments(c.record.ConfirmedCondition)
	return TreatmentOptions{
		Diagnostic: c.procedureOptions(diagnostic, entities.BasketDiagnostic),
		Management: c.procedureOptions(management, entities.BasketManagement),
	}
}

func (c *Controller) procedureOptions(list []entities.Procedure, basket entities.BasketType) []ProcedureOption {
	selected := c.record.Basket(basket, false)
	out := make([]ProcedureOption, 0, len(list))
	for _, p := range list {
		opt := ProcedureOption{Procedure: p}
		if item, ok := selected.Get(p.Code); ok {
			opt.Selected = true
			opt.Quantity = item.Quantity
		}
		out = append(out, opt)
	}
	return out
}

// MedicationOptions lists the medicines of the confirmed condition grouped by
// class, filtered with plan. An empty plan uses the controller's filter.
func (c *Controller) MedicationOptions(plan catalog.Plan) []MedicationGroupOption {
	if plan == "" {
		plan = c.plan
	}
	groups := catalog.FilterGroups(c.deps.Catalog.LookupMedications(c.record.ConfirmedCondition), plan)
	out := make([]MedicationGroupOption, 0, len(groups))
	for _, g := range groups {
		opts := make([]MedicationOption, 0, len(g.Medicines))
		for _, m := range g.Medicines {
			opts = append(opts, MedicationOption{Medicine: m, Selected: c.record.SelectedMedications.Contains(m.Key())})
		}
		out = append(out, MedicationGroupOption{MedicineClass: g.MedicineClass, Medicines: opts})
	}
	return out
}
