package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/salulink/authi-claims/analysis"
	"github.com/salulink/authi-claims/caserecord"
	"github.com/salulink/authi-claims/catalog"
	"github.com/salulink/authi-claims/claim"
	"github.com/salulink/authi-claims/interfaces"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
	"github.com/salulink/authi-claims/refdata/entities"
)

// Deps are the collaborators of a controller
type Deps struct {
	Catalog  interfaces.CatalogLookup
	Detector interfaces.ConditionDetector
	Store    interfaces.CaseRepository
	Exporter interfaces.ClaimExporter
}

// Controller drives one case. It is not safe for concurrent use; callers
// serialize access per session.
type Controller struct {
	deps Deps

	stage    Stage
	previous Stage
	record   *caserecord.Record

	// documentation edits are committed by Next and dropped otherwise
	draft map[string]caserecord.Documentation
	plan  catalog.Plan

	lastAnalysis *analysis.Result
	lastSaved    *caserecord.Record
	// set by a successful save or export
	completed bool
}

// New returns a controller at NoteInput with an empty record
func New(deps Deps) *Controller {
	return &Controller{
		deps:   deps,
		stage:  StageNoteInput,
		record: caserecord.New(),
		plan:   catalog.PlanAll,
	}
}

// Stage returns the current stage
func (c *Controller) Stage() Stage { return c.stage }

// Record returns a copy of the working record
func (c *Controller) Record() *caserecord.Record { return c.record.Clone() }

// Plan returns the medication plan filter
func (c *Controller) Plan() catalog.Plan { return c.plan }

// LastAnalysis returns the outcome of the latest Analyze, nil before any
func (c *Controller) LastAnalysis() *analysis.Result { return c.lastAnalysis }

// LastSaved returns the snapshot produced by the latest Save, nil before any
func (c *Controller) LastSaved() *caserecord.Record {
	if c.lastSaved == nil {
		return nil
	}
	return c.lastSaved.Clone()
}

// Documentation returns the documentation as currently edited: the draft in
// the Documentation stage, the committed record otherwise
func (c *Controller) Documentation() map[string]caserecord.Documentation {
	src := c.record.Documentation
	if c.draft != nil {
		src = c.draft
	}
	out := make(map[string]caserecord.Documentation, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (c *Controller) require(op string, allowed ...Stage) error {
	for _, s := range allowed {
		if c.stage == s {
			return nil
		}
	}
	return wrongStage(op, c.stage, allowed...)
}

// moveTo changes stage without guards. Leaving Documentation drops the draft;
// entering it starts one from the committed documentation.
func (c *Controller) moveTo(to Stage) {
	from := c.stage
	if from == to {
		return
	}
	if from == StageDocumentation {
		c.draft = nil
	}
	if to == StageDocumentation {
		c.draft = make(map[string]caserecord.Documentation, len(c.record.Documentation))
		for k, v := range c.record.Documentation {
			c.draft[k] = v
		}
	}
	c.stage = to

	metrics.StageTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	logging.Debug("Stage transition", "from", from.String(), "to", to.String())
}

// guard reports whether stage s may be entered with the current record, and
// where to go instead
func (c *Controller) guard(s Stage) (bool, Stage) {
	r := c.record
	switch s {
	case StageConditionConfirmation:
		return len(r.DetectedConditions) > 0, StageNoteInput
	case StageICDSelection:
		return r.ConfirmedCondition != "", StageConditionConfirmation
	case StageTreatmentProtocol:
		return r.ConfirmedCondition != "", StageICDSelection
	case StageDocumentation:
		return r.HasBasket(), StageTreatmentProtocol
	case StageMedicationSelection:
		return r.ConfirmedCondition != "", StageDocumentation
	case StageRegistration:
		return r.ConfirmedCondition != "", StageMedicationSelection
	case StageCompleted:
		return c.completed, StageRegistration
	}
	return true, s
}

// resolve follows guard redirects from s until a guard holds. Every
// redirect goes to an earlier stage and NoteInput always holds.
func (c *Controller) resolve(s Stage) Stage {
	for {
		ok, redirect := c.guard(s)
		if ok {
			return s
		}
		s = redirect
	}
}

// enter moves to s, or to where its guard redirects
func (c *Controller) enter(s Stage) Stage {
	target := c.resolve(s)
	if target != s {
		logging.Debug("Stage entry redirected", "target", s.String(), "redirect", target.String())
	}
	c.moveTo(target)
	return target
}

// Enter moves to a stage of the linear sequence through its entry guard and
// returns the stage actually entered. Moving forward goes one stage at a time
// through the exit rules of every stage passed, stopping at the first that
// fails.
func (c *Controller) Enter(s Stage) (Stage, error) {
	if !s.Linear() {
		return c.stage, fmt.Errorf("%w: cannot enter %s directly", ErrUnknownStage, s)
	}
	if c.stage == StageViewSavedCases {
		c.moveTo(c.previous)
	}

	target := c.resolve(s)
	if target <= c.stage {
		return c.enter(target), nil
	}
	for c.stage < target {
		if c.stage == StageRegistration {
			// target is Completed and its guard holds
			c.moveTo(StageCompleted)
			break
		}
		before := c.stage
		if _, err := c.Next(); err != nil {
			return c.stage, err
		}
		if c.stage <= before {
			break
		}
	}
	return c.stage, nil
}

// SetNote replaces the clinical note
func (c *Controller) SetNote(note string) error {
	if err := c.require("set note", StageNoteInput); err != nil {
		return err
	}
	c.record.ClinicalNote = note
	return nil
}

// Analyze detects conditions in the note and moves to ConditionConfirmation.
// Detection never fails; a service failure is reported in the result.
func (c *Controller) Analyze(ctx context.Context) (analysis.Result, error) {
	if err := c.require("analyze", StageNoteInput); err != nil {
		return analysis.Result{}, err
	}
	if strings.TrimSpace(c.record.ClinicalNote) == "" {
		return analysis.Result{}, invalid(c.stage, "clinicalNote", "Please enter a clinical note")
	}

	result := c.deps.Detector.Detect(ctx, c.record.ClinicalNote)
	c.lastAnalysis = &result

	c.record.DetectedConditions = append([]string{}, result.Conditions...)
	if c.record.ConfirmedCondition != "" && !c.record.HasDetected(c.record.ConfirmedCondition) {
		logging.Debug("Confirmed condition no longer detected, clearing it", "condition", c.record.ConfirmedCondition)
		c.record.ConfirmedCondition = ""
		c.record.ClearDownstream()
	}

	c.enter(StageConditionConfirmation)
	return result, nil
}

// SelectCondition confirms one of the detected conditions. Changing an
// earlier confirmation drops the selections made for it.
func (c *Controller) SelectCondition(condition string) error {
	if err := c.require("select condition", StageConditionConfirmation); err != nil {
		return err
	}
	if !c.record.HasDetected(condition) {
		return invalid(c.stage, "condition", fmt.Sprintf("%q is not one of the detected conditions", condition))
	}
	if c.record.ConfirmedCondition != "" && c.record.ConfirmedCondition != condition {
		c.record.ClearDownstream()
	}
	c.record.ConfirmedCondition = condition
	return nil
}

// ToggleICDCode selects or deselects an ICD code of the confirmed condition
// and reports whether it is selected afterwards
func (c *Controller) ToggleICDCode(code string) (bool, error) {
	if err := c.require("toggle ICD code", StageICDSelection); err != nil {
		return false, err
	}
	entry, ok := c.deps.Catalog.FindICDCode(c.record.ConfirmedCondition, code)
	if !ok {
		return false, invalid(c.stage, "code", fmt.Sprintf("ICD code %q does not belong to %s", code, c.record.ConfirmedCondition))
	}
	return c.record.SelectedICDCodes.Toggle(entry), nil
}

// ToggleProcedure selects or deselects a procedure in a basket. The first
// selection in a basket makes the basket present.
func (c *Controller) ToggleProcedure(basket entities.BasketType, code string) (bool, error) {
	if err := c.require("toggle procedure", StageTreatmentProtocol); err != nil {
		return false, err
	}
	p, ok := c.deps.Catalog.FindProcedure(c.record.ConfirmedCondition, basket, code)
	if !ok {
		return false, invalid(c.stage, "code", fmt.Sprintf("procedure %q is not in the %s basket of %s", code, basket, c.record.ConfirmedCondition))
	}
	return c.record.Basket(basket, true).Toggle(p.BasketItem()), nil
}

// SetQuantity sets the quantity of a selected procedure from user input.
// Input below 1 or unparseable becomes 1; the covered count caps it.
func (c *Controller) SetQuantity(basket entities.BasketType, code, raw string) (int, error) {
	if err := c.require("set quantity", StageTreatmentProtocol); err != nil {
		return 0, err
	}
	b := c.record.Basket(basket, false)
	if b == nil || !b.SetQuantity(code, raw) {
		return 0, invalid(c.stage, "code", fmt.Sprintf("procedure %q is not selected", code))
	}
	item, _ := b.Get(code)
	return item.Quantity, nil
}

func (c *Controller) requireSelectedProcedure(code string) error {
	if c.record.DiagnosticBasket.Contains(code) || c.record.ManagementBasket.Contains(code) {
		return nil
	}
	return invalid(c.stage, "code", fmt.Sprintf("procedure %q is not selected", code))
}

// SetDocumentationNotes records notes for a selected procedure
func (c *Controller) SetDocumentationNotes(code, notes string) error {
	if err := c.require("set documentation notes", StageDocumentation); err != nil {
		return err
	}
	if err := c.requireSelectedProcedure(code); err != nil {
		return err
	}
	doc := c.draft[code]
	doc.Notes = notes
	c.draft[code] = doc
	return nil
}

// AttachFile attaches a file, already encoded as a data URL, to a selected
// procedure, replacing any previous attachment
func (c *Controller) AttachFile(code string, file caserecord.Attachment) error {
	if err := c.require("attach file", StageDocumentation); err != nil {
		return err
	}
	if err := c.requireSelectedProcedure(code); err != nil {
		return err
	}
	doc := c.draft[code]
	doc.File = &file
	c.draft[code] = doc
	return nil
}

// SetPlanFilter changes the plan used to filter medications
func (c *Controller) SetPlanFilter(plan catalog.Plan) error {
	if err := c.require("set plan filter", StageMedicationSelection); err != nil {
		return err
	}
	c.plan = plan
	return nil
}

// ToggleMedication selects or deselects a medicine of the confirmed
// condition. Excluded medicines are never selected; toggling one is a no-op.
func (c *Controller) ToggleMedication(key entities.MedicineKey) (bool, error) {
	if err := c.require("toggle medication", StageMedicationSelection); err != nil {
		return false, err
	}
	med, ok := c.deps.Catalog.FindMedicine(c.record.ConfirmedCondition, key)
	if !ok {
		return false, invalid(c.stage, "medicine", fmt.Sprintf("%s (%s) is not listed for %s", key.MedicineName, key.ActiveIngredient, c.record.ConfirmedCondition))
	}
	return c.record.SelectedMedications.Toggle(med), nil
}

// SetRegistrationNote replaces the registration note
func (c *Controller) SetRegistrationNote(note string) error {
	if err := c.require("set registration note", StageRegistration); err != nil {
		return err
	}
	c.record.RegistrationNote = note
	return nil
}

// validateExit checks the rules for leaving the current stage forward
func (c *Controller) validateExit() error {
	r := c.record
	switch c.stage {
	case StageNoteInput:
		if len(r.DetectedConditions) == 0 {
			return invalid(c.stage, "clinicalNote", "Please analyze the clinical note first")
		}
	case StageConditionConfirmation:
		if r.ConfirmedCondition == "" {
			return invalid(c.stage, "condition", "Please select a condition")
		}
	case StageICDSelection:
		if r.SelectedICDCodes.Len() == 0 {
			return invalid(c.stage, "icdCodes", "Please select at least one ICD-10 code")
		}
	case StageTreatmentProtocol:
		if r.BasketItemCount() == 0 {
			return invalid(c.stage, "baskets", "Please select at least one procedure or test")
		}
	}
	return nil
}

// Next moves one stage forward after validating the current one. Leaving
// Documentation this way commits the documentation edits.
func (c *Controller) Next() (Stage, error) {
	switch c.stage {
	case StageRegistration, StageCompleted, StageViewSavedCases:
		return c.stage, wrongStage("next", c.stage,
			StageNoteInput, StageConditionConfirmation, StageICDSelection,
			StageTreatmentProtocol, StageDocumentation, StageMedicationSelection)
	}
	if err := c.validateExit(); err != nil {
		return c.stage, err
	}
	if c.stage == StageDocumentation {
		c.record.Documentation = c.draft
		c.draft = nil
	}
	return c.enter(c.stage + 1), nil
}

// Skip leaves Documentation without committing the edits
func (c *Controller) Skip() (Stage, error) {
	if err := c.require("skip", StageDocumentation); err != nil {
		return c.stage, err
	}
	return c.enter(StageMedicationSelection), nil
}

// Back moves one stage backward without validation. From Completed it
// returns to Registration; from the saved cases view it closes the view.
func (c *Controller) Back() (Stage, error) {
	switch c.stage {
	case StageNoteInput:
		return c.stage, nil
	case StageViewSavedCases:
		return c.CloseSavedCases()
	}
	return c.enter(c.stage - 1), nil
}

// Save stores a snapshot of the case and moves to Completed. The working
// record is unchanged.
func (c *Controller) Save(ctx context.Context) (*caserecord.Record, error) {
	if err := c.require("save", StageRegistration); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	saved, err := c.deps.Store.Save(c.record)
	if err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}
	c.lastSaved = saved
	c.completed = true
	c.enter(StageCompleted)
	return saved.Clone(), nil
}

// Export renders the claim for the working record. From Registration a
// successful export completes the case; from Completed it only re-renders.
func (c *Controller) Export(ctx context.Context) (*claim.Claim, error) {
	if err := c.require("export", StageRegistration, StageCompleted); err != nil {
		return nil, err
	}
	doc, err := c.deps.Exporter.Export(ctx, c.record)
	if err != nil {
		return nil, err
	}
	if c.stage == StageRegistration {
		c.completed = true
		c.enter(StageCompleted)
	}
	return doc, nil
}

// NewCase drops the working record and starts over at NoteInput
func (c *Controller) NewCase() {
	c.record = caserecord.New()
	c.draft = nil
	c.plan = catalog.PlanAll
	c.lastAnalysis = nil
	c.lastSaved = nil
	c.completed = false
	c.moveTo(StageNoteInput)
	c.previous = StageNoteInput
}

// OpenSavedCases enters the saved cases view, remembering the current stage
func (c *Controller) OpenSavedCases() Stage {
	if c.stage != StageViewSavedCases {
		c.previous = c.stage
		c.moveTo(StageViewSavedCases)
	}
	return c.stage
}

// CloseSavedCases leaves the saved cases view to the stage it was opened from
func (c *Controller) CloseSavedCases() (Stage, error) {
	if err := c.require("close saved cases", StageViewSavedCases); err != nil {
		return c.stage, err
	}
	return c.enter(c.previous), nil
}

// LoadCase replaces the working record with a detached copy of a saved case
// and moves to Registration
func (c *Controller) LoadCase(id int64) (Stage, error) {
	if err := c.require("load case", StageViewSavedCases); err != nil {
		return c.stage, err
	}
	rec, err := c.deps.Store.LoadForEdit(id)
	if err != nil {
		return c.stage, err
	}
	c.record = rec
	c.draft = nil
	c.plan = catalog.PlanAll
	c.lastAnalysis = nil
	c.lastSaved = nil
	c.completed = false
	return c.enter(StageRegistration), nil
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
