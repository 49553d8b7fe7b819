// Package handlers provides the HTTP handlers of the claim intake API. Every
// session route runs its workflow operation under the session lock and
// replies with JSON, except the claim download which streams the PDF.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salulink/authi-claims/analysis"
	"github.com/salulink/authi-claims/caserecord"
	"github.com/salulink/authi-claims/catalog"
	"github.com/salulink/authi-claims/interfaces"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/refdata/entities"
	"github.com/salulink/authi-claims/session"
	"github.com/salulink/authi-claims/workflow"
)

// SessionRegistry creates and finds workflow sessions
type SessionRegistry interface {
	Create() *session.Session
	Get(id string) (*session.Session, error)
	Delete(id string) error
}

// HTTPHandlerImpl serves the intake API
type HTTPHandlerImpl struct {
	sessions  SessionRegistry
	catalog   interfaces.CatalogStore
	cases     interfaces.CaseRepository
	exporter  interfaces.ClaimExporter
	validator interfaces.DataValidator
	health    interfaces.HealthChecker
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	sessions SessionRegistry,
	catalog interfaces.CatalogStore,
	cases interfaces.CaseRepository,
	exporter interfaces.ClaimExporter,
	validator interfaces.DataValidator,
	health interfaces.HealthChecker,
) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		sessions:  sessions,
		catalog:   catalog,
		cases:     cases,
		exporter:  exporter,
		validator: validator,
		health:    health,
	}
}

// Routes registers the API on r
func (h *HTTPHandlerImpl) Routes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/conditions", h.ListConditions)

		r.Get("/cases", h.ListCases)
		r.Get("/cases/{caseID}", h.GetCase)
		r.Get("/cases/{caseID}/claim", h.ExportCase)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)

			r.Put("/note", h.SetNote)
			r.Post("/analyze", h.Analyze)
			r.Put("/condition", h.SelectCondition)

			r.Get("/icd-codes", h.ICDOptions)
			r.Post("/icd-codes/{code}", h.ToggleICDCode)

			r.Get("/treatments", h.TreatmentOptions)
			r.Post("/treatments/{basket}/{code}", h.ToggleProcedure)
			r.Put("/treatments/{basket}/{code}/quantity", h.SetQuantity)

			r.Put("/documentation/{code}", h.SetDocumentationNotes)
			r.Post("/documentation/{code}/file", h.AttachFile)

			r.Get("/medications", h.MedicationOptions)
			r.Post("/medications", h.ToggleMedication)
			r.Put("/plan", h.SetPlanFilter)

			r.Put("/registration", h.SetRegistrationNote)

			r.Post("/next", h.Next)
			r.Post("/back", h.Back)
			r.Post("/skip", h.Skip)
			r.Post("/new", h.NewCase)
			r.Put("/stage", h.EnterStage)

			r.Post("/save", h.Save)
			r.Post("/export", h.Export)

			r.Post("/saved-cases", h.OpenSavedCases)
			r.Delete("/saved-cases", h.CloseSavedCases)
			r.Post("/saved-cases/{caseID}/load", h.LoadCase)
		})
	})
}

// AnalysisView is the JSON form of the last analysis
type AnalysisView struct {
	Conditions   []string        `json:"conditions"`
	Source       analysis.Source `json:"source"`
	ServiceError string          `json:"serviceError,omitempty"`
}

func newAnalysisView(res analysis.Result) *AnalysisView {
	v := &AnalysisView{Conditions: res.Conditions, Source: res.Source}
	if res.Err != nil {
		v.ServiceError = res.Err.Error()
	}
	return v
}

// SessionView is the state of a session as returned by the API
type SessionView struct {
	ID            string                              `json:"id"`
	CreatedAt     time.Time                           `json:"createdAt"`
	Stage         workflow.Stage                      `json:"stage"`
	Plan          catalog.Plan                        `json:"plan"`
	Record        *caserecord.Record                  `json:"record"`
	Documentation map[string]caserecord.Documentation `json:"documentation,omitempty"`
	LastAnalysis  *AnalysisView                       `json:"lastAnalysis,omitempty"`
	LastSavedID   int64                               `json:"lastSavedId,omitempty"`
}

func viewOf(s *session.Session, c *workflow.Controller) SessionView {
	v := SessionView{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		Stage:         c.Stage(),
		Plan:          c.Plan(),
		Record:        c.Record(),
		Documentation: c.Documentation(),
	}
	if res := c.LastAnalysis(); res != nil {
		v.LastAnalysis = newAnalysisView(*res)
	}
	if saved := c.LastSaved(); saved != nil {
		v.LastSavedID = saved.ID
	}
	return v
}

// StageResponse is returned by navigation operations
type StageResponse struct {
	Stage workflow.Stage `json:"stage"`
}

// ToggleResponse is returned by toggle operations
type ToggleResponse struct {
	Selected bool `json:"selected"`
}

// withSession resolves the {id} session and runs fn under its lock. Errors
// returned by fn are mapped to HTTP statuses; fn writes the success reply.
func (h *HTTPHandlerImpl) withSession(w http.ResponseWriter, r *http.Request, fn func(s *session.Session, c *workflow.Controller) error) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if err := s.Do(func(c *workflow.Controller) error { return fn(s, c) }); err != nil {
		respondWithDomainError(w, r, err)
	}
}

// CreateSession starts a new case workflow
func (h *HTTPHandlerImpl) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	_ = s.Do(func(c *workflow.Controller) error {
		RespondWithJSON(w, http.StatusCreated, viewOf(s, c))
		return nil
	})
}

// GetSession returns the stage and the working record
func (h *HTTPHandlerImpl) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		RespondWithJSON(w, http.StatusOK, viewOf(s, c))
		return nil
	})
}

// DeleteSession ends a session
func (h *HTTPHandlerImpl) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type noteRequest struct {
	Note string `json:"note"`
}

// SetNote replaces the clinical note
func (h *HTTPHandlerImpl) SetNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.ValidateNote(req.Note); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		if err := c.SetNote(req.Note); err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, viewOf(s, c))
		return nil
	})
}

// AnalyzeResponse is the outcome of a note analysis
type AnalyzeResponse struct {
	Stage workflow.Stage `json:"stage"`
	AnalysisView
}

// Analyze detects the conditions of the clinical note
func (h *HTTPHandlerImpl) Analyze(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		res, err := c.Analyze(r.Context())
		if err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, AnalyzeResponse{Stage: c.Stage(), AnalysisView: *newAnalysisView(res)})
		return nil
	})
}

type conditionRequest struct {
	Condition string `json:"condition"`
}

// SelectCondition confirms one of the detected conditions
func (h *HTTPHandlerImpl) SelectCondition(w http.ResponseWriter, r *http.Request) {
	var req conditionRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		if err := c.SelectCondition(req.Condition); err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, viewOf(s, c))
		return nil
	})
}

// ICDOptions lists the ICD codes of the confirmed condition
func (h *HTTPHandlerImpl) ICDOptions(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		RespondWithJSON(w, http.StatusOK, c.ICDOptions())
		return nil
	})
}

// ToggleICDCode selects or deselects an ICD code
func (h *HTTPHandlerImpl) ToggleICDCode(w http.ResponseWriter, r *http.Request) {
	code, ok := h.codeParam(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		selected, err := c.ToggleICDCode(code)
		if err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, ToggleResponse{Selected: selected})
		return nil
	})
}

// TreatmentOptions lists both baskets of the confirmed condition
func (h *HTTPHandlerImpl) TreatmentOptions(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		RespondWithJSON(w, http.StatusOK, c.TreatmentOptions())
		return nil
	})
}

// ToggleProcedure selects or deselects a procedure in a basket
func (h *HTTPHandlerImpl) ToggleProcedure(w http.ResponseWriter, r *http.Request) {
	basket, ok := basketParam(w, r)
	if !ok {
		return
	}
	code, ok := h.codeParam(w, r)
	if !ok {
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		selected, err := c.ToggleProcedure(basket, code)
		if err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, ToggleResponse{Selected: selected})
		return nil
	})
}

type quantityRequest struct {
	Quantity json.RawMessage `json:"quantity"`
}

// QuantityResponse is the quantity kept after clamping
type QuantityResponse struct {
	Quantity int `json:"quantity"`
}

// SetQuantity sets the quantity of a selected procedure. The quantity may be
// a number or a string; anything unparseable becomes 1.
func (h *HTTPHandlerImpl) SetQuantity(w http.ResponseWriter, r *http.Request) {
	basket, ok := basketParam(w, r)
	if !ok {
		return
	}
	code, ok := h.codeParam(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	raw := strings.Trim(string(req.Quantity), `"`)
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		qty, err := c.SetQuantity(basket, code, raw)
		if err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, QuantityResponse{Quantity: qty})
		return nil
	})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// SetDocumentationNotes records notes for a selected procedure
func (h *HTTPHandlerImpl) SetDocumentationNotes(w http.ResponseWriter, r *http.Request) {
	code, ok := h.codeParam(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.ValidateNote(req.Notes); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		if err := c.SetDocumentationNotes(code, req.Notes); err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, c.Documentation())
		return nil
	})
}

// MedicationOptions lists the medicines of the confirmed condition grouped
// by class. The plan query parameter filters this reply only.
func (h *HTTPHandlerImpl) MedicationOptions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("plan")
	var plan catalog.Plan
	if raw != "" {
		p, err := catalog.ParsePlan(raw)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		plan = p
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		RespondWithJSON(w, http.StatusOK, c.MedicationOptions(plan))
		return nil
	})
}

// ToggleMedication selects or deselects a medicine. Excluded medicines stay
// unselected.
func (h *HTTPHandlerImpl) ToggleMedication(w http.ResponseWriter, r *http.Request) {
	var key entities.MedicineKey
	if err := decodeJSON(r, &key); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(key.MedicineName) == "" {
		RespondWithError(w, http.StatusBadRequest, "medicineName is required")
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		selected, err := c.ToggleMedication(key)
		if err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, ToggleResponse{Selected: selected})
		return nil
	})
}

type planRequest struct {
	Plan string `json:"plan"`
}

// SetPlanFilter changes the plan used to filter medications
func (h *HTTPHandlerImpl) SetPlanFilter(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.ValidatePlan(req.Plan); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan, _ := catalog.ParsePlan(req.Plan)
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		if err := c.SetPlanFilter(plan); err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, c.MedicationOptions(""))
		return nil
	})
}

// SetRegistrationNote replaces the registration note
func (h *HTTPHandlerImpl) SetRegistrationNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.ValidateNote(req.Note); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		if err := c.SetRegistrationNote(req.Note); err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, viewOf(s, c))
		return nil
	})
}

func (h *HTTPHandlerImpl) navigate(w http.ResponseWriter, r *http.Request, move func(c *workflow.Controller) (workflow.Stage, error)) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		stage, err := move(c)
		if err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, StageResponse{Stage: stage})
		return nil
	})
}

// Next moves one stage forward
func (h *HTTPHandlerImpl) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, (*workflow.Controller).Next)
}

// Back moves one stage backward
func (h *HTTPHandlerImpl) Back(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, (*workflow.Controller).Back)
}

// Skip leaves Documentation without committing it
func (h *HTTPHandlerImpl) Skip(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, (*workflow.Controller).Skip)
}

// NewCase starts over with an empty record
func (h *HTTPHandlerImpl) NewCase(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, func(c *workflow.Controller) (workflow.Stage, error) {
		c.NewCase()
		return c.Stage(), nil
	})
}

type stageRequest struct {
	Stage string `json:"stage"`
}

// EnterStage jumps to a stage, subject to its entry guard
func (h *HTTPHandlerImpl) EnterStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	target, err := workflow.ParseStage(req.Stage)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.navigate(w, r, func(c *workflow.Controller) (workflow.Stage, error) {
		return c.Enter(target)
	})
}

// Save stores the case and completes it
func (h *HTTPHandlerImpl) Save(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		saved, err := c.Save(r.Context())
		if err != nil {
			return err
		}
		logging.Info("Case saved", "session_id", s.ID, "case_id", saved.ID)
		RespondWithJSON(w, http.StatusCreated, saved)
		return nil
	})
}

// OpenSavedCases enters the saved cases view and lists the saved cases
func (h *HTTPHandlerImpl) OpenSavedCases(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		stage := c.OpenSavedCases()
		RespondWithJSON(w, http.StatusOK, SavedCasesResponse{Stage: stage, Cases: summarize(h.cases.List())})
		return nil
	})
}

// CloseSavedCases leaves the saved cases view
func (h *HTTPHandlerImpl) CloseSavedCases(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, (*workflow.Controller).CloseSavedCases)
}

// LoadCase loads a saved case for editing
func (h *HTTPHandlerImpl) LoadCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	h.navigate(w, r, func(c *workflow.Controller) (workflow.Stage, error) {
		return c.LoadCase(id)
	})
}

// ListConditions returns the catalog condition names
func (h *HTTPHandlerImpl) ListConditions(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, h.catalog.Conditions())
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
}

// HealthCheck reports catalog, store and analysis service health
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, data, httpStatus := h.health.HealthCheck(r.Context())

	var uptime float64
	if start := h.catalog.GetServerStartTime(); !start.IsZero() {
		uptime = time.Since(start).Seconds()
	}

	RespondWithJSON(w, httpStatus, HealthResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Data:          data,
	})
}

func (h *HTTPHandlerImpl) codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := chi.URLParam(r, "code")
	if err := h.validator.ValidateCode(code); err != nil {
		logging.Warn("Unusual user input", "code", code)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return code, true
}

func basketParam(w http.ResponseWriter, r *http.Request) (entities.BasketType, bool) {
	raw := chi.URLParam(r, "basket")
	basket, ok := entities.ParseBasketType(raw)
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Basket must be diagnostic or management")
		return "", false
	}
	return basket, true
}
