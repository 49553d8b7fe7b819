package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salulink/authi-claims/caserecord"
	"github.com/salulink/authi-claims/claim"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/session"
	"github.com/salulink/authi-claims/workflow"
)

// multipart parts above this size spill to temporary files
const maxUploadMemory = 8 << 20

// CaseSummary is one line of the saved cases list
type CaseSummary struct {
	ID                 int64     `json:"id"`
	CreatedAt          time.Time `json:"createdAt"`
	ConfirmedCondition string    `json:"confirmedCondition"`
	ICDCodes           int       `json:"icdCodes"`
	Procedures         int       `json:"procedures"`
	Medications        int       `json:"medications"`
}

// SavedCasesResponse is returned when the saved cases view is opened
type SavedCasesResponse struct {
	Stage workflow.Stage `json:"stage"`
	Cases []CaseSummary  `json:"cases"`
}

func summarize(records []*caserecord.Record) []CaseSummary {
	out := make([]CaseSummary, 0, len(records))
	for _, rec := range records {
		out = append(out, CaseSummary{
			ID:                 rec.ID,
			CreatedAt:          rec.CreatedAt,
			ConfirmedCondition: rec.ConfirmedCondition,
			ICDCodes:           rec.SelectedICDCodes.Len(),
			Procedures:         rec.BasketItemCount(),
			Medications:        rec.SelectedMedications.Len(),
		})
	}
	return out
}

// ListCases returns the saved cases in save order
func (h *HTTPHandlerImpl) ListCases(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, summarize(h.cases.List()))
}

// GetCase returns one saved case
func (h *HTTPHandlerImpl) GetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	rec, err := h.cases.Get(id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, rec)
}

// ExportCase renders the claim of a saved case without loading it
func (h *HTTPHandlerImpl) ExportCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	rec, err := h.cases.Get(id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	doc, err := h.exporter.Export(r.Context(), rec)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	writeClaim(w, doc)
}

// Export renders the claim of the working record. From Registration this
// completes the case.
func (h *HTTPHandlerImpl) Export(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		doc, err := c.Export(r.Context())
		if err != nil {
			return err
		}
		writeClaim(w, doc)
		return nil
	})
}

func writeClaim(w http.ResponseWriter, doc *claim.Claim) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		logging.Warn("Failed to write claim", "filename", doc.Filename, "error", err)
	}
}

// AttachFile stores an uploaded multipart "file" as a data URL on the
// documentation of a selected procedure
func (h *HTTPHandlerImpl) AttachFile(w http.ResponseWriter, r *http.Request) {
	code, ok := h.codeParam(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		RespondWithError(w, http.StatusBadRequest, "Expected a multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	if err := h.validator.ValidateAttachment(header.Filename, header.Size); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	attachment := caserecord.Attachment{Name: header.Filename, Data: dataURL(header.Header.Get("Content-Type"), data)}
	h.withSession(w, r, func(s *session.Session, c *workflow.Controller) error {
		if err := c.AttachFile(code, attachment); err != nil {
			return err
		}
		RespondWithJSON(w, http.StatusOK, c.Documentation())
		return nil
	})
}

// dataURL encodes data as an RFC 2397 base64 data URL
func dataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func caseIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "caseID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		logging.Warn("Unusual user input", "caseID", raw)
		RespondWithError(w, http.StatusBadRequest, "Invalid case ID")
		return 0, false
	}
	return id, true
}
