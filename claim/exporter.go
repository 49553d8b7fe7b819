package claim

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/salulink/authi-claims/caserecord"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/metrics"
)

// Claim is a rendered claim document
type Claim struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Exporter renders claims for one product name
type Exporter struct {
	product  string
	renderer Renderer
	nowFunc  func() time.Time
}

// NewExporter creates an exporter. product prefixes the filename and the
// document title.
func NewExporter(product string, renderer Renderer) *Exporter {
	return &Exporter{
		product:  product,
		renderer: renderer,
		nowFunc:  time.Now,
	}
}

// Title is the document title for the product
func (e *Exporter) Title() string {
	return e.product + " Chronic Treatment Claim"
}

// Filename is <product>_Claim_<unix millis><ext>
func (e *Exporter) Filename(at time.Time) string {
	return fmt.Sprintf("%s_Claim_%d%s", e.product, at.UnixMilli(), e.renderer.Extension())
}

// Export lays out and renders rec. It never modifies rec.
func (e *Exporter) Export(ctx context.Context, rec *caserecord.Record) (*Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.nowFunc()
	doc := Layout(rec, Options{Title: e.Title(), Date: now})

	var buf bytes.Buffer
	if err := e.renderer.Render(doc, &buf); err != nil {
		metrics.ClaimsExportedTotal.WithLabelValues("error").Inc()
		logging.Error("Claim export failed", "error", err, "case_id", rec.ID)
		return nil, fmt.Errorf("failed to render claim: %w", err)
	}

	metrics.ClaimsExportedTotal.WithLabelValues("ok").Inc()
	claim := &Claim{
		Filename:    e.Filename(now),
		ContentType: e.renderer.ContentType(),
		Data:        buf.Bytes(),
	}
	logging.Info("Claim exported", "filename", claim.Filename, "pages", len(doc.Pages), "bytes", len(claim.Data))
	return claim, nil
}
