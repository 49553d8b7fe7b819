package claim

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// Renderer draws a laid out document
type Renderer interface {
	Render(doc *Document, w io.Writer) error
	ContentType() string
	Extension() string
}

var (
	accent     = [3]int{159, 98, 237}
	headerText = [3]int{255, 255, 255}
	bodyText   = [3]int{0, 0, 0}
	gridColor  = [3]int{200, 200, 200}
)

// PDFRenderer renders documents with core Helvetica fonts
type PDFRenderer struct{}

// NewPDFRenderer returns a PDF renderer
func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

func (PDFRenderer) ContentType() string { return "application/pdf" }

func (PDFRenderer) Extension() string { return ".pdf" }

// Render writes doc as a PDF to w
func (PDFRenderer) Render(doc *Document, w io.Writer) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("authi-claims", true)
	pdf.SetMargins(Margin, TopY, Margin)
	// Pagination comes from the layout
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range doc.Pages {
		pdf.AddPage()
		for _, b := range page.Blocks {
			drawBlock(pdf, b, tr)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to build PDF: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

func drawBlock(pdf *fpdf.Fpdf, b Block, tr func(string) string) {
	switch b.Kind {
	case BlockTitle:
		pdf.SetFont("Helvetica", "B", b.FontSize)
		pdf.SetTextColor(accent[0], accent[1], accent[2])
		centered(pdf, tr(b.Lines[0]), b.Y)
	case BlockSubtitle:
		pdf.SetFont("Helvetica", "", b.FontSize)
		pdf.SetTextColor(bodyText[0], bodyText[1], bodyText[2])
		centered(pdf, tr(b.Lines[0]), b.Y)
	case BlockHeading:
		pdf.SetFont("Helvetica", "B", b.FontSize)
		pdf.SetTextColor(bodyText[0], bodyText[1], bodyText[2])
		pdf.Text(Margin, b.Y, tr(b.Lines[0]))
	case BlockParagraph:
		pdf.SetFont("Helvetica", "", b.FontSize)
		pdf.SetTextColor(bodyText[0], bodyText[1], bodyText[2])
		for i, line := range b.Lines {
			pdf.Text(Margin, b.Y+float64(i)*lineHeight, tr(line))
		}
	case BlockTableHeader, BlockTableRow:
		drawRow(pdf, b, tr)
	}
}

func centered(pdf *fpdf.Fpdf, text string, y float64) {
	x := (PageWidth - pdf.GetStringWidth(text)) / 2
	pdf.Text(x, y, text)
}

func drawRow(pdf *fpdf.Fpdf, b Block, tr func(string) string) {
	style, fill := "", "D"
	color := bodyText
	if b.Kind == BlockTableHeader {
		style, fill = "B", "FD"
		color = headerText
		pdf.SetFillColor(accent[0], accent[1], accent[2])
	}
	pdf.SetDrawColor(gridColor[0], gridColor[1], gridColor[2])
	pdf.SetFont("Helvetica", style, b.FontSize)
	pdf.SetTextColor(color[0], color[1], color[2])

	rowLine := b.FontSize * 0.5
	x := Margin
	for i, cell := range b.Cells {
		pdf.Rect(x, b.Y, b.Widths[i], b.Height, fill)
		for j, line := range cell {
			// Text takes the baseline, one line below the cell top
			pdf.Text(x+rowPadding, b.Y+rowPadding+float64(j+1)*rowLine-0.8, tr(line))
		}
		x += b.Widths[i]
	}
}
