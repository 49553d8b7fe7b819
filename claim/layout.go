// Package claim turns a case record into a claim document. Layout is a pure
// projection of the record into positioned pages; a Renderer draws them.
package claim

import (
	"strconv"
	"strings"
	"time"

	"github.com/salulink/authi-claims/caserecord"
)

// Page geometry in millimetres (A4 portrait)
const (
	PageWidth    = 210.0
	PageHeight   = 297.0
	Margin       = 20.0
	ContentWidth = PageWidth - 2*Margin
	TopY         = 20.0
	BottomY      = PageHeight - 15

	// A section starts on a new page when the offset is past its threshold
	SectionBreakY    = 250.0
	MedicationBreakY = 220.0

	titleSize      = 20.0
	headingSize    = 14.0
	bodySize       = 10.0
	tableSize      = 10.0
	smallSize      = 8.0
	lineHeight     = 5.0
	rowPadding     = 2.0
	headingAdvance = 7.0
	sectionGap     = 10.0
)

// BlockKind tells the renderer how to draw a block
type BlockKind int

const (
	BlockTitle BlockKind = iota
	BlockSubtitle
	BlockHeading
	BlockParagraph
	BlockTableHeader
	BlockTableRow
)

// Block is one positioned element. Table rows carry one wrapped cell per
// column; other blocks carry Lines.
type Block struct {
	Kind     BlockKind
	Y        float64
	Height   float64
	FontSize float64
	Lines    []string
	Cells    [][]string
	Widths   []float64
}

// Page is the blocks drawn on one page, top to bottom
type Page struct {
	Blocks []Block
}

// Document is a laid out claim
type Document struct {
	Title string
	Pages []Page
}

// Options controls the header of the document
type Options struct {
	Title string
	Date  time.Time
}

type table struct {
	heading  string
	columns  []string
	widths   []float64
	rows     [][]string
	fontSize float64
	breakY   float64
}

type layouter struct {
	doc *Document
	y   float64
}

// Layout projects rec into pages. It only reads rec. Sections without content
// are omitted.
func Layout(rec *caserecord.Record, opts Options) *Document {
	l := &layouter{doc: &Document{Title: opts.Title, Pages: []Page{{}}}, y: TopY}

	l.add(Block{Kind: BlockTitle, FontSize: titleSize, Lines: []string{opts.Title}})
	l.y += 15
	l.add(Block{Kind: BlockSubtitle, FontSize: bodySize, Lines: []string{"Date: " + opts.Date.Format("2006-01-02")}})
	l.y += 15

	if strings.TrimSpace(rec.ClinicalNote) != "" {
		l.textSection("Clinical Note:", rec.ClinicalNote)
	}

	if rec.ConfirmedCondition != "" {
		l.textSection("Confirmed Condition:", rec.ConfirmedCondition)
	}

	if icd := rec.SelectedICDCodes.Items(); len(icd) > 0 {
		t := table{
			heading:  "ICD-10 Codes:",
			columns:  []string{"Code", "Description"},
			widths:   []float64{35, ContentWidth - 35},
			fontSize: tableSize,
			breakY:   SectionBreakY,
		}
		for _, e := range icd {
			t.rows = append(t.rows, []string{e.Code, e.Description})
		}
		l.tableSection(t)
	}

	for _, b := range []struct {
		heading string
		basket  *caserecord.Basket
	}{
		{"Diagnostic Basket:", rec.DiagnosticBasket},
		{"Ongoing Management Basket:", rec.ManagementBasket},
	} {
		items := b.basket.Items()
		if len(items) == 0 {
			continue
		}
		t := table{
			heading:  b.heading,
			columns:  []string{"Procedure/Test", "Code", "Quantity"},
			widths:   []float64{ContentWidth - 60, 30, 30},
			fontSize: tableSize,
			breakY:   SectionBreakY,
		}
		for _, item := range items {
			t.rows = append(t.rows, []string{item.Description, item.Code, strconv.Itoa(item.Quantity)})
		}
		l.tableSection(t)
	}

	if meds := rec.SelectedMedications.Items(); len(meds) > 0 {
		t := table{
			heading:  "Selected Medications:",
			columns:  []string{"Medicine Name", "Active Ingredient", "Class", "CDA"},
			widths:   []float64{55, 45, 45, ContentWidth - 145},
			fontSize: smallSize,
			breakY:   MedicationBreakY,
		}
		for _, m := range meds {
			t.rows = append(t.rows, []string{m.MedicineName, m.ActiveIngredient, m.MedicineClass, m.CDACore})
		}
		l.tableSection(t)
	}

	if strings.TrimSpace(rec.RegistrationNote) != "" {
		l.textSection("Registration Note:", rec.RegistrationNote)
	}

	return l.doc
}

func (l *layouter) add(b Block) {
	b.Y = l.y
	page := &l.doc.Pages[len(l.doc.Pages)-1]
	page.Blocks = append(page.Blocks, b)
}

func (l *layouter) newPage() {
	l.doc.Pages = append(l.doc.Pages, Page{})
	l.y = TopY
}

func (l *layouter) startSection(heading string, breakY float64) {
	if l.y > breakY {
		l.newPage()
	}
	l.add(Block{Kind: BlockHeading, FontSize: headingSize, Lines: []string{heading}})
	l.y += headingAdvance
}

// textSection writes a heading and a wrapped paragraph, continuing the
// paragraph on new pages as needed
func (l *layouter) textSection(heading, text string) {
	l.startSection(heading, SectionBreakY)

	lines := Wrap(text, ContentWidth, bodySize)
	for len(lines) > 0 {
		fit := int((BottomY - l.y) / lineHeight)
		if fit < 1 {
			l.newPage()
			continue
		}
		if fit > len(lines) {
			fit = len(lines)
		}
		chunk := lines[:fit]
		lines = lines[fit:]
		l.add(Block{Kind: BlockParagraph, FontSize: bodySize, Lines: chunk, Height: float64(len(chunk)) * lineHeight})
		l.y += float64(len(chunk)) * lineHeight
	}
	l.y += sectionGap
}

// tableSection writes a grid table. Rows never split; the header repeats on
// every page the table continues to.
func (l *layouter) tableSection(t table) {
	l.startSection(t.heading, t.breakY)

	rowLine := t.fontSize * 0.5
	header := func() {
		h := rowLine + 2*rowPadding
		l.add(Block{Kind: BlockTableHeader, FontSize: t.fontSize, Cells: wrapCells(t.columns, t.widths, t.fontSize), Widths: t.widths, Height: h})
		l.y += h
	}
	header()

	for _, row := range t.rows {
		cells := wrapCells(row, t.widths, t.fontSize)
		lines := 1
		for _, c := range cells {
			if len(c) > lines {
				lines = len(c)
			}
		}
		h := float64(lines)*rowLine + 2*rowPadding
		if l.y+h > BottomY {
			l.newPage()
			header()
		}
		l.add(Block{Kind: BlockTableRow, FontSize: t.fontSize, Cells: cells, Widths: t.widths, Height: h})
		l.y += h
	}
	l.y += sectionGap
}

func wrapCells(values []string, widths []float64, fontSize float64) [][]string {
	cells := make([][]string, len(values))
	for i, v := range values {
		cells[i] = Wrap(v, widths[i]-2*rowPadding, fontSize)
	}
	return cells
}

// approxCharWidth is the mean Helvetica glyph width in mm for a font size in
// points. Wrapping is estimated so that layout stays independent of the
// renderer.
func approxCharWidth(fontSize float64) float64 {
	return fontSize * 0.19
}

// Wrap splits text into lines of at most width millimetres at fontSize,
// breaking on spaces and hard-breaking words longer than a line. Explicit
// newlines are kept. It always returns at least one line.
func Wrap(text string, width, fontSize float64) []string {
	maxChars := int(width / approxCharWidth(fontSize))
	if maxChars < 1 {
		maxChars = 1
	}

	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		var cur []rune
		for _, w := range words {
			word := []rune(w)
			for len(word) > maxChars {
				if len(cur) > 0 {
					lines = append(lines, string(cur))
					cur = nil
				}
				lines = append(lines, string(word[:maxChars]))
				word = word[maxChars:]
			}
			switch {
			case len(cur) == 0:
				cur = append(cur, word...)
			case len(cur)+1+len(word) <= maxChars:
				cur = append(cur, ' ')
				cur = append(cur, word...)
			default:
				lines = append(lines, string(cur))
				cur = append([]rune{}, word...)
			}
		}
		if len(cur) > 0 {
			lines = append(lines, string(cur))
		}
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
