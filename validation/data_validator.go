// Package validation validates user input and reports on the quality of the
// reference datasets.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/salulink/authi-claims/catalog"
	"github.com/salulink/authi-claims/interfaces"
	"github.com/salulink/authi-claims/refdata"
	"github.com/salulink/authi-claims/refdata/entities"
)

const (
	// MaxNoteLength bounds the clinical note, in characters
	MaxNoteLength = 20000
	// MaxCodeLength bounds ICD and procedure codes
	MaxCodeLength = 20
	// MaxAttachmentSize bounds one documentation file, before base64 encoding
	MaxAttachmentSize = 5 << 20
	// MaxAttachmentName bounds the attachment file name
	MaxAttachmentName = 255
)

var (
	// ICD-10 codes (E11.9, I10) and tariff codes (3710, 0190-01)
	codeRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-/]*$`)

	// Notes are free clinical text, so only markup that would be dangerous once
	// rendered back is rejected
	dangerousNotePatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"<iframe", "<object", "<embed",
	}
)

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateNote checks a clinical note before it is stored or analysed.
// Blank notes are accepted here; the workflow rejects them on analysis.
func (v *DataValidatorImpl) ValidateNote(note string) error {
	if !utf8.ValidString(note) {
		return fmt.Errorf("note is not valid UTF-8")
	}

	if n := utf8.RuneCountInString(note); n > MaxNoteLength {
		return fmt.Errorf("note too long: %d characters, maximum %d", n, MaxNoteLength)
	}

	for _, r := range note {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return fmt.Errorf("note contains control characters")
		}
	}

	lower := strings.ToLower(note)
	for _, pattern := range dangerousNotePatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("note contains potentially dangerous content")
		}
	}

	return nil
}

// ValidateCode checks an ICD or procedure code taken from a request
func (v *DataValidatorImpl) ValidateCode(code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return fmt.Errorf("code cannot be empty")
	}

	if len(code) != len(trimmed) {
		return fmt.Errorf("code contains leading or trailing whitespace")
	}

	if len(trimmed) > MaxCodeLength {
		return fmt.Errorf("code too long: maximum %d characters", MaxCodeLength)
	}

	if !codeRegex.MatchString(trimmed) {
		return fmt.Errorf("code contains invalid characters. Only letters, digits, periods, hyphens and slashes are allowed")
	}

	return nil
}

// ValidatePlan checks a plan filter name. Empty means all plans.
func (v *DataValidatorImpl) ValidatePlan(plan string) error {
	if _, err := catalog.ParsePlan(plan); err != nil {
		return err
	}
	return nil
}

// ValidateAttachment checks a documentation file before it is read
func (v *DataValidatorImpl) ValidateAttachment(name string, size int64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("attachment name cannot be empty")
	}

	if len(name) > MaxAttachmentName {
		return fmt.Errorf("attachment name too long: maximum %d characters", MaxAttachmentName)
	}

	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) || strings.HasPrefix(name, "..") {
		return fmt.Errorf("attachment name must be a plain file name")
	}

	if size <= 0 {
		return fmt.Errorf("attachment is empty")
	}

	if size > MaxAttachmentSize {
		return fmt.Errorf("attachment too large: %d bytes, maximum %d", size, MaxAttachmentSize)
	}

	return nil
}

// ReportDataQuality inspects a loaded dataset. It never fails: every issue
// is counted or listed so the scheduler can log it.
func (v *DataValidatorImpl) ReportDataQuality(ds *refdata.Dataset) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		DuplicateICDCodes:     map[string][]string{},
		DuplicateProcedures:   map[string][]string{},
		UnknownBasketTypes:    []string{},
		ConditionsWithoutICD:  []string{},
		ConditionsWithoutMeds: []string{},
		FailedDatasets:        []string{},
	}
	if ds == nil {
		return report
	}

	// Check 1: duplicate ICD codes within one condition
	withICD := make(map[string]bool)
	seenICD := make(map[string]map[string]bool)
	for _, row := range ds.Conditions {
		withICD[row.Condition] = true
		codes := seenICD[row.Condition]
		if codes == nil {
			codes = make(map[string]bool)
			seenICD[row.Condition] = codes
		}
		if codes[row.ICDCode] {
			report.DuplicateICDCodes[row.Condition] = appendOnce(report.DuplicateICDCodes[row.Condition], row.ICDCode)
		}
		codes[row.ICDCode] = true
	}

	// Check 2: unknown basket types, non-numeric coverage and duplicate
	// procedures within one basket
	seenProc := make(map[string]bool)
	for _, row := range ds.Treatments {
		basket, ok := entities.DatasetBasketType(row.BasketType)
		if !ok {
			report.UnknownBasketTypes = appendOnce(report.UnknownBasketTypes, row.BasketType)
			continue
		}
		if _, ok := entities.CoveredLimit(row.Covered); !ok {
			report.NonNumericCoverage++
		}
		key := row.Condition + "\x00" + string(basket) + "\x00" + row.Code
		if seenProc[key] {
			report.DuplicateProcedures[row.Condition] = appendOnce(report.DuplicateProcedures[row.Condition], row.Code)
		}
		seenProc[key] = true
	}

	// Check 3: excluded medicines
	withMeds := make(map[string]bool)
	for _, row := range ds.Medicines {
		withMeds[row.Condition] = true
		if entities.NewMedicine(row).Excluded {
			report.ExcludedMedicines++
		}
	}

	// Check 4: conditions present in one dataset but missing in another
	referenced := make(map[string]bool)
	for _, row := range ds.Treatments {
		referenced[row.Condition] = true
	}
	for condition := range withMeds {
		referenced[condition] = true
	}
	for condition := range referenced {
		if !withICD[condition] {
			report.ConditionsWithoutICD = append(report.ConditionsWithoutICD, condition)
		}
	}
	for condition := range withICD {
		if !withMeds[condition] {
			report.ConditionsWithoutMeds = append(report.ConditionsWithoutMeds, condition)
		}
	}

	// Check 5: datasets that failed to load
	for name := range ds.Errors {
		report.FailedDatasets = append(report.FailedDatasets, name)
	}

	slices.Sort(report.UnknownBasketTypes)
	slices.Sort(report.ConditionsWithoutICD)
	slices.Sort(report.ConditionsWithoutMeds)
	slices.Sort(report.FailedDatasets)

	return report
}

func appendOnce(list []string, value string) []string {
	if slices.Contains(list, value) {
		return list
	}
	return append(list, value)
}
