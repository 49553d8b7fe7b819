package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/refdata/entities"
)

// Dataset names, used in logs, stats and metrics
const (
	DatasetConditions = "conditions"
	DatasetTreatments = "treatments"
	DatasetMedicines  = "medicines"
)

// ErrMissingColumn is returned when a required header is absent
var ErrMissingColumn = errors.New("missing required column")

// Stats counts what happened to each data line of a file
type Stats struct {
	Dataset        string `json:"dataset"`
	TotalLines     int    `json:"totalLines"`
	RecordsParsed  int    `json:"recordsParsed"`
	MissingColumns int    `json:"missingColumns"`
	MissingFields  int    `json:"missingFields"`
}

// Skipped is the number of lines that did not produce a record
func (s Stats) Skipped() int { return s.MissingColumns + s.MissingFields }

type column struct {
	name     string
	aliases  []string
	required bool
}

var conditionColumns = []column{
	{name: "CHRONIC CONDITIONS", aliases: []string{"CHRONIC CONDITION"}, required: true},
	// The published file spells the header with a zero
	{name: "ICD-C0DE", aliases: []string{"ICD-CODE", "ICD CODE"}, required: true},
	{name: "ICD-CODE DESCRIPTION", aliases: []string{"ICD CODE DESCRIPTION"}},
}

var treatmentColumns = []column{
	{name: "CHRONIC DISEASE LIST CONDITION", required: true},
	{name: "BASKET TYPE", required: true},
	{name: "PROCEDURE/TEST DESCRIPTION"},
	{name: "PROCEDURE/TEST CODE", required: true},
	{name: "NUMBER OF PROCEDURES OR TESTS COVERED"},
}

var medicineColumns = []column{
	{name: "CHRONIC DISEASE LIST CONDITION", required: true},
	{name: "MEDICINE CLASS"},
	{name: "ACTIVE INGREDIENT"},
	{name: "MEDICINE NAME AND STRENGTH", required: true},
	{name: "CDA FOR CORE, PRIORITY AND SAVER PLANS", aliases: []string{"CDA FOR CORE/PRIORITY/SAVER"}},
	{name: "CDA FOR EXECUTIVE AND COMPREHENSIVE PLANS", aliases: []string{"CDA FOR EXECUTIVE/COMPREHENSIVE"}},
}

func normalizeHeader(h string) string {
	return strings.ToUpper(strings.Join(strings.Fields(h), " "))
}

// indexColumns maps each wanted column to its position in the header row
func indexColumns(header []string, cols []column) ([]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}

	idx := make([]int, len(cols))
	for i, col := range cols {
		idx[i] = -1
		for _, candidate := range append([]string{col.name}, col.aliases...) {
			if pos, ok := positions[normalizeHeader(candidate)]; ok {
				idx[i] = pos
				break
			}
		}
		if idx[i] < 0 && col.required {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col.name)
		}
	}
	return idx, nil
}

// parseTable reads a header-mapped CSV and calls build with the values of
// cols, in order, for every line carrying all required fields
func parseTable[T any](r io.Reader, dataset string, cols []column, build func(values []string) T) ([]T, Stats, error) {
	stats := Stats{Dataset: dataset}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%s: empty file", dataset)
		}
		return nil, stats, fmt.Errorf("%s: failed to read header: %w", dataset, err)
	}
	idx, err := indexColumns(header, cols)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", dataset, err)
	}

	var records []T
	values := make([]string, len(cols))
	for {
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%s: %w", dataset, err)
		}
		if isBlank(line) {
			continue
		}
		stats.TotalLines++

		complete, ok := true, true
		for i, pos := range idx {
			values[i] = ""
			if pos < 0 {
				continue
			}
			if pos >= len(line) {
				if cols[i].required {
					ok = false
				}
				continue
			}
			values[i] = strings.TrimSpace(line[pos])
			if cols[i].required && values[i] == "" {
				complete = false
			}
		}

		switch {
		case !ok:
			stats.MissingColumns++
			continue
		case !complete:
			stats.MissingFields++
			continue
		}

		records = append(records, build(values))
	}

	stats.RecordsParsed = len(records)
	if stats.Skipped() > 0 {
		logging.Info("Reference data skip statistics",
			"dataset", dataset,
			"missing_columns", stats.MissingColumns,
			"missing_fields", stats.MissingFields,
			"total_lines", stats.TotalLines,
			"records_parsed", stats.RecordsParsed)
	}
	return records, stats, nil
}

func isBlank(line []string) bool {
	for _, v := range line {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseConditions reads the conditions dataset
func ParseConditions(r io.Reader) ([]entities.ConditionRow, Stats, error) {
	return parseTable(r, DatasetConditions, conditionColumns, func(v []string) entities.ConditionRow {
		return entities.ConditionRow{
			Condition:      v[0],
			ICDCode:        v[1],
			ICDDescription: v[2],
		}
	})
}

// ParseTreatments reads the treatments dataset
func ParseTreatments(r io.Reader) ([]entities.TreatmentRow, Stats, error) {
	return parseTable(r, DatasetTreatments, treatmentColumns, func(v []string) entities.TreatmentRow {
		return entities.TreatmentRow{
			Condition:   v[0],
			BasketType:  v[1],
			Description: v[2],
			Code:        v[3],
			Covered:     v[4],
		}
	})
}

// ParseMedicines reads the medicines dataset
func ParseMedicines(r io.Reader) ([]entities.MedicineRow, Stats, error) {
	return parseTable(r, DatasetMedicines, medicineColumns, func(v []string) entities.MedicineRow {
		return entities.MedicineRow{
			Condition:        v[0],
			MedicineClass:    v[1],
			ActiveIngredient: v[2],
			MedicineName:     v[3],
			CDACore:          v[4],
			CDAExecutive:     v[5],
		}
	})
}
