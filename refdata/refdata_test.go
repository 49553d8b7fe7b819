package refdata

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const conditionsCSV = `CHRONIC CONDITIONS,ICD-C0DE,ICD-CODE DESCRIPTION
Hypertension,I10,Essential (primary) hypertension
Diabetes Mellitus Type 2,E11.9,Type 2 diabetes mellitus without complications
,E10.9,orphan code
`

const treatmentsCSV = `CHRONIC DISEASE LIST CONDITION,BASKET TYPE,PROCEDURE/TEST DESCRIPTION,PROCEDURE/TEST CODE,NUMBER OF PROCEDURES OR TESTS COVERED
Diabetes Mellitus Type 2,Diagnostic,HbA1c,4032,4

Diabetes Mellitus Type 2,Ongoing Management,Consultation,0190,unlimited
Diabetes Mellitus Type 2,Diagnostic,Short row
`

func TestParseConditions(t *testing.T) {
	rows, stats, err := ParseConditions(strings.NewReader(conditionsCSV))
	if err != nil {
		t.Fatalf("ParseConditions failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[1].Condition != "Diabetes Mellitus Type 2" || rows[1].ICDCode != "E11.9" {
		t.Errorf("Unexpected row %+v", rows[1])
	}
	if stats.MissingFields != 1 {
		t.Errorf("Expected 1 row skipped for a missing field, got %d", stats.MissingFields)
	}
	if stats.TotalLines != 3 || stats.RecordsParsed != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestParseConditionsHeaderAlias(t *testing.T) {
	input := "chronic conditions , ICD-CODE\nAsthma,J45\n"
	rows, _, err := ParseConditions(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseConditions failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ICDCode != "J45" || rows[0].ICDDescription != "" {
		t.Errorf("Unexpected rows %+v", rows)
	}
}

func TestParseTreatments(t *testing.T) {
	rows, stats, err := ParseTreatments(strings.NewReader(treatmentsCSV))
	if err != nil {
		t.Fatalf("ParseTreatments failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Code != "4032" || rows[0].Covered != "4" || rows[0].BasketType != "Diagnostic" {
		t.Errorf("Unexpected row %+v", rows[0])
	}
	if rows[1].Covered != "unlimited" {
		t.Errorf("Expected free text coverage to be kept, got %q", rows[1].Covered)
	}
	if stats.MissingColumns != 1 {
		t.Errorf("Expected the short row to be counted as missing columns, got %+v", stats)
	}
}

func TestParseMedicinesSlashAliases(t *testing.T) {
	input := "CHRONIC DISEASE LIST CONDITION,MEDICINE CLASS,ACTIVE INGREDIENT,MEDICINE NAME AND STRENGTH,CDA FOR CORE/PRIORITY/SAVER,CDA FOR EXECUTIVE/COMPREHENSIVE\n" +
		"Hypertension,ACE inhibitors,Enalapril,\"Renitec 10mg\",R 120.00,R 200.00\n"
	rows, _, err := ParseMedicines(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseMedicines failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].CDACore != "R 120.00" || rows[0].CDAExecutive != "R 200.00" {
		t.Errorf("Expected CDA columns through aliases, got %+v", rows[0])
	}
}

func TestParseMissingRequiredColumn(t *testing.T) {
	_, _, err := ParseConditions(strings.NewReader("CHRONIC CONDITIONS,DESCRIPTION\nAsthma,x\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("Expected ErrMissingColumn, got %v", err)
	}
}

func TestParseEmptyFile(t *testing.T) {
	if _, _, err := ParseTreatments(strings.NewReader("")); err == nil {
		t.Error("Expected an error for an empty file")
	}
}

func TestDecodeBytes(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"utf8", []byte("Sjögren"), "Sjögren"},
		{"bom stripped", append([]byte{0xEF, 0xBB, 0xBF}, []byte("Asthma")...), "Asthma"},
		{"windows-1252", []byte{'S', 'j', 0xF6, 'g', 'r', 'e', 'n'}, "Sjögren"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := io.ReadAll(decodeBytes(tt.raw))
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, out)
			}
		})
	}
}

func TestLoaderDegradesPerDataset(t *testing.T) {
	dir := t.TempDir()
	conditions := filepath.Join(dir, "conditions.csv")
	treatments := filepath.Join(dir, "treatments.csv")
	if err := os.WriteFile(conditions, []byte(conditionsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(treatments, []byte(treatmentsCSV), 0o644); err != nil {
		t.Fatal(err)
	}

	ds := NewLoader(Paths{
		Conditions: conditions,
		Treatments: treatments,
		Medicines:  filepath.Join(dir, "missing.csv"),
	}).Load()

	if len(ds.Conditions) != 2 || len(ds.Treatments) != 2 {
		t.Errorf("Expected loaded datasets, got %d conditions and %d treatments", len(ds.Conditions), len(ds.Treatments))
	}
	if len(ds.Medicines) != 0 {
		t.Errorf("Expected an empty medicines dataset, got %d rows", len(ds.Medicines))
	}
	if _, ok := ds.Errors[DatasetMedicines]; !ok {
		t.Error("Expected the medicines error to be recorded")
	}
	if ds.Failed() {
		t.Error("Dataset must not report total failure when two files loaded")
	}
	if ds.LoadedAt.IsZero() {
		t.Error("Expected LoadedAt to be set")
	}
}
