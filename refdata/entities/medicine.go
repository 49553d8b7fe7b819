package entities

import "strings"

const (
	// ExcludedMarker in the medicine name field marks a row as not available
	ExcludedMarker = "Not available"
	// DefaultMedicineClass groups medicines without a class
	DefaultMedicineClass = "Other"
)

// MedicineKey identifies a medicine within a selection
type MedicineKey struct {
	MedicineName     string `json:"medicineName"`
	ActiveIngredient string `json:"activeIngredient"`
}

// Medicine is a medicine covered for a condition
type Medicine struct {
	MedicineName     string `json:"medicineName"`
	ActiveIngredient string `json:"activeIngredient"`
	MedicineClass    string `json:"medicineClass"`
	CDACore          string `json:"cdaCore"`
	CDAExecutive     string `json:"cdaExecutive"`
	Condition        string `json:"condition"`
	Excluded         bool   `json:"excluded"`
}

// NewMedicine maps a dataset row, computing the excluded flag
func NewMedicine(row MedicineRow) Medicine {
	return Medicine{
		MedicineName:     row.MedicineName,
		ActiveIngredient: row.ActiveIngredient,
		MedicineClass:    row.MedicineClass,
		CDACore:          row.CDACore,
		CDAExecutive:     row.CDAExecutive,
		Condition:        row.Condition,
		Excluded:         strings.Contains(row.MedicineName, ExcludedMarker),
	}
}

// Key is the selection identity of a medicine
func (m Medicine) Key() MedicineKey {
	return MedicineKey{MedicineName: m.MedicineName, ActiveIngredient: m.ActiveIngredient}
}

// Selectable reports whether the medicine may be added to a selection
func (m Medicine) Selectable() bool { return !m.Excluded }

// ClassLabel is the group label, DefaultMedicineClass when the class is blank
func (m Medicine) ClassLabel() string {
	if strings.TrimSpace(m.MedicineClass) == "" {
		return DefaultMedicineClass
	}
	return m.MedicineClass
}

// MedicineGroup is the medicines of one class, in dataset order
type MedicineGroup struct {
	MedicineClass string     `json:"medicineClass"`
	Medicines     []Medicine `json:"medicines"`
}
