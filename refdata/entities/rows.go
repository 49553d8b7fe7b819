package entities

// ConditionRow is one line of the conditions dataset
// (CHRONIC CONDITIONS, ICD-C0DE, ICD-CODE DESCRIPTION)
type ConditionRow struct {
	Condition      string `json:"condition"`
	ICDCode        string `json:"icdCode"`
	ICDDescription string `json:"icdDescription"`
}

// TreatmentRow is one line of the treatments dataset
type TreatmentRow struct {
	Condition   string `json:"condition"`
	BasketType  string `json:"basketType"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Covered     string `json:"covered"`
}

// MedicineRow is one line of the medicines dataset
type MedicineRow struct {
	Condition        string `json:"condition"`
	MedicineClass    string `json:"medicineClass"`
	ActiveIngredient string `json:"activeIngredient"`
	MedicineName     string `json:"medicineName"`
	CDACore          string `json:"cdaCore"`
	CDAExecutive     string `json:"cdaExecutive"`
}
