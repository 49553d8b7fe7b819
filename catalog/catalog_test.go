package catalog

import (
	"sync"
	"testing"
	"time"

	"github.com/salulink/authi-claims/refdata"
	"github.com/salulink/authi-claims/refdata/entities"
)

func testDataset() *refdata.Dataset {
	return &refdata.Dataset{
		Conditions: []entities.ConditionRow{
			{Condition: "Diabetes Mellitus Type 2", ICDCode: "E11.9", ICDDescription: "Without complications"},
			{Condition: "Diabetes Mellitus Type 2", ICDCode: "E11.6", ICDDescription: "With other complications"},
			{Condition: "Hypertension", ICDCode: "I10", ICDDescription: "Essential hypertension"},
		},
		Treatments: []entities.TreatmentRow{
			{Condition: "Diabetes Mellitus Type 2", BasketType: "Diagnostic", Description: "HbA1c", Code: "4032", Covered: "4"},
			{Condition: "Diabetes Mellitus Type 2", BasketType: "Ongoing Management", Description: "Consultation", Code: "0190", Covered: "3"},
			{Condition: "Diabetes Mellitus Type 2", BasketType: "Surgical", Description: "Other", Code: "9999", Covered: "1"},
		},
		Medicines: []entities.MedicineRow{
			{Condition: "Diabetes Mellitus Type 2", MedicineClass: "Biguanides", ActiveIngredient: "Metformin", MedicineName: "Glucophage 500mg"},
			{Condition: "Diabetes Mellitus Type 2", MedicineClass: "", ActiveIngredient: "Acarbose", MedicineName: "Glucobay 50mg"},
			{Condition: "Diabetes Mellitus Type 2", MedicineClass: "Biguanides", ActiveIngredient: "Metformin", MedicineName: "Not available on Core"},
			{Condition: "Diabetes Mellitus Type 2", MedicineClass: "Sulphonylureas", ActiveIngredient: "Gliclazide", MedicineName: "Diamicron 80mg"},
		},
		Stats:    map[string]refdata.Stats{},
		Errors:   map[string]error{},
		LoadedAt: time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC),
	}
}

func TestUnknownConditionIsEmpty(t *testing.T) {
	c := New()
	c.Replace(testDataset())

	if got := c.LookupICDCodes("Asthma"); got == nil || len(got) != 0 {
		t.Errorf("Expected an empty non-nil ICD list, got %#v", got)
	}
	diag, mgmt := c.LookupTreatments("Asthma")
	if len(diag) != 0 || len(mgmt) != 0 {
		t.Errorf("Expected empty baskets, got %v %v", diag, mgmt)
	}
	if got := c.LookupMedications("Asthma"); len(got) != 0 {
		t.Errorf("Expected no medication groups, got %v", got)
	}
	if _, ok := c.Entry("Asthma"); ok {
		t.Error("Asthma must not be reported as known")
	}
}

func TestEmptyCatalogBeforeLoad(t *testing.T) {
	c := New()
	if len(c.LookupICDCodes("Hypertension")) != 0 || len(c.Conditions()) != 0 {
		t.Error("New catalog must be empty")
	}
	if !c.GetLastUpdated().IsZero() {
		t.Error("New catalog has never been loaded")
	}
}

func TestLookups(t *testing.T) {
	c := New()
	c.Replace(testDataset())

	icd := c.LookupICDCodes("Diabetes Mellitus Type 2")
	if len(icd) != 2 || icd[0].Code != "E11.9" || icd[1].Code != "E11.6" {
		t.Errorf("Unexpected ICD entries %+v", icd)
	}

	diag, mgmt := c.LookupTreatments("Diabetes Mellitus Type 2")
	if len(diag) != 1 || diag[0].Code != "4032" || diag[0].Basket != entities.BasketDiagnostic {
		t.Errorf("Unexpected diagnostic basket %+v", diag)
	}
	if len(mgmt) != 1 || mgmt[0].Code != "0190" {
		t.Errorf("Unexpected management basket %+v", mgmt)
	}

	groups := c.LookupMedications("Diabetes Mellitus Type 2")
	want := []string{"Biguanides", entities.DefaultMedicineClass, "Sulphonylureas"}
	if len(groups) != len(want) {
		t.Fatalf("Expected %d groups, got %+v", len(want), groups)
	}
	for i, class := range want {
		if groups[i].MedicineClass != class {
			t.Errorf("Group %d: expected %q, got %q", i, class, groups[i].MedicineClass)
		}
	}
	if len(groups[0].Medicines) != 2 || !groups[0].Medicines[1].Excluded {
		t.Errorf("Expected the excluded row to stay in its group, got %+v", groups[0].Medicines)
	}

	if got := c.Conditions(); len(got) != 2 || got[0] != "Diabetes Mellitus Type 2" || got[1] != "Hypertension" {
		t.Errorf("Unexpected condition list %v", got)
	}
	if c.RowCounts()[refdata.DatasetTreatments] != 3 {
		t.Errorf("Expected raw row counts, got %v", c.RowCounts())
	}
}

func TestBasketTypeMatchedExactly(t *testing.T) {
	c := New()
	c.Replace(&refdata.Dataset{
		Treatments: []entities.TreatmentRow{
			{Condition: "Asthma", BasketType: "Diagnostic", Description: "Spirometry", Code: "1186", Covered: "1"},
			{Condition: "Asthma", BasketType: "management", Description: "Consultation", Code: "0190", Covered: "2"},
			{Condition: "Asthma", BasketType: "DIAGNOSTIC", Description: "Peak flow", Code: "1188", Covered: "1"},
		},
	})

	diag, mgmt := c.LookupTreatments("Asthma")
	if len(diag) != 1 || diag[0].Code != "1186" {
		t.Errorf("Expected only the exact Diagnostic row, got %+v", diag)
	}
	if len(mgmt) != 0 {
		t.Errorf("Expected no management rows, got %+v", mgmt)
	}
}

func TestLookupsReturnCopies(t *testing.T) {
	c := New()
	c.Replace(testDataset())

	icd := c.LookupICDCodes("Diabetes Mellitus Type 2")
	icd[0].Code = "X00"
	diag, _ := c.LookupTreatments("Diabetes Mellitus Type 2")
	diag[0].Covered = "99"
	groups := c.LookupMedications("Diabetes Mellitus Type 2")
	groups[0].Medicines[0].Excluded = true
	c.Conditions()[0] = "Changed"

	if got := c.LookupICDCodes("Diabetes Mellitus Type 2")[0].Code; got != "E11.9" {
		t.Errorf("ICD entry changed through a lookup result: %s", got)
	}
	if p, _ := c.FindProcedure("Diabetes Mellitus Type 2", entities.BasketDiagnostic, "4032"); p.Covered != "4" {
		t.Errorf("Procedure changed through a lookup result: %+v", p)
	}
	if med := c.LookupMedications("Diabetes Mellitus Type 2")[0].Medicines[0]; med.Excluded {
		t.Error("Medicine changed through a lookup result")
	}
	if c.Conditions()[0] != "Diabetes Mellitus Type 2" {
		t.Error("Condition list changed through a lookup result")
	}
}

func TestFind(t *testing.T) {
	c := New()
	c.Replace(testDataset())

	if _, ok := c.FindICDCode("Hypertension", "E11.9"); ok {
		t.Error("E11.9 does not belong to Hypertension")
	}
	if p, ok := c.FindProcedure("Diabetes Mellitus Type 2", entities.BasketDiagnostic, "4032"); !ok || p.Covered != "4" {
		t.Errorf("Expected 4032 in the diagnostic basket, got %+v", p)
	}
	if _, ok := c.FindProcedure("Diabetes Mellitus Type 2", entities.BasketManagement, "4032"); ok {
		t.Error("4032 is not a management procedure")
	}
	key := entities.MedicineKey{MedicineName: "Diamicron 80mg", ActiveIngredient: "Gliclazide"}
	if _, ok := c.FindMedicine("Diabetes Mellitus Type 2", key); !ok {
		t.Error("Expected to find Diamicron")
	}
}

func TestFilterByPlan(t *testing.T) {
	excluded := entities.Medicine{MedicineName: "Not available", Excluded: true}
	regular := entities.Medicine{MedicineName: "Glucophage 500mg"}

	for _, plan := range Plans {
		if !FilterByPlan(regular, plan) {
			t.Errorf("Regular medicine must pass plan %q", plan)
		}
		if got := FilterByPlan(excluded, plan); got != (plan == PlanAll) {
			t.Errorf("FilterByPlan(excluded, %q) = %v", plan, got)
		}
	}
}

func TestFilterGroups(t *testing.T) {
	groups := []entities.MedicineGroup{
		{MedicineClass: "A", Medicines: []entities.Medicine{{MedicineName: "Not available", Excluded: true}}},
		{MedicineClass: "B", Medicines: []entities.Medicine{{MedicineName: "x"}, {MedicineName: "Not available", Excluded: true}}},
	}

	got := FilterGroups(groups, PlanCore)
	if len(got) != 1 || got[0].MedicineClass != "B" || len(got[0].Medicines) != 1 {
		t.Errorf("Unexpected filtered groups %+v", got)
	}
	if len(FilterGroups(groups, PlanAll)) != 2 {
		t.Error("Plan all must keep every group")
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		raw     string
		want    Plan
		wantErr bool
	}{
		{"", PlanAll, false},
		{"Core", PlanCore, false},
		{" executive ", PlanExecutive, false},
		{"gold", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlan(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePlan(%q) = (%q, %v)", tt.raw, got, err)
		}
	}
}

func TestConcurrentReplace(t *testing.T) {
	c := New()
	ds := testDataset()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Replace(ds)
		}()
		go func() {
			defer wg.Done()
			icd := c.LookupICDCodes("Hypertension")
			if len(icd) != 0 && len(icd) != 1 {
				t.Errorf("Observed a partial index: %v", icd)
			}
		}()
	}
	wg.Wait()
}

func TestBeginUpdate(t *testing.T) {
	c := New()
	if !c.BeginUpdate() {
		t.Fatal("First BeginUpdate must succeed")
	}
	if c.BeginUpdate() {
		t.Error("Second BeginUpdate must fail while updating")
	}
	c.EndUpdate()
	if c.IsUpdating() {
		t.Error("Expected update to be finished")
	}
}
