package selection

import (
	"encoding/json"
	"testing"

	"github.com/salulink/authi-claims/refdata/entities"
)

func TestToggleRoundTrip(t *testing.T) {
	var s Set[string, entities.ICDEntry]
	entry := entities.ICDEntry{Code: "E11.9", Description: "Type 2 diabetes"}

	if !s.Toggle(entry) {
		t.Fatal("First toggle must select the item")
	}
	if !s.Contains("E11.9") || s.Len() != 1 {
		t.Fatalf("Expected E11.9 to be selected, got %+v", s.Items())
	}
	if s.Toggle(entry) {
		t.Fatal("Second toggle must deselect the item")
	}
	if s.Contains("E11.9") || s.Len() != 0 {
		t.Errorf("Expected empty set after toggling twice, got %+v", s.Items())
	}
}

func TestInsertionOrderKeptAfterRemoval(t *testing.T) {
	s := New[string](
		entities.ICDEntry{Code: "A"},
		entities.ICDEntry{Code: "B"},
		entities.ICDEntry{Code: "C"},
		entities.ICDEntry{Code: "A"},
	)
	if s.Len() != 3 {
		t.Fatalf("Expected duplicates to be dropped, got %d items", s.Len())
	}

	s.Toggle(entities.ICDEntry{Code: "B"})
	s.Toggle(entities.ICDEntry{Code: "D"})

	want := []string{"A", "C", "D"}
	items := s.Items()
	for i, code := range want {
		if items[i].Code != code {
			t.Fatalf("Expected order %v, got %+v", want, items)
		}
	}
	if !s.Contains("C") || !s.Contains("D") {
		t.Error("Index must follow the removal")
	}
}

func TestUnselectableItemIsNeverInserted(t *testing.T) {
	var s Set[entities.MedicineKey, entities.Medicine]
	excluded := entities.Medicine{MedicineName: "Not available", ActiveIngredient: "X", Excluded: true}

	if s.Toggle(excluded) {
		t.Error("Excluded medicine must not be selected")
	}
	if s.Len() != 0 {
		t.Errorf("Expected an empty set, got %+v", s.Items())
	}
}

func TestSetQuantity(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"valid", "3", 3},
		{"clamped to covered", "5", 4},
		{"zero floors to one", "0", 1},
		{"negative floors to one", "-3", 1},
		{"text floors to one", "abc", 1},
		{"empty floors to one", "", 1},
		{"leading digits", "3abc", 3},
		{"decimal truncated", "2.7", 2},
		{"padded", " 2 ", 2},
		{"leading digits clamped", "5 tests", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Set[string, entities.BasketItem]
			s.Toggle(entities.BasketItem{Code: "4032", Covered: "4", Quantity: 1})

			if !s.SetQuantity("4032", tt.raw) {
				t.Fatal("SetQuantity must succeed for a selected item")
			}
			item, _ := s.Get("4032")
			if item.Quantity != tt.want {
				t.Errorf("SetQuantity(%q) = %d, want %d", tt.raw, item.Quantity, tt.want)
			}
		})
	}
}

func TestSetQuantityMissingKey(t *testing.T) {
	var s Set[string, entities.BasketItem]
	if s.SetQuantity("nope", "2") {
		t.Error("SetQuantity must fail for an unselected key")
	}

	var icd Set[string, entities.ICDEntry]
	icd.Toggle(entities.ICDEntry{Code: "I10"})
	if icd.SetQuantity("I10", "2") {
		t.Error("SetQuantity must fail for items without a quantity")
	}

	var absent *Set[string, entities.BasketItem]
	if absent.SetQuantity("0190", "2") {
		t.Error("SetQuantity must fail on a nil set")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New[string](entities.BasketItem{Code: "0190", Quantity: 1})
	c := s.Clone()

	c.SetQuantity("0190", "3")
	c.Toggle(entities.BasketItem{Code: "0191", Quantity: 1})

	orig, _ := s.Get("0190")
	if orig.Quantity != 1 || s.Len() != 1 {
		t.Errorf("Clone must not share state with the original, got %+v", s.Items())
	}

	var nilSet *Set[string, entities.BasketItem]
	if nilSet.Clone() != nil {
		t.Error("Clone of a nil set must stay nil")
	}
}

func TestJSON(t *testing.T) {
	s := New[string](entities.ICDEntry{Code: "I10", Description: "Essential hypertension"})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `[{"code":"I10","description":"Essential hypertension"}]` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var empty Set[string, entities.ICDEntry]
	data, _ = json.Marshal(empty)
	if string(data) != "[]" {
		t.Errorf("Expected empty array, got %s", data)
	}

	var back Set[string, entities.ICDEntry]
	if err := json.Unmarshal([]byte(`[{"code":"I10"},{"code":"I10"},{"code":"I11"}]`), &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Len() != 2 || !back.Contains("I11") {
		t.Errorf("Unexpected set after unmarshal %+v", back.Items())
	}
}
