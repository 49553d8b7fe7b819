package entities

import (
	"strconv"
	"strings"
)

// BasketType tags a procedure as diagnostic or ongoing management
type BasketType string

const (
	BasketDiagnostic BasketType = "Diagnostic"
	BasketManagement BasketType = "Ongoing Management"
)

// DatasetBasketType matches a dataset BASKET TYPE value exactly. Rows with
// any other label belong to no basket.
func DatasetBasketType(raw string) (BasketType, bool) {
	switch BasketType(raw) {
	case BasketDiagnostic, BasketManagement:
		return BasketType(raw), true
	}
	return "", false
}

// ParseBasketType reads a basket from a request: the dataset labels and the
// short forms ("diagnostic", "management"), case-insensitively. Anything else
// is reported as not ok.
func ParseBasketType(raw string) (BasketType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "diagnostic":
		return BasketDiagnostic, true
	case "ongoing management", "management":
		return BasketManagement, true
	}
	return "", false
}

// Procedure is a covered procedure or test of a condition's basket
type Procedure struct {
	Code        string     `json:"code"`
	Description string     `json:"description"`
	Covered     string     `json:"covered"`
	Basket      BasketType `json:"basket"`
}

// BasketItem returns the selectable form of the procedure, quantity 1
func (p Procedure) BasketItem() BasketItem {
	return BasketItem{
		Code:        p.Code,
		Description: p.Description,
		Covered:     p.Covered,
		Quantity:    1,
	}
}

// BasketItem is a selected procedure with the requested quantity
type BasketItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Covered     string `json:"covered"`
	Quantity    int    `json:"quantity"`
}

// Key is the selection identity of a basket item
func (b BasketItem) Key() string { return b.Code }

// CoveredLimit returns the number of covered procedures when the covered
// field is a positive integer. Free text such as "unlimited" has no limit.
func CoveredLimit(covered string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(covered))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// WithQuantity returns the item with quantity clamped to [1, covered]
func (b BasketItem) WithQuantity(n int) BasketItem {
	if n < 1 {
		n = 1
	}
	if limit, ok := CoveredLimit(b.Covered); ok && n > limit {
		n = limit
	}
	b.Quantity = n
	return b
}
