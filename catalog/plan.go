package catalog

import (
	"fmt"
	"strings"

	"github.com/salulink/authi-claims/refdata/entities"
)

// Plan is a medical scheme plan tier used to filter medicines
type Plan string

const (
	PlanAll           Plan = "all"
	PlanCore          Plan = "core"
	PlanPriority      Plan = "priority"
	PlanSaver         Plan = "saver"
	PlanExecutive     Plan = "executive"
	PlanComprehensive Plan = "comprehensive"
)

// Plans lists the accepted plan values
var Plans = []Plan{PlanAll, PlanCore, PlanPriority, PlanSaver, PlanExecutive, PlanComprehensive}

// ParsePlan accepts a plan name, case-insensitively. Empty means all.
func ParsePlan(raw string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return PlanAll, nil
	}
	for _, known := range Plans {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown plan %q", raw)
}

// FilterByPlan reports whether med is shown for plan. Every tier other than
// all hides excluded medicines; the tiers do not differ further.
func FilterByPlan(med entities.Medicine, plan Plan) bool {
	if plan == PlanAll {
		return true
	}
	return !med.Excluded
}

// FilterGroups applies FilterByPlan to every group, dropping groups left empty
func FilterGroups(groups []entities.MedicineGroup, plan Plan) []entities.MedicineGroup {
	out := make([]entities.MedicineGroup, 0, len(groups))
	for _, g := range groups {
		kept := make([]entities.Medicine, 0, len(g.Medicines))
		for _, med := range g.Medicines {
			if FilterByPlan(med, plan) {
				kept = append(kept, med)
			}
		}
		if len(kept) > 0 {
			out = append(out, entities.MedicineGroup{MedicineClass: g.MedicineClass, Medicines: kept})
		}
	}
	return out
}
