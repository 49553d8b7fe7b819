// Package workflow drives one intake case through its stages. The Controller
// owns the case record, guards stage entry and validates stage exit.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Stage is a step of the intake workflow
type Stage int

const (
	StageNoteInput Stage = iota
	StageConditionConfirmation
	StageICDSelection
	StageTreatmentProtocol
	StageDocumentation
	StageMedicationSelection
	StageRegistration
	StageCompleted
	// StageViewSavedCases is a side state reachable from any stage
	StageViewSavedCases
)

var stageNames = [...]string{
	StageNoteInput:             "note_input",
	StageConditionConfirmation: "condition_confirmation",
	StageICDSelection:          "icd_selection",
	StageTreatmentProtocol:     "treatment_protocol",
	StageDocumentation:         "documentation",
	StageMedicationSelection:   "medication_selection",
	StageRegistration:          "registration",
	StageCompleted:             "completed",
	StageViewSavedCases:        "view_saved_cases",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Linear reports whether s is part of the ordered stage sequence
func (s Stage) Linear() bool {
	return s >= StageNoteInput && s <= StageCompleted
}

// ParseStage converts a stage name
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
