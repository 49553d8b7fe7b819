package entities

// ICDEntry is an ICD-10 code attached to a chronic condition
type ICDEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Key is the selection identity of an ICD entry
func (e ICDEntry) Key() string { return e.Code }
