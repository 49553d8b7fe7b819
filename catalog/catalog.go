// Package catalog indexes the reference datasets by condition name and serves
// the per-condition lookups used by the intake workflow. The index is swapped
// atomically on reload so readers never see a partially built catalog.
package catalog

import (
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/refdata"
	"github.com/salulink/authi-claims/refdata/entities"
)

// Entry is everything the catalog knows about one condition
type Entry struct {
	Condition   string                   `json:"condition"`
	ICDCodes    []entities.ICDEntry      `json:"icdCodes"`
	Diagnostic  []entities.Procedure     `json:"diagnostic"`
	Management  []entities.Procedure     `json:"management"`
	Medications []entities.MedicineGroup `json:"medications"`
}

// snapshot is an immutable, fully built index
type snapshot struct {
	entries    map[string]*Entry
	conditions []string
	rows       map[string]int
	dropped    int
	errors     map[string]error
	loadedAt   time.Time
}

// Catalog holds the current snapshot
type Catalog struct {
	current         atomic.Pointer[snapshot]
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// New returns an empty catalog. Every lookup yields empty results until the
// first Replace.
func New() *Catalog {
	c := &Catalog{}
	c.current.Store(&snapshot{
		entries: make(map[string]*Entry),
		rows:    make(map[string]int),
		errors:  make(map[string]error),
	})
	c.serverStartTime.Store(time.Time{})
	return c
}

// Replace builds a new index from ds and swaps it in
func (c *Catalog) Replace(ds *refdata.Dataset) {
	snap := build(ds)
	c.current.Store(snap)
	logging.Info("Catalog index swapped",
		"conditions", len(snap.conditions),
		"dropped_treatments", snap.dropped)
}

func build(ds *refdata.Dataset) *snapshot {
	snap := &snapshot{
		entries: make(map[string]*Entry),
		rows: map[string]int{
			refdata.DatasetConditions: len(ds.Conditions),
			refdata.DatasetTreatments: len(ds.Treatments),
			refdata.DatasetMedicines:  len(ds.Medicines),
		},
		errors:   make(map[string]error, len(ds.Errors)),
		loadedAt: ds.LoadedAt,
	}
	for name, err := range ds.Errors {
		snap.errors[name] = err
	}

	entry := func(condition string) *Entry {
		e, ok := snap.entries[condition]
		if !ok {
			e = &Entry{
				Condition:   condition,
				ICDCodes:    []entities.ICDEntry{},
				Diagnostic:  []entities.Procedure{},
				Management:  []entities.Procedure{},
				Medications: []entities.MedicineGroup{},
			}
			snap.entries[condition] = e
		}
		return e
	}

	for _, row := range ds.Conditions {
		e := entry(row.Condition)
		e.ICDCodes = append(e.ICDCodes, entities.ICDEntry{Code: row.ICDCode, Description: row.ICDDescription})
	}

	for _, row := range ds.Treatments {
		basket, ok := entities.DatasetBasketType(row.BasketType)
		if !ok {
			snap.dropped++
			continue
		}
		e := entry(row.Condition)
		p := entities.Procedure{Code: row.Code, Description: row.Description, Covered: row.Covered, Basket: basket}
		if basket == entities.BasketDiagnostic {
			e.Diagnostic = append(e.Diagnostic, p)
		} else {
			e.Management = append(e.Management, p)
		}
	}

	groupIndex := make(map[string]map[string]int)
	for _, row := range ds.Medicines {
		e := entry(row.Condition)
		med := entities.NewMedicine(row)
		label := med.ClassLabel()

		groups, ok := groupIndex[row.Condition]
		if !ok {
			groups = make(map[string]int)
			groupIndex[row.Condition] = groups
		}
		i, ok := groups[label]
		if !ok {
			i = len(e.Medications)
			groups[label] = i
			e.Medications = append(e.Medications, entities.MedicineGroup{MedicineClass: label})
		}
		e.Medications[i].Medicines = append(e.Medications[i].Medicines, med)
	}

	snap.conditions = make([]string, 0, len(snap.entries))
	for name := range snap.entries {
		snap.conditions = append(snap.conditions, name)
	}
	sort.Strings(snap.conditions)
	return snap
}

// lookup returns the snapshot entry of condition. The result is shared by
// every reader and must not be modified.
func (c *Catalog) lookup(condition string) (*Entry, bool) {
	if e, ok := c.current.Load().entries[condition]; ok {
		return e, true
	}
	return &Entry{
		Condition:   condition,
		ICDCodes:    []entities.ICDEntry{},
		Diagnostic:  []entities.Procedure{},
		Management:  []entities.Procedure{},
		Medications: []entities.MedicineGroup{},
	}, false
}

func cloneGroups(groups []entities.MedicineGroup) []entities.MedicineGroup {
	out := make([]entities.MedicineGroup, len(groups))
	for i, g := range groups {
		out[i] = entities.MedicineGroup{MedicineClass: g.MedicineClass, Medicines: slices.Clone(g.Medicines)}
	}
	return out
}

// Entry returns a copy of the catalog entry of condition. The second value
// is false for unknown conditions, in which case the entry is empty but
// usable.
func (c *Catalog) Entry(condition string) (*Entry, bool) {
	e, ok := c.lookup(condition)
	return &Entry{
		Condition:   e.Condition,
		ICDCodes:    slices.Clone(e.ICDCodes),
		Diagnostic:  slices.Clone(e.Diagnostic),
		Management:  slices.Clone(e.Management),
		Medications: cloneGroups(e.Medications),
	}, ok
}

// LookupICDCodes returns the ICD entries of condition, empty when unknown
func (c *Catalog) LookupICDCodes(condition string) []entities.ICDEntry {
	e, _ := c.lookup(condition)
	return slices.Clone(e.ICDCodes)
}

// LookupTreatments returns the diagnostic and ongoing management procedures
// of condition. Rows of any other basket type were dropped at load.
func (c *Catalog) LookupTreatments(condition string) (diagnostic, management []entities.Procedure) {
	e, _ := c.lookup(condition)
	return slices.Clone(e.Diagnostic), slices.Clone(e.Management)
}

// LookupMedications returns the medicines of condition grouped by class, in
// the order classes first appear in the dataset
func (c *Catalog) LookupMedications(condition string) []entities.MedicineGroup {
	e, _ := c.lookup(condition)
	return cloneGroups(e.Medications)
}

// FindICDCode resolves an ICD code within condition
func (c *Catalog) FindICDCode(condition, code string) (entities.ICDEntry, bool) {
	e, _ := c.lookup(condition)
	for _, icd := range e.ICDCodes {
		if icd.Code == code {
			return icd, true
		}
	}
	return entities.ICDEntry{}, false
}

// FindProcedure resolves a procedure code within the basket of condition
func (c *Catalog) FindProcedure(condition string, basket entities.BasketType, code string) (entities.Procedure, bool) {
	e, _ := c.lookup(condition)
	list := e.Diagnostic
	if basket == entities.BasketManagement {
		list = e.Management
	}
	for _, p := range list {
		if p.Code == code {
			return p, true
		}
	}
	return entities.Procedure{}, false
}

// FindMedicine resolves a medicine of condition by its key
func (c *Catalog) FindMedicine(condition string, key entities.MedicineKey) (entities.Medicine, bool) {
	e, _ := c.lookup(condition)
	for _, group := range e.Medications {
		for _, med := range group.Medicines {
			if med.Key() == key {
				return med, true
			}
		}
	}
	return entities.Medicine{}, false
}

// Conditions lists every condition known to at least one dataset, sorted
func (c *Catalog) Conditions() []string {
	return slices.Clone(c.current.Load().conditions)
}

// RowCounts returns the number of rows loaded per dataset
func (c *Catalog) RowCounts() map[string]int {
	rows := c.current.Load().rows
	out := make(map[string]int, len(rows))
	for k, v := range rows {
		out[k] = v
	}
	return out
}

// LoadErrors returns the datasets that failed during the last load
func (c *Catalog) LoadErrors() map[string]string {
	errs := c.current.Load().errors
	out := make(map[string]string, len(errs))
	for k, v := range errs {
		out[k] = v.Error()
	}
	return out
}

// GetLastUpdated returns when the current snapshot was loaded
func (c *Catalog) GetLastUpdated() time.Time {
	return c.current.Load().loadedAt
}

// BeginUpdate marks the start of a reload. It returns false when another
// reload is in progress.
func (c *Catalog) BeginUpdate() bool {
	return c.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a reload
func (c *Catalog) EndUpdate() {
	c.updating.Store(false)
}

// IsUpdating reports whether a reload is in progress
func (c *Catalog) IsUpdating() bool {
	return c.updating.Load()
}

// SetServerStartTime records when the server started
func (c *Catalog) SetServerStartTime(startTime time.Time) {
	c.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (c *Catalog) GetServerStartTime() time.Time {
	if v := c.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}
