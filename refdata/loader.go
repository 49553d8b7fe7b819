package refdata

import (
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/refdata/entities"
)

// Paths locates the three dataset files
type Paths struct {
	Conditions string
	Treatments string
	Medicines  string
}

// Dataset is the result of one load. A dataset that failed to load is empty
// and its error is kept in Errors; the others are still usable.
type Dataset struct {
	Conditions []entities.ConditionRow
	Treatments []entities.TreatmentRow
	Medicines  []entities.MedicineRow
	Stats      map[string]Stats
	Errors     map[string]error
	LoadedAt   time.Time
}

// Failed reports whether every dataset failed to load
func (d *Dataset) Failed() bool {
	return len(d.Errors) == 3
}

// Loader reads the datasets from disk
type Loader struct {
	paths Paths
}

// NewLoader creates a loader over the given files
func NewLoader(paths Paths) *Loader {
	return &Loader{paths: paths}
}

// Load reads the three files concurrently. It never returns an error: per
// dataset failures are logged and reported in Dataset.Errors.
func (l *Loader) Load() *Dataset {
	ds := &Dataset{
		Stats:  make(map[string]Stats, 3),
		Errors: make(map[string]error),
	}

	var mu sync.Mutex
	record := func(name string, stats Stats, err error) {
		mu.Lock()
		defer mu.Unlock()
		ds.Stats[name] = stats
		if err != nil {
			ds.Errors[name] = err
			logging.Error("Failed to load reference dataset, using an empty one", "dataset", name, "error", err)
		}
	}

	// A failed dataset is recorded, not returned, so one bad file never
	// cancels the others
	var g errgroup.Group
	g.Go(func() error {
		rows, stats, err := loadFile(l.paths.Conditions, ParseConditions)
		ds.Conditions = rows
		record(DatasetConditions, stats, err)
		return nil
	})
	g.Go(func() error {
		rows, stats, err := loadFile(l.paths.Treatments, ParseTreatments)
		ds.Treatments = rows
		record(DatasetTreatments, stats, err)
		return nil
	})
	g.Go(func() error {
		rows, stats, err := loadFile(l.paths.Medicines, ParseMedicines)
		ds.Medicines = rows
		record(DatasetMedicines, stats, err)
		return nil
	})
	_ = g.Wait()

	ds.LoadedAt = time.Now()
	logging.Info("Reference data loaded",
		"conditions", len(ds.Conditions),
		"treatments", len(ds.Treatments),
		"medicines", len(ds.Medicines),
		"failed_datasets", len(ds.Errors))
	return ds
}

func loadFile[T any](path string, parse func(r io.Reader) ([]T, Stats, error)) ([]T, Stats, error) {
	r, err := openDecoded(path)
	if err != nil {
		return nil, Stats{}, err
	}
	rows, stats, err := parse(r)
	if err != nil {
		return nil, stats, err
	}
	return rows, stats, nil
}
