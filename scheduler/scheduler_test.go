package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/salulink/authi-claims/catalog"
	"github.com/salulink/authi-claims/refdata"
	"github.com/salulink/authi-claims/refdata/entities"
	"github.com/salulink/authi-claims/validation"
)

// mockLoader returns the queued datasets in order, repeating the last one
type mockLoader struct {
	mu       sync.Mutex
	datasets []*refdata.Dataset
	calls    int
}

func (m *mockLoader) Load() *refdata.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := min(m.calls, len(m.datasets)-1)
	m.calls++
	return m.datasets[i]
}

type mockEvictor struct {
	mu      sync.Mutex
	maxIdle []time.Duration
}

func (m *mockEvictor) EvictIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxIdle = append(m.maxIdle, maxIdle)
	return 0
}

func goodDataset(condition string) *refdata.Dataset {
	return &refdata.Dataset{
		Conditions: []entities.ConditionRow{{Condition: condition, ICDCode: "I10"}},
		Treatments: []entities.TreatmentRow{{Condition: condition, BasketType: "Diagnostic", Code: "0190", Covered: "1"}},
		Medicines:  []entities.MedicineRow{{Condition: condition, MedicineName: "Renitec", ActiveIngredient: "Enalapril"}},
		Stats:      map[string]refdata.Stats{},
		Errors:     map[string]error{},
		LoadedAt:   time.Now(),
	}
}

func failedDataset() *refdata.Dataset {
	err := errors.New("open: no such file or directory")
	return &refdata.Dataset{
		Stats: map[string]refdata.Stats{},
		Errors: map[string]error{
			refdata.DatasetConditions: err,
			refdata.DatasetTreatments: err,
			refdata.DatasetMedicines:  err,
		},
		LoadedAt: time.Now(),
	}
}

func newTestScheduler(c *catalog.Catalog, loader *mockLoader) *Scheduler {
	return NewScheduler(c, loader, validation.NewDataValidator(), nil, Options{})
}

func TestReloadSwapsCatalog(t *testing.T) {
	c := catalog.New()
	loader := &mockLoader{datasets: []*refdata.Dataset{goodDataset("Hypertension"), goodDataset("Asthma")}}
	s := newTestScheduler(c, loader)

	if err := s.Reload(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := c.Conditions(); len(got) != 1 || got[0] != "Hypertension" {
		t.Fatalf("Expected [Hypertension], got %v", got)
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := c.Conditions(); len(got) != 1 || got[0] != "Asthma" {
		t.Errorf("Expected [Asthma] after reload, got %v", got)
	}
	if c.IsUpdating() {
		t.Error("Update flag must be cleared after reload")
	}
}

func TestReloadFailureKeepsCurrentData(t *testing.T) {
	c := catalog.New()
	loader := &mockLoader{datasets: []*refdata.Dataset{goodDataset("Hypertension"), failedDataset()}}
	s := newTestScheduler(c, loader)

	if err := s.Reload(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	loadedAt := c.GetLastUpdated()

	if err := s.Reload(); err == nil {
		t.Fatal("Expected error when every dataset fails")
	}
	if len(c.Conditions()) != 1 {
		t.Error("A failed reload must keep the previous data")
	}
	if !c.GetLastUpdated().Equal(loadedAt) {
		t.Error("A failed reload must not change the last update time")
	}
}

func TestInitialFailureServesEmptyCatalog(t *testing.T) {
	c := catalog.New()
	s := newTestScheduler(c, &mockLoader{datasets: []*refdata.Dataset{failedDataset()}})

	if err := s.Reload(); err == nil {
		t.Fatal("Expected error when every dataset fails")
	}
	if len(c.Conditions()) != 0 {
		t.Error("Expected empty catalog")
	}
	if len(c.LoadErrors()) != 3 {
		t.Errorf("Expected the 3 load errors to be kept, got %v", c.LoadErrors())
	}
}

func TestReloadSkippedWhileUpdating(t *testing.T) {
	c := catalog.New()
	loader := &mockLoader{datasets: []*refdata.Dataset{goodDataset("Hypertension")}}
	s := newTestScheduler(c, loader)

	c.BeginUpdate()
	if err := s.Reload(); err != nil {
		t.Fatalf("Skipped reload must not fail: %v", err)
	}
	c.EndUpdate()

	if loader.calls != 0 {
		t.Errorf("Loader must not run during another update, ran %d times", loader.calls)
	}
}

func TestStartAndStop(t *testing.T) {
	c := catalog.New()
	evictor := &mockEvictor{}
	loader := &mockLoader{datasets: []*refdata.Dataset{goodDataset("Hypertension")}}
	s := NewScheduler(c, loader, validation.NewDataValidator(), evictor, Options{
		ReloadAt:    "06:00;18:00",
		SessionIdle: time.Hour,
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Unexpected error during start: %v", err)
	}
	defer s.Stop()

	if loader.calls != 1 {
		t.Errorf("Expected the initial load, got %d loads", loader.calls)
	}
	if len(c.Conditions()) != 1 {
		t.Error("Initial load must populate the catalog")
	}
	if jobs := len(s.scheduler.Jobs()); jobs != 3 {
		t.Errorf("Expected 3 scheduled jobs, got %d", jobs)
	}
}

func TestStartWithInvalidReloadTime(t *testing.T) {
	loader := &mockLoader{datasets: []*refdata.Dataset{goodDataset("Hypertension")}}
	s := NewScheduler(catalog.New(), loader, validation.NewDataValidator(), nil, Options{ReloadAt: "25:99"})

	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Expected error for an invalid reload time")
	}
}

func TestCheckStaleness(t *testing.T) {
	c := catalog.New()
	s := newTestScheduler(c, &mockLoader{datasets: []*refdata.Dataset{goodDataset("Hypertension")}})

	// Empty catalog and fresh data both only log
	s.checkStaleness()
	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	s.nowFunc = func() time.Time { return time.Now().Add(26 * time.Hour) }
	s.checkStaleness()
}
