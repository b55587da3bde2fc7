package application_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	catalog "carbon-inventory/internal/catalog/domain"
	catalogmemory "carbon-inventory/internal/catalog/infrastructure/memory"
	"carbon-inventory/internal/eventing"
	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
	"carbon-inventory/internal/session/application"
	session "carbon-inventory/internal/session/domain"
	sessionmemory "carbon-inventory/internal/session/infrastructure/memory"
)

const testSite = "site-1"

func testCatalog() *catalog.Snapshot {
	return &catalog.Snapshot{
		SiteID: testSite,
		UnitProcesses: []inventory.UnitProcess{
			{ID: "up-1", Name: "Melting"},
			{ID: "up-2", Name: "Casting"},
			{ID: "up-3", Name: "Finishing"},
		},
		ResourceTypes: map[inventory.Category][]inventory.ResourceType{
			inventory.CategoryPower: {{ID: "grid", Name: "Grid electricity", Unit: "kWh"}},
			inventory.CategoryFuel:  {{ID: "diesel", Name: "Diesel", Unit: "L"}},
		},
		Processes: []mapping.Process{
			{ID: "proc-1", Name: "Rolling", SubProcesses: []mapping.SubProcess{{ID: "A"}, {ID: "B"}, {ID: "C"}}},
			{ID: "proc-2", Name: "Drawing", SubProcesses: []mapping.SubProcess{{ID: "D"}}},
		},
		Mappables: []mapping.Mappable{
			{ID: "p-1", Name: "Steel bar", Type: mapping.ItemTypeProduct, ProcessName: "Rolling"},
			{ID: "p-2", Name: "Wire", Type: mapping.ItemTypeProduct, ProcessName: "Drawing"},
		},
	}
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service  *application.Service
	sink     *sessionmemory.Sink
	catalogs *catalogmemory.Repository
}

func newFixture(t *testing.T, opts ...application.ServiceOption) fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sink := sessionmemory.NewSink()
	persister, err := application.NewSnapshotPersister(sink, logger)
	if err != nil {
		t.Fatalf("persister: %v", err)
	}
	bus := eventing.NewInMemoryBus()
	eventing.SubscribeTyped(bus, persister.HandleSnapshotRequested)

	catalogs := catalogmemory.NewRepository(testCatalog())
	service, err := application.NewService(catalogs, bus, logger, opts...)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return fixture{service: service, sink: sink, catalogs: catalogs}
}

func mustCreate(t *testing.T, service *application.Service) string {
	t.Helper()
	view, err := service.Create(context.Background(), testSite)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return view.ID
}

func TestNewService_RejectsNilDeps(t *testing.T) {
	if _, err := application.NewService(nil, eventing.NewInMemoryBus(), nil); err == nil {
		t.Fatalf("expected error for nil catalog repository")
	}
	if _, err := application.NewService(catalogmemory.NewRepository(), nil, nil); err == nil {
		t.Fatalf("expected error for nil publisher")
	}
}

func TestCreate_UnknownSite(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), "site-missing")
	if !errors.Is(err, catalog.ErrSiteNotFound) {
		t.Fatalf("expected ErrSiteNotFound, got %v", err)
	}
	if _, err := f.service.Create(context.Background(), ""); !errors.Is(err, session.ErrEmptySiteID) {
		t.Fatalf("expected ErrEmptySiteID, got %v", err)
	}
}

func TestCreate_OneLedgerPerCategory(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f.service)

	view, err := f.service.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Categories) != len(inventory.Categories()) {
		t.Fatalf("expected %d categories, got %d", len(inventory.Categories()), len(view.Categories))
	}
	for _, summary := range view.Categories {
		if summary.ItemCount != 1 {
			t.Fatalf("category %s: expected 1 item, got %d", summary.Category, summary.ItemCount)
		}
		if summary.Method != inventory.MethodProductionVolume {
			t.Fatalf("category %s: unexpected method %s", summary.Category, summary.Method)
		}
	}
}

func TestLedger_CategoriesAndSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	first := mustCreate(t, f.service)
	second := mustCreate(t, f.service)

	if _, err := f.service.AddItem(first, inventory.CategoryPower, inventory.ItemDefaults{ResourceTypeID: "grid"}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := f.service.SetMonthlyAmountInput(first, inventory.CategoryPower, "power-1", 3, "42.5"); err != nil {
		t.Fatalf("set amount: %v", err)
	}

	power, err := f.service.Ledger(first, inventory.CategoryPower)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(power.Items) != 2 {
		t.Fatalf("expected 2 power items, got %d", len(power.Items))
	}
	if !power.Items[0].TotalAmount.Equal(decimal.RequireFromString("42.5")) {
		t.Fatalf("unexpected total %s", power.Items[0].TotalAmount)
	}

	fuel, err := f.service.Ledger(first, inventory.CategoryFuel)
	if err != nil {
		t.Fatalf("fuel ledger: %v", err)
	}
	if len(fuel.Items) != 1 {
		t.Fatalf("fuel ledger should be untouched, got %d items", len(fuel.Items))
	}

	other, err := f.service.Ledger(second, inventory.CategoryPower)
	if err != nil {
		t.Fatalf("other ledger: %v", err)
	}
	if len(other.Items) != 1 || !other.Items[0].TotalAmount.IsZero() {
		t.Fatalf("second session should be untouched, got %+v", other.Items)
	}
}

func TestLedger_RejectionsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f.service)
	category := inventory.CategoryPower

	if err := f.service.DeleteItem(id, category, "power-1"); !errors.Is(err, inventory.ErrMinimumOneItem) {
		t.Fatalf("expected ErrMinimumOneItem, got %v", err)
	}
	if err := f.service.SetMonthlyAmountInput(id, category, "power-1", 13, "1"); !errors.Is(err, inventory.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
	if err := f.service.SetLinkedUnitProcesses(id, category, "power-1", []string{"up-9"}); !inventory.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := f.service.SetResourceType(id, category, "power-404", "grid"); !errors.Is(err, inventory.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := f.service.Ledger(id, inventory.Category("plasma")); !errors.Is(err, inventory.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
	if _, err := f.service.Ledger("missing", category); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	view, err := f.service.Ledger(id, category)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(view.Items) != 1 || len(view.Items[0].LinkedUnitProcessIDs) != 0 || len(view.Allocations) != 0 {
		t.Fatalf("ledger changed after rejected mutations: %+v", view)
	}
}

func TestSaveLedger_FireAndForgetReachesSink(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f.service)
	category := inventory.CategoryPower

	if err := f.service.SetLinkedUnitProcesses(id, category, "power-1", []string{"up-1", "up-2", "up-3"}); err != nil {
		t.Fatalf("link: %v", err)
	}
	view, err := f.service.Ledger(id, category)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	status := view.Status["power-1"]
	if !status.OK {
		t.Fatalf("equal split should validate, delta=%s", status.Delta)
	}

	result, err := f.service.SaveLedger(context.Background(), id, category)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	f.service.Wait()

	saved, ok := f.sink.Latest(id, session.KindLedger)
	if !ok {
		t.Fatalf("expected snapshot in sink")
	}
	if saved.ID != result.SnapshotID {
		t.Fatalf("snapshot id mismatch: got=%s want=%s", saved.ID, result.SnapshotID)
	}
	if saved.Category != category || saved.SiteID != testSite {
		t.Fatalf("unexpected snapshot header %+v", saved)
	}
	if len(saved.Ledger.Allocations) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(saved.Ledger.Allocations))
	}
	if !saved.Ledger.Allocations[0].TotalRatio.Equal(decimal.RequireFromString("99.9")) {
		t.Fatalf("unexpected total ratio %s", saved.Ledger.Allocations[0].TotalRatio)
	}
}

func TestSaveLedger_WarningsDoNotBlockAndSinkErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t, application.WithDispatch(func(fn func()) { fn() }))
	id := mustCreate(t, f.service)
	category := inventory.CategoryPower

	if err := f.service.SetLinkedUnitProcesses(id, category, "power-1", []string{"up-1", "up-2"}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := f.service.SetMethod(id, category, inventory.MethodManualRatio); err != nil {
		t.Fatalf("method: %v", err)
	}
	if err := f.service.SetManualRatio(id, category, "power-1", "up-1", decimal.NewFromInt(70)); err != nil {
		t.Fatalf("ratio: %v", err)
	}

	f.sink.FailWith(errors.New("disk full"))
	result, err := f.service.SaveLedger(context.Background(), id, category)
	if err != nil {
		t.Fatalf("save should not surface sink errors: %v", err)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].ItemID != "power-1" {
		t.Fatalf("expected one warning for power-1, got %+v", result.Warnings)
	}
	if !result.Warnings[0].Delta.Equal(decimal.NewFromInt(-30)) {
		t.Fatalf("expected delta -30, got %s", result.Warnings[0].Delta)
	}
	if len(f.sink.Snapshots()) != 0 {
		t.Fatalf("failed sink should hold nothing")
	}

	f.sink.FailWith(nil)
	if _, err := f.service.SaveLedger(context.Background(), id, category); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(f.sink.Snapshots()) != 1 {
		t.Fatalf("expected 1 stored snapshot, got %d", len(f.sink.Snapshots()))
	}
}

func TestMapping_SelectToggleAndSave(t *testing.T) {
	f := newFixture(t, application.WithDispatch(func(fn func()) { fn() }))
	id := mustCreate(t, f.service)

	if _, err := f.service.Toggle(id, "p-1", mapping.ItemTypeProduct, "A"); !errors.Is(err, mapping.ErrNoProcessSelected) {
		t.Fatalf("expected ErrNoProcessSelected, got %v", err)
	}
	if _, err := f.service.SelectProcess(id, "proc-404"); !errors.Is(err, application.ErrProcessNotFound) {
		t.Fatalf("expected ErrProcessNotFound, got %v", err)
	}
	view, err := f.service.SelectProcess(id, "proc-1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(view.Eligible) != 1 || view.Eligible[0].ID != "p-1" {
		t.Fatalf("unexpected eligible items %+v", view.Eligible)
	}

	for _, sub := range []string{"A", "B", "C"} {
		if _, err := f.service.Toggle(id, "p-1", mapping.ItemTypeProduct, sub); err != nil {
			t.Fatalf("toggle %s: %v", sub, err)
		}
	}
	result, err := f.service.Toggle(id, "p-1", mapping.ItemTypeProduct, "B")
	if err != nil {
		t.Fatalf("toggle B off: %v", err)
	}
	if result.Assigned || len(result.Assignments) != 2 {
		t.Fatalf("unexpected toggle result %+v", result)
	}
	if result.Assignments[0].SubProcessID != "A" || result.Assignments[1].SubProcessID != "C" || result.Assignments[1].Order != 2 {
		t.Fatalf("orders not compacted: %+v", result.Assignments)
	}
	if _, err := f.service.Toggle(id, "p-2", mapping.ItemTypeProduct, "A"); !errors.Is(err, mapping.ErrIneligibleItem) {
		t.Fatalf("expected ErrIneligibleItem, got %v", err)
	}

	saved, err := f.service.SaveMapping(context.Background(), id)
	if err != nil {
		t.Fatalf("save mapping: %v", err)
	}
	stored, ok := f.sink.Latest(id, session.KindMapping)
	if !ok || stored.ID != saved.SnapshotID {
		t.Fatalf("mapping snapshot not stored")
	}
	if stored.Mapping.ProcessID != "proc-1" || len(stored.Mapping.Entries) != 1 {
		t.Fatalf("unexpected mapping snapshot %+v", stored.Mapping)
	}

	view, err = f.service.SelectProcess(id, "proc-2")
	if err != nil {
		t.Fatalf("select proc-2: %v", err)
	}
	if len(view.Entries) != 0 {
		t.Fatalf("process change should reset orders, got %+v", view.Entries)
	}
}

func TestSweep_RemovesIdleSessions(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)}
	f := newFixture(t, application.WithClock(clock), application.WithIdleTTL(30*time.Minute))

	stale := mustCreate(t, f.service)
	clock.Advance(20 * time.Minute)
	fresh := mustCreate(t, f.service)
	clock.Advance(15 * time.Minute)

	if removed := f.service.Sweep(clock.Now()); removed != 1 {
		t.Fatalf("expected 1 swept session, got %d", removed)
	}
	if _, err := f.service.Get(stale); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("stale session should be gone, got %v", err)
	}
	if _, err := f.service.Get(fresh); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
	if f.service.Active() != 1 {
		t.Fatalf("expected 1 active session, got %d", f.service.Active())
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	id := mustCreate(t, f.service)
	if err := f.service.Close(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.service.Close(id); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRefreshCatalog_PrunesLinksAndRatios(t *testing.T) {
	f := newFixture(t, application.WithDispatch(func(fn func()) { fn() }))
	id := mustCreate(t, f.service)
	power := inventory.CategoryPower

	if err := f.service.SetLinkedUnitProcesses(id, power, "power-1", []string{"up-2", "up-3"}); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := f.service.SetMethod(id, power, inventory.MethodManualRatio); err != nil {
		t.Fatalf("method: %v", err)
	}
	if err := f.service.SetManualRatio(id, power, "power-1", "up-3", decimal.NewFromInt(40)); err != nil {
		t.Fatalf("ratio: %v", err)
	}

	updated := testCatalog()
	updated.UnitProcesses = updated.UnitProcesses[:2]
	if err := f.catalogs.Put(updated); err != nil {
		t.Fatalf("put catalog: %v", err)
	}
	result, err := f.service.RefreshCatalog(context.Background(), id)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.RemovedLinks[power] != 1 || len(result.RemovedLinks) != 1 {
		t.Fatalf("unexpected removed links %+v", result.RemovedLinks)
	}

	snapshot, err := f.service.Catalog(id)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(snapshot.UnitProcesses) != 2 || len(snapshot.Processes) != 2 {
		t.Fatalf("unexpected session catalog %+v", snapshot)
	}

	view, err := f.service.Ledger(id, power)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if got := view.Items[0].LinkedUnitProcessIDs; len(got) != 1 || got[0] != "up-2" {
		t.Fatalf("unexpected links %v", got)
	}
	if !view.Allocations[0].TotalRatio.IsZero() {
		t.Fatalf("ratio of removed unit process should be gone, total %s", view.Allocations[0].TotalRatio)
	}

	if _, err := f.service.RefreshCatalog(context.Background(), "missing"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}
