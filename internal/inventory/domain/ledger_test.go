package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testUnitProcesses() []UnitProcess {
	return []UnitProcess{
		{ID: "up-1", Name: "Melting"},
		{ID: "up-2", Name: "Casting"},
		{ID: "up-3", Name: "Finishing"},
	}
}

func testResourceTypes() []ResourceType {
	factor := decimal.RequireFromString("0.4594")
	return []ResourceType{
		{ID: "grid", Name: "Grid electricity", Unit: "kWh", Factor: &factor},
		{ID: "diesel", Name: "Diesel", Unit: "L"},
	}
}

func newTestLedger(t *testing.T) *Ledger[ResourceType] {
	t.Helper()
	ledger, err := NewLedger(CategoryPower, testResourceTypes(), testUnitProcesses())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestNewLedger_StartsWithOneEmptyItem(t *testing.T) {
	ledger := newTestLedger(t)
	items := ledger.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ID != "power-1" {
		t.Fatalf("unexpected id %s", items[0].ID)
	}
	if len(items[0].MonthlyUsage) != MonthsPerYear {
		t.Fatalf("expected 12 months, got %d", len(items[0].MonthlyUsage))
	}
	for i, usage := range items[0].MonthlyUsage {
		if usage.Month != i+1 || !usage.Amount.IsZero() {
			t.Fatalf("unexpected month entry %+v at %d", usage, i)
		}
	}
	if ledger.Method() != MethodProductionVolume {
		t.Fatalf("unexpected default method %s", ledger.Method())
	}
}

func TestNewLedger_RejectsInvalidCategory(t *testing.T) {
	if _, err := NewLedger[ResourceType]("", nil, nil); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected empty category error, got %v", err)
	}
	if _, err := NewLedger[ResourceType]("coal", nil, nil); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected invalid category error, got %v", err)
	}
}

func TestAddItem_UsesMaxSuffixPlusOne(t *testing.T) {
	ledger := newTestLedger(t)
	second, err := ledger.AddItem(ItemDefaults{})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	third, err := ledger.AddItem(ItemDefaults{ResourceTypeID: "diesel", DQI: DQIMeasured})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if second.ID != "power-2" || third.ID != "power-3" {
		t.Fatalf("unexpected ids %s %s", second.ID, third.ID)
	}
	if third.Unit != "L" || third.DQI != DQIMeasured {
		t.Fatalf("defaults not applied: %+v", third)
	}

	if err := ledger.DeleteItem("power-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	fourth, err := ledger.AddItem(ItemDefaults{})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if fourth.ID != "power-4" {
		t.Fatalf("expected power-4, got %s", fourth.ID)
	}
}

func TestAddItem_RejectsUnknownDefaults(t *testing.T) {
	ledger := newTestLedger(t)
	if _, err := ledger.AddItem(ItemDefaults{ResourceTypeID: "steam"}); !errors.Is(err, ErrUnknownResourceType) {
		t.Fatalf("expected unknown resource type, got %v", err)
	}
	if _, err := ledger.AddItem(ItemDefaults{LinkedUnitProcessIDs: []string{"up-9"}}); !errors.Is(err, ErrUnknownUnitProcess) {
		t.Fatalf("expected unknown unit process, got %v", err)
	}
	if _, err := ledger.AddItem(ItemDefaults{DQI: "X"}); !errors.Is(err, ErrInvalidDQI) {
		t.Fatalf("expected invalid dqi, got %v", err)
	}
	if ledger.Len() != 1 {
		t.Fatalf("rejected adds must not change the ledger, len=%d", ledger.Len())
	}
}

func TestDeleteItem_LastItemRejected(t *testing.T) {
	ledger := newTestLedger(t)
	err := ledger.DeleteItem("power-1")
	if !errors.Is(err, ErrMinimumOneItem) {
		t.Fatalf("expected minimum one item error, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("expected validation error")
	}
	if ledger.Len() != 1 {
		t.Fatalf("ledger must keep its last item")
	}
}

func TestDeleteItem_RemovesAllocationAndRatios(t *testing.T) {
	ledger := newTestLedger(t)
	item, err := ledger.AddItem(ItemDefaults{LinkedUnitProcessIDs: []string{"up-1", "up-2"}})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := ledger.SetMethod(MethodManualRatio); err != nil {
		t.Fatalf("set method: %v", err)
	}
	if err := ledger.SetManualRatio(item.ID, "up-1", decimal.NewFromInt(60)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	if err := ledger.DeleteItem(item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ledger.Allocations()) != 0 {
		t.Fatalf("expected no allocations after delete")
	}
	if len(ledger.manual) != 0 {
		t.Fatalf("expected ratios of deleted item to be dropped")
	}
	if _, err := ledger.Item(item.ID); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetMonthlyAmount_TotalAlwaysMatchesSum(t *testing.T) {
	ledger := newTestLedger(t)
	inputs := []struct {
		month  int
		amount string
	}{
		{1, "10.5"}, {2, "3"}, {12, "0.25"}, {2, "7"}, {6, "100"}, {1, "0"},
	}
	for _, in := range inputs {
		if err := ledger.SetMonthlyAmount("power-1", in.month, decimal.RequireFromString(in.amount)); err != nil {
			t.Fatalf("set month %d: %v", in.month, err)
		}
		item, err := ledger.Item("power-1")
		if err != nil {
			t.Fatalf("item: %v", err)
		}
		sum := decimal.Zero
		for _, usage := range item.MonthlyUsage {
			sum = sum.Add(usage.Amount)
		}
		if !item.TotalAmount.Equal(sum) {
			t.Fatalf("total %s does not match sum %s", item.TotalAmount, sum)
		}
	}
	item, _ := ledger.Item("power-1")
	if !item.TotalAmount.Equal(decimal.RequireFromString("107.25")) {
		t.Fatalf("expected 107.25, got %s", item.TotalAmount)
	}
}

func TestSetMonthlyAmount_Rejections(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetMonthlyAmount("power-1", 4, decimal.NewFromInt(5)); err != nil {
		t.Fatalf("set: %v", err)
	}
	cases := []struct {
		name   string
		month  int
		amount decimal.Decimal
		want   error
	}{
		{"month zero", 0, decimal.NewFromInt(1), ErrInvalidMonth},
		{"month thirteen", 13, decimal.NewFromInt(1), ErrInvalidMonth},
		{"negative", 4, decimal.NewFromInt(-1), ErrNegativeAmount},
	}
	for _, tc := range cases {
		if err := ledger.SetMonthlyAmount("power-1", tc.month, tc.amount); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	item, _ := ledger.Item("power-1")
	if !item.Amount(4).Equal(decimal.NewFromInt(5)) || !item.TotalAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("rejected writes must preserve state: %+v", item)
	}
	if err := ledger.SetMonthlyAmount("power-9", 1, decimal.Zero); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetMonthlyAmountInput_NonNumericIsZero(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetMonthlyAmountInput("power-1", 3, " 42.5 "); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ledger.SetMonthlyAmountInput("power-1", 3, "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	item, _ := ledger.Item("power-1")
	if !item.Amount(3).IsZero() || !item.TotalAmount.IsZero() {
		t.Fatalf("expected non-numeric input to coerce to zero, got %s", item.Amount(3))
	}
	if err := ledger.SetMonthlyAmountInput("power-1", 3, "-2"); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative rejection, got %v", err)
	}
}

// finishesWithin fails the test when fn does not return in time.
func finishesWithin(t *testing.T, name string, limit time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(limit):
		t.Fatalf("%s still running after %s", name, limit)
	}
}

func TestSetMonthlyAmount_ExtremeExponents(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetMonthlyAmount("power-1", 2, decimal.NewFromInt(7)); err != nil {
		t.Fatalf("set: %v", err)
	}

	for _, raw := range []string{"1e99999999", "1e-99999999"} {
		var inputErr, amountErr error
		finishesWithin(t, raw, 2*time.Second, func() {
			inputErr = ledger.SetMonthlyAmountInput("power-1", 1, raw)
			amountErr = ledger.SetMonthlyAmount("power-1", 1, decimal.RequireFromString(raw))
		})
		if inputErr != nil {
			t.Fatalf("%s: expected input to coerce to zero, got %v", raw, inputErr)
		}
		if !errors.Is(amountErr, ErrAmountOutOfRange) || !IsValidation(amountErr) {
			t.Fatalf("%s: expected out of range rejection, got %v", raw, amountErr)
		}
	}

	item, _ := ledger.Item("power-1")
	if !item.Amount(1).IsZero() || !item.TotalAmount.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected state after extreme input: month1=%s total=%s", item.Amount(1), item.TotalAmount)
	}
	if err := ledger.SetMonthlyAmountInput("power-1", 1, "123456789.123456"); err != nil {
		t.Fatalf("set: %v", err)
	}
	item, _ = ledger.Item("power-1")
	if !item.Amount(1).Equal(decimal.RequireFromString("123456789.123456")) {
		t.Fatalf("ordinary amount altered: %s", item.Amount(1))
	}
}

func TestSetManualRatio_ExtremeExponents(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetLinkedUnitProcesses("power-1", []string{"up-1"}); err != nil {
		t.Fatalf("set links: %v", err)
	}
	for _, raw := range []string{"1e99999999", "1e-99999999"} {
		var err error
		finishesWithin(t, raw, 2*time.Second, func() {
			err = ledger.SetManualRatio("power-1", "up-1", decimal.RequireFromString(raw))
		})
		if !errors.Is(err, ErrInvalidRatio) {
			t.Fatalf("%s: expected invalid ratio, got %v", raw, err)
		}
	}
	if len(ledger.manual) != 0 {
		t.Fatalf("rejected ratios must not be stored")
	}
}

func TestSetLinkedUnitProcesses_DedupesAndRecomputes(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetLinkedUnitProcesses("power-1", []string{"up-2", "up-1", "up-2"}); err != nil {
		t.Fatalf("set links: %v", err)
	}
	item, _ := ledger.Item("power-1")
	if len(item.LinkedUnitProcessIDs) != 2 || item.LinkedUnitProcessIDs[0] != "up-2" || item.LinkedUnitProcessIDs[1] != "up-1" {
		t.Fatalf("unexpected links %v", item.LinkedUnitProcessIDs)
	}
	allocations := ledger.Allocations()
	if len(allocations) != 1 || len(allocations[0].UnitProcessAllocations) != 2 {
		t.Fatalf("expected one record with two entries, got %+v", allocations)
	}
	if allocations[0].UnitProcessAllocations[0].UnitProcessID != "up-2" {
		t.Fatalf("allocation order must follow link order")
	}

	if err := ledger.SetLinkedUnitProcesses("power-1", []string{"up-1", "nope"}); !errors.Is(err, ErrUnknownUnitProcess) {
		t.Fatalf("expected unknown unit process, got %v", err)
	}
	item, _ = ledger.Item("power-1")
	if len(item.LinkedUnitProcessIDs) != 2 {
		t.Fatalf("rejected link change must preserve links")
	}

	if err := ledger.SetLinkedUnitProcesses("power-1", nil); err != nil {
		t.Fatalf("clear links: %v", err)
	}
	if len(ledger.Allocations()) != 0 {
		t.Fatalf("items without links must not keep allocation records")
	}
}

func TestSetResourceType_UpdatesUnitOnly(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetMonthlyAmount("power-1", 1, decimal.NewFromInt(9)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ledger.SetResourceType("power-1", "grid"); err != nil {
		t.Fatalf("set type: %v", err)
	}
	item, _ := ledger.Item("power-1")
	if item.Unit != "kWh" || item.ResourceTypeID != "grid" {
		t.Fatalf("unexpected item %+v", item)
	}
	if !item.TotalAmount.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("amounts must be untouched")
	}
	if err := ledger.SetResourceType("power-1", "unknown"); !errors.Is(err, ErrUnknownResourceType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
	item, _ = ledger.Item("power-1")
	if item.Unit != "kWh" {
		t.Fatalf("rejected type change must preserve unit")
	}
}

func TestSetDQI(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetDQI("power-1", DQIEstimated); err != nil {
		t.Fatalf("set dqi: %v", err)
	}
	if err := ledger.SetDQI("power-1", "Q"); !errors.Is(err, ErrInvalidDQI) {
		t.Fatalf("expected invalid dqi, got %v", err)
	}
	item, _ := ledger.Item("power-1")
	if item.DQI != DQIEstimated {
		t.Fatalf("expected E, got %q", item.DQI)
	}
}

func TestItems_ReturnsDetachedCopies(t *testing.T) {
	ledger := newTestLedger(t)
	items := ledger.Items()
	items[0].MonthlyUsage[0].Amount = decimal.NewFromInt(99)
	items[0].LinkedUnitProcessIDs = append(items[0].LinkedUnitProcessIDs, "up-1")
	item, _ := ledger.Item("power-1")
	if !item.Amount(1).IsZero() || len(item.LinkedUnitProcessIDs) != 0 {
		t.Fatalf("ledger state leaked through accessor")
	}
}

func TestRetainUnitProcesses_DropsStaleLinks(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetLinkedUnitProcesses("power-1", []string{"up-1", "up-2", "up-3"}); err != nil {
		t.Fatalf("set links: %v", err)
	}
	if err := ledger.SetMethod(MethodManualRatio); err != nil {
		t.Fatalf("set method: %v", err)
	}
	if err := ledger.SetManualRatio("power-1", "up-3", decimal.NewFromInt(30)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	removed := ledger.RetainUnitProcesses([]UnitProcess{{ID: "up-1"}, {ID: "up-2"}})
	if removed != 1 {
		t.Fatalf("expected 1 removed link, got %d", removed)
	}
	item, _ := ledger.Item("power-1")
	if item.IsLinked("up-3") {
		t.Fatalf("stale link kept")
	}
	if _, ok := ledger.manual[RatioKey{ItemID: "power-1", UnitProcessID: "up-3"}]; ok {
		t.Fatalf("stale ratio kept")
	}
	if err := ledger.SetLinkedUnitProcesses("power-1", []string{"up-3"}); !errors.Is(err, ErrUnknownUnitProcess) {
		t.Fatalf("expected retired unit process to be unknown, got %v", err)
	}
}

func TestSnapshot_CarriesWarnings(t *testing.T) {
	ledger := newTestLedger(t)
	if err := ledger.SetLinkedUnitProcesses("power-1", []string{"up-1", "up-2"}); err != nil {
		t.Fatalf("set links: %v", err)
	}
	if err := ledger.SetMethod(MethodManualRatio); err != nil {
		t.Fatalf("set method: %v", err)
	}
	snapshot := ledger.Snapshot()
	if snapshot.Category != CategoryPower || snapshot.Method != MethodManualRatio {
		t.Fatalf("unexpected snapshot header %+v", snapshot)
	}
	if len(snapshot.Warnings) != 1 || snapshot.Warnings[0].Message != WarningRatioSum {
		t.Fatalf("expected one ratio warning, got %+v", snapshot.Warnings)
	}
}

func TestParseCategory(t *testing.T) {
	for _, category := range Categories() {
		parsed, err := ParseCategory(string(category))
		if err != nil || parsed != category {
			t.Fatalf("parse %s: %v", category, err)
		}
	}
	if _, err := ParseCategory("coal"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected invalid category, got %v", err)
	}
}
