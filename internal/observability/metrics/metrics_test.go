package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit_IsIdempotent(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(ledgerMutations.WithLabelValues("power", "add_item", ResultSuccess))
	IncLedgerMutation("power", "add_item", "")
	after := testutil.ToFloat64(ledgerMutations.WithLabelValues("power", "add_item", ResultSuccess))
	if after-before != 1 {
		t.Fatalf("expected one mutation counted, got %v", after-before)
	}
}

func TestHelpers_RecordValues(t *testing.T) {
	Init()

	AddAllocationWarnings("fuel", 0)
	before := testutil.ToFloat64(allocationWarnings.WithLabelValues("fuel"))
	AddAllocationWarnings("fuel", 3)
	if got := testutil.ToFloat64(allocationWarnings.WithLabelValues("fuel")) - before; got != 3 {
		t.Fatalf("expected 3 warnings, got %v", got)
	}

	ObserveSnapshotSave("ledger", ResultError, 5*time.Millisecond)
	if got := testutil.ToFloat64(snapshotSaveTotal.WithLabelValues("ledger", ResultError)); got < 1 {
		t.Fatalf("expected snapshot save error to be counted")
	}

	SetSessionsActive(4)
	if got := testutil.ToFloat64(sessionsActive); got != 4 {
		t.Fatalf("expected 4 active sessions, got %v", got)
	}
}

func TestIncEventHandlerFailure(t *testing.T) {
	Init()

	counter := eventHandlerFailures.WithLabelValues("application.SnapshotRequested", "panic")
	before := testutil.ToFloat64(counter)
	IncEventHandlerFailure("application.SnapshotRequested", "panic")
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected one failure counted, got %v", got)
	}
}
