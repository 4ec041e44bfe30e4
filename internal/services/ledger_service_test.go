package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"byedebt/internal/core"
	"byedebt/internal/feed"
	"byedebt/internal/storage"
)

func newTestService(t *testing.T) (*LedgerService, *feed.Bus) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	bus := feed.NewBus()
	svc := NewLedgerService(repo, bus)
	t.Cleanup(func() { svc.Close() })
	return svc, bus
}

func draft(debtor, creditor string) core.DebtRecord {
	return core.DebtRecord{
		OwnerID:      "owner-1",
		DebtorName:   debtor,
		CreditorName: creditor,
		Amount:       decimal.NewFromInt(50),
		Currency:     "USD",
		DueDate:      core.NewDate(2026, 9, 15),
	}
}

func collectEvents(t *testing.T, bus *feed.Bus, events *[]feed.Event) {
	t.Helper()
	sub, err := bus.Subscribe(context.Background(), "owner-1", func(e feed.Event) {
		*events = append(*events, e)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
}

func TestCreateDebtPersistsAndPublishes(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	var events []feed.Event
	collectEvents(t, bus, &events)

	created, err := svc.CreateDebt(ctx, draft("You", "Alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.Status != core.StatusPending {
		t.Errorf("expected default pending status, got %s", created.Status)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	got, err := svc.GetDebt(ctx, created.ID)
	if err != nil {
		t.Fatalf("get after create: %v", err)
	}
	if got.DebtorName != "You" {
		t.Errorf("unexpected record: %+v", got)
	}

	if len(events) != 1 || events[0].Kind != feed.KindInsert || events[0].RecordID != created.ID {
		t.Errorf("expected one insert event, got %+v", events)
	}
}

func TestCreateDebtRejectsInvalid(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	var events []feed.Event
	collectEvents(t, bus, &events)

	bad := draft("You", "Alice")
	bad.Amount = decimal.NewFromInt(-5)
	if _, err := svc.CreateDebt(ctx, bad); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("invalid record must not publish events: %+v", events)
	}
}

func TestMarkStatusPublishesUpdate(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateDebt(ctx, draft("You", "Alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var events []feed.Event
	collectEvents(t, bus, &events)

	if err := svc.MarkStatus(ctx, created.ID, core.StatusPaid); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	got, err := svc.GetDebt(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != core.StatusPaid {
		t.Errorf("expected paid, got %s", got.Status)
	}
	if len(events) != 1 || events[0].Kind != feed.KindUpdate {
		t.Errorf("expected one update event, got %+v", events)
	}

	if err := svc.MarkStatus(ctx, created.ID, core.Status("overdue")); !errors.Is(err, core.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if err := svc.MarkStatus(ctx, "missing", core.StatusPaid); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDebtPublishesDelete(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateDebt(ctx, draft("You", "Alice"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var events []feed.Event
	collectEvents(t, bus, &events)

	if err := svc.DeleteDebt(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetDebt(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if len(events) != 1 || events[0].Kind != feed.KindDelete {
		t.Errorf("expected one delete event, got %+v", events)
	}
}

func TestListWithParty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, rec := range []core.DebtRecord{
		draft("You", "Alice"),
		draft("alice", "You"),
		draft("You", "Bob"),
	} {
		if _, err := svc.CreateDebt(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	records, err := svc.ListWithParty(ctx, "owner-1", "Alice")
	if err != nil {
		t.Fatalf("list with party: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected 2 records for Alice, got %d", len(records))
	}
}

// Timestamps are assigned by the service clock, not taken from the caller.
func TestCreateDebtOverridesCallerTimestamps(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }

	created, err := svc.CreateDebt(context.Background(), func() core.DebtRecord {
		rec := draft("You", "Alice")
		rec.CreatedAt = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		return rec
	}())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.CreatedAt.Year() != 2026 {
		t.Errorf("expected service clock timestamp, got %v", created.CreatedAt)
	}
}
