package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"byedebt/internal/core"
	"byedebt/internal/feed"
	"byedebt/internal/storage"
)

// LedgerService orchestrates debt record writes across SQLite and the change
// feed. Writes commit to storage first; feed publishes are best-effort and
// never fail the request.
type LedgerService struct {
	storage *storage.SQLiteRepository
	feed    feed.Feed
	now     func() time.Time
}

func NewLedgerService(storage *storage.SQLiteRepository, bus feed.Feed) *LedgerService {
	return &LedgerService{
		storage: storage,
		feed:    bus,
		now:     time.Now,
	}
}

// CreateDebt validates and persists a new record, then announces it on the
// change feed.
func (s *LedgerService) CreateDebt(ctx context.Context, rec core.DebtRecord) (core.DebtRecord, error) {
	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	if rec.Status == "" {
		rec.Status = core.StatusPending
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := rec.Validate(); err != nil {
		return core.DebtRecord{}, fmt.Errorf("validate debt: %w", err)
	}

	if err := s.storage.Create(ctx, rec); err != nil {
		return core.DebtRecord{}, fmt.Errorf("save debt: %w", err)
	}

	s.publish(ctx, feed.NewEvent(feed.KindInsert, rec.ID, rec.OwnerID))
	return rec, nil
}

// MarkStatus transitions a record between pending and paid.
func (s *LedgerService) MarkStatus(ctx context.Context, id string, status core.Status) error {
	if err := status.Validate(); err != nil {
		return err
	}

	rec, err := s.storage.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load debt: %w", err)
	}

	if err := s.storage.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update debt status: %w", err)
	}

	s.publish(ctx, feed.NewEvent(feed.KindUpdate, id, rec.OwnerID))
	return nil
}

// DeleteDebt removes a record and announces the deletion.
func (s *LedgerService) DeleteDebt(ctx context.Context, id string) error {
	rec, err := s.storage.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load debt: %w", err)
	}

	if err := s.storage.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}

	s.publish(ctx, feed.NewEvent(feed.KindDelete, id, rec.OwnerID))
	return nil
}

func (s *LedgerService) GetDebt(ctx context.Context, id string) (core.DebtRecord, error) {
	return s.storage.Get(ctx, id)
}

func (s *LedgerService) ListDebts(ctx context.Context, ownerID string) ([]core.DebtRecord, error) {
	return s.storage.ListByOwner(ctx, ownerID)
}

// ListWithParty returns the owner's records involving the named counterparty.
func (s *LedgerService) ListWithParty(ctx context.Context, ownerID, name string) ([]core.DebtRecord, error) {
	return s.storage.ListByCounterparty(ctx, ownerID, name)
}

func (s *LedgerService) publish(ctx context.Context, e feed.Event) {
	if s.feed == nil {
		slog.WarnContext(ctx, "Change feed not available, skipping event",
			"kind", e.Kind, "record_id", e.RecordID)
		return
	}
	if err := s.feed.Publish(ctx, e); err != nil {
		// The write already committed; aggregation catches up on the
		// next event or manual refresh.
		slog.ErrorContext(ctx, "Failed to publish change event",
			"kind", e.Kind, "record_id", e.RecordID, "error", err)
	}
}

func (s *LedgerService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close ledger service: %w", err)
		}
	}
	return nil
}
