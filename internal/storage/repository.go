package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"byedebt/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("debt record not found")

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

type SQLiteRepository struct {
	db    *sql.DB
	prefs *PreferenceStore
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:    db,
		prefs: &PreferenceStore{db: db},
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Preferences exposes the key-value store backed by the same database.
func (r *SQLiteRepository) Preferences() *PreferenceStore {
	return r.prefs
}

func (r *SQLiteRepository) Create(ctx context.Context, rec core.DebtRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO debts (id, owner_id, debtor_name, creditor_name, amount,
			currency, due_date, status, category, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.DebtorName, rec.CreditorName,
		rec.Amount.String(), rec.Currency, rec.DueDate.Format(dateLayout),
		string(rec.Status), rec.Category, rec.Description,
		rec.CreatedAt.Format(timeLayout), rec.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert debt: %w", err)
	}

	slog.InfoContext(ctx, "Debt record saved",
		"id", rec.ID,
		"owner_id", rec.OwnerID,
		"amount", rec.Amount.String(),
		"currency", rec.Currency)
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.DebtRecord, error) {
	row := r.db.QueryRowContext(ctx, selectDebt+` WHERE id = ?`, id)
	rec, err := scanDebt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DebtRecord{}, ErrNotFound
	}
	if err != nil {
		return core.DebtRecord{}, fmt.Errorf("get debt %s: %w", id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]core.DebtRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		selectDebt+` WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list debts by owner: %w", err)
	}
	defer rows.Close()

	var records []core.DebtRecord
	for rows.Next() {
		rec, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debt rows: %w", err)
	}
	return records, nil
}

// ListByCounterparty returns the owner's records where the given name matches
// either side of the debt. The name match normalizes case and whitespace, so
// it happens here rather than in SQL.
func (r *SQLiteRepository) ListByCounterparty(ctx context.Context, ownerID, name string) ([]core.DebtRecord, error) {
	records, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	matched := make([]core.DebtRecord, 0, len(records))
	for _, rec := range records {
		if core.SameParty(rec.DebtorName, name) || core.SameParty(rec.CreditorName, name) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status core.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update debt status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update debt status: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Debt status updated", "id", id, "status", string(status))
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM debts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Debt record deleted", "id", id)
	return nil
}

const selectDebt = `
	SELECT id, owner_id, debtor_name, creditor_name, amount,
		currency, due_date, status, category, description, created_at, updated_at
	FROM debts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebt(row rowScanner) (core.DebtRecord, error) {
	var (
		rec                  core.DebtRecord
		amount, due, status  string
		createdAt, updatedAt string
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.DebtorName, &rec.CreditorName,
		&amount, &rec.Currency, &due, &status, &rec.Category, &rec.Description,
		&createdAt, &updatedAt)
	if err != nil {
		return core.DebtRecord{}, err
	}

	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.DebtRecord{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	dueTime, err := time.Parse(dateLayout, due)
	if err != nil {
		return core.DebtRecord{}, fmt.Errorf("parse due date %q: %w", due, err)
	}
	rec.DueDate = core.Date{Time: dueTime}
	rec.Status = core.Status(status)
	rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return core.DebtRecord{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return core.DebtRecord{}, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return rec, nil
}
