package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maltedev/listing-harvester/internal/models"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Ledger stores run bookkeeping in Postgres. It never stores listing data.
type Ledger struct {
	db     execer
	logger *slog.Logger
}

func NewLedger(db *DB, logger *slog.Logger) *Ledger {
	return newLedger(db, logger)
}

func newLedger(db execer, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, logger: logger.With("component", "ledger")}
}

func (l *Ledger) RunStarted(ctx context.Context, run models.RunInfo) error {
	query := `
		INSERT INTO harvest_runs (id, profile, window_date, status, started_at, categories)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			categories = EXCLUDED.categories`

	if _, err := l.db.Exec(ctx, query,
		run.ID, run.Profile, run.Window, string(run.Status), run.StartedAt, run.Categories,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

func (l *Ledger) CategoryDone(ctx context.Context, rep models.CategoryReport) error {
	query := `
		INSERT INTO harvest_category_results (
			run_id, category, status, brands, listings_seen, listings_kept,
			unresolved, undated, file, file_id, error, duration_ms, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, category) DO UPDATE SET
			status = EXCLUDED.status,
			brands = EXCLUDED.brands,
			listings_seen = EXCLUDED.listings_seen,
			listings_kept = EXCLUDED.listings_kept,
			unresolved = EXCLUDED.unresolved,
			undated = EXCLUDED.undated,
			file = EXCLUDED.file,
			file_id = EXCLUDED.file_id,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			finished_at = EXCLUDED.finished_at`

	tag, err := l.db.Exec(ctx, query,
		rep.RunID, rep.Category, string(rep.Status), rep.Brands, rep.ListingsSeen, rep.ListingsKept,
		rep.Unresolved, rep.Undated, nullable(rep.File), nullable(rep.FileID), nullable(rep.Error),
		rep.Duration.Milliseconds(), rep.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record category %s: %w", rep.Category, err)
	}

	l.logger.Debug("category recorded", "run_id", rep.RunID, "category", rep.Category, "rows", tag.RowsAffected())
	return nil
}

func (l *Ledger) RunFinished(ctx context.Context, run models.RunInfo) error {
	query := `
		UPDATE harvest_runs SET
			status = $2,
			finished_at = $3,
			succeeded = $4,
			failed = $5,
			empty = $6,
			kept = $7,
			error = $8
		WHERE id = $1`

	tag, err := l.db.Exec(ctx, query,
		run.ID, string(run.Status), run.FinishedAt, run.Succeeded, run.Failed, run.Empty, run.Kept, nullable(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
