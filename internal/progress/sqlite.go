package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/Atelier/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps one row per job in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("progress: sqlite path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// the pure go driver serializes writers, a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS progress (
			job_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating progress table failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Write(ctx context.Context, jobID string, rec model.Progress) error {
	if err := checkID(jobID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(ctx context.Context, jobID string) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.ErrorContext(ctx, "Calling `tx.Rollback()` failed.", slog.String("job_id", jobID))
		}
	}(ctx, jobID)

	var status string
	row := tx.QueryRowContext(ctx,
		`SELECT status FROM progress WHERE job_id=?`, jobID,
	)
	err = row.Scan(&status)
	switch {
	case err == nil && model.Status(status).Terminal():
		return fmt.Errorf("progress %s: %w", jobID, model.ErrTerminal)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("executing sql query failed: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO progress (job_id, status, progress, message, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			error = excluded.error,
			updated_at = excluded.updated_at;
		`, jobID, string(rec.Status), rec.Progress, rec.Message, rec.Error, unixNano(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("executing sql upsert failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Read(ctx context.Context, jobID string) (model.Progress, error) {
	if err := checkID(jobID); err != nil {
		return model.Unknown(), err
	}
	var (
		status  string
		rec     model.Progress
		updated int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT status, progress, message, error, updated_at FROM progress WHERE job_id=?`, jobID,
	)
	err := row.Scan(&status, &rec.Progress, &rec.Message, &rec.Error, &updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Unknown(), fmt.Errorf("progress %s: %w", jobID, model.ErrNotFound)
	case err != nil:
		return model.Unknown(), fmt.Errorf("executing sql query failed: %w", err)
	}
	rec.Status = model.Status(status)
	if updated != 0 {
		rec.UpdatedAt = time.Unix(0, updated).UTC()
	}
	return rec, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
