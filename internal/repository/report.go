package repository

import (
	"context"
	"database/sql"
	"fmt"

	"clan-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type ReportRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewReportRepository(sqlDB *sql.DB, logger zerolog.Logger) *ReportRepository {
	return &ReportRepository{db: sqlDB, logger: logger}
}

func (r *ReportRepository) DB() *sql.DB {
	return r.db
}

// Exists reports whether a character's kills have already been extracted
// from a match. The processor consults this before inserting kill rows so a
// redelivered job cannot double-count a match.
func (r *ReportRepository) Exists(ctx context.Context, pgcrID, characterID int64) (bool, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_report_character WHERE pgcr_id = ? AND character_id = ?`,
		pgcrID, characterID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check match report %d: %w", pgcrID, err)
	}
	return count > 0, nil
}

// InsertTx stores one immutable match report inside the caller's
// transaction. The payload is keyed by match alone, so two clan characters
// in the same match share one stored report; the (match, character) marker
// row is what makes redelivery a no-op.
func (r *ReportRepository) InsertTx(ctx context.Context, tx *sql.Tx, report *domain.MatchReport) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO match_report (pgcr_id, mode, period, data)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (pgcr_id) DO NOTHING`,
		report.PGCRID, report.Mode, report.Period, report.Data)
	if err != nil {
		return fmt.Errorf("failed to insert match report %d: %w", report.PGCRID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO match_report_character (pgcr_id, character_id)
		 VALUES (?, ?)
		 ON CONFLICT (pgcr_id, character_id) DO NOTHING`,
		report.PGCRID, report.CharacterID)
	if err != nil {
		return fmt.Errorf("failed to record match report character %d: %w", report.PGCRID, err)
	}
	return nil
}

// LatestForCharacter returns the newest stored report id for a character and
// mode, or zero when none exists.
func (r *ReportRepository) LatestForCharacter(ctx context.Context, characterID int64, mode int) (int64, error) {
	var pgcrID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT r.pgcr_id FROM match_report r
		 JOIN match_report_character rc ON rc.pgcr_id = r.pgcr_id
		 WHERE rc.character_id = ? AND r.mode = ?
		 ORDER BY r.period DESC LIMIT 1`, characterID, mode).Scan(&pgcrID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return pgcrID, nil
}

// Count returns the number of stored reports. Diagnostics only.
func (r *ReportRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_report`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
