package repository

import (
	"context"
	"database/sql"
	"fmt"

	"clan-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type CharacterRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewCharacterRepository(sqlDB *sql.DB, logger zerolog.Logger) *CharacterRepository {
	return &CharacterRepository{db: sqlDB, logger: logger}
}

func (r *CharacterRepository) GetByCharID(ctx context.Context, charID string) (*domain.Character, error) {
	var c domain.Character
	err := r.db.QueryRowContext(ctx,
		`SELECT id, player_id, char_id, class_name, power, last_match_id
		 FROM character WHERE char_id = ?`, charID).
		Scan(&c.ID, &c.PlayerID, &c.CharID, &c.ClassName, &c.Power, &c.LastMatchID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CharacterRepository) ListByPlayer(ctx context.Context, membershipID string) ([]domain.Character, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.player_id, c.char_id, c.class_name, c.power, c.last_match_id
		 FROM character c
		 JOIN player p ON c.player_id = p.id
		 WHERE p.membership_id = ?`, membershipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var characters []domain.Character
	for rows.Next() {
		var c domain.Character
		if err := rows.Scan(&c.ID, &c.PlayerID, &c.CharID, &c.ClassName, &c.Power, &c.LastMatchID); err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}
	return characters, rows.Err()
}

// Create registers a newly discovered character with the watermark at its
// "none processed" sentinel.
func (r *CharacterRepository) Create(ctx context.Context, character *domain.Character) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO character (player_id, char_id, class_name, power, last_match_id)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT (char_id) DO NOTHING`,
		character.PlayerID, character.CharID, character.ClassName, character.Power)
	if err != nil {
		return fmt.Errorf("failed to insert character %s: %w", character.CharID, err)
	}
	return nil
}

// UpdatePower raises the stored power level. Lower readings are ignored.
func (r *CharacterRepository) UpdatePower(ctx context.Context, charID string, power int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE character SET power = ? WHERE char_id = ? AND power < ?`,
		power, charID, power)
	if err != nil {
		return fmt.Errorf("failed to update power for %s: %w", charID, err)
	}
	return nil
}

// Watermark returns the highest fully processed match id for a character.
func (r *CharacterRepository) Watermark(ctx context.Context, charID string) (int64, error) {
	var watermark int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_match_id FROM character WHERE char_id = ?`, charID).Scan(&watermark)
	if err != nil {
		return 0, err
	}
	return watermark, nil
}

// AdvanceWatermarkTx moves the watermark forward inside the caller's
// transaction. The guard in the WHERE clause makes the write monotonic: a
// stale or reordered update can never move the watermark backwards.
func (r *CharacterRepository) AdvanceWatermarkTx(ctx context.Context, tx *sql.Tx, charID string, matchID int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE character SET last_match_id = ? WHERE char_id = ? AND last_match_id < ?`,
		matchID, charID, matchID)
	if err != nil {
		return fmt.Errorf("failed to advance watermark for %s: %w", charID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Debug().
			Str("char_id", charID).
			Int64("match_id", matchID).
			Msg("watermark already at or past match id")
	}
	return nil
}
