package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clan-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, logger: logger}
}

func scanPlayer(row *sql.Row) (*domain.Player, error) {
	var p domain.Player
	var lastActivityTime, lastPlayed, lastUpdated, joinDate sql.NullTime
	err := row.Scan(&p.ID, &p.MembershipID, &p.MembershipType, &p.Name, &p.Triumph,
		&p.LastActivity, &lastActivityTime, &lastPlayed, &lastUpdated, &p.Online, &joinDate)
	if err != nil {
		return nil, err
	}
	p.LastActivityTime = lastActivityTime.Time
	p.LastPlayed = lastPlayed.Time
	p.LastUpdated = lastUpdated.Time
	p.JoinDate = joinDate.Time
	return &p, nil
}

const playerColumns = `id, membership_id, membership_type, name, triumph,
	last_activity, last_activity_time, last_played, last_updated, online, join_date`

func (r *PlayerRepository) GetByMembershipID(ctx context.Context, membershipID string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM player WHERE membership_id = ?`, membershipID)
	return scanPlayer(row)
}

// Create inserts a newly observed clan member. Existing members are left
// untouched.
func (r *PlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO player (membership_id, membership_type, name, join_date)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (membership_id) DO NOTHING`,
		player.MembershipID, player.MembershipType, player.Name, player.JoinDate)
	if err != nil {
		return fmt.Errorf("failed to insert player %s: %w", player.MembershipID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		r.logger.Info().
			Str("membership_id", player.MembershipID).
			Str("name", player.Name).
			Msg("new clan member added")
	}
	return nil
}

func (r *PlayerRepository) List(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM player ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		var lastActivityTime, lastPlayed, lastUpdated, joinDate sql.NullTime
		err := rows.Scan(&p.ID, &p.MembershipID, &p.MembershipType, &p.Name, &p.Triumph,
			&p.LastActivity, &lastActivityTime, &lastPlayed, &lastUpdated, &p.Online, &joinDate)
		if err != nil {
			return nil, err
		}
		p.LastActivityTime = lastActivityTime.Time
		p.LastPlayed = lastPlayed.Time
		p.LastUpdated = lastUpdated.Time
		p.JoinDate = joinDate.Time
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *PlayerRepository) ListMembershipIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT membership_id FROM player`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTriumph overwrites the stored triumph score only when the new value
// is larger. The score is monotonically non-decreasing by contract.
func (r *PlayerRepository) UpdateTriumph(ctx context.Context, membershipID string, triumph int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE player SET triumph = ? WHERE membership_id = ? AND triumph < ?`,
		triumph, membershipID, triumph)
	if err != nil {
		return fmt.Errorf("failed to update triumph for %s: %w", membershipID, err)
	}
	return nil
}

func (r *PlayerRepository) UpdateActivity(ctx context.Context, membershipID, activity string, activityTime time.Time, online bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE player SET last_activity = ?, last_activity_time = ?, online = ? WHERE membership_id = ?`,
		activity, activityTime, online, membershipID)
	if err != nil {
		return fmt.Errorf("failed to update activity for %s: %w", membershipID, err)
	}
	return nil
}

func (r *PlayerRepository) UpdateLastPlayed(ctx context.Context, membershipID string, lastPlayed time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE player SET last_played = ? WHERE membership_id = ?`, lastPlayed, membershipID)
	if err != nil {
		return fmt.Errorf("failed to update last played for %s: %w", membershipID, err)
	}
	return nil
}

func (r *PlayerRepository) UpdateLastUpdated(ctx context.Context, membershipID string, lastUpdated time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE player SET last_updated = ? WHERE membership_id = ?`, lastUpdated, membershipID)
	if err != nil {
		return fmt.Errorf("failed to update last updated for %s: %w", membershipID, err)
	}
	return nil
}

// Delete removes a departed member and everything hanging off them. The
// deletes run inside one transaction in dependency order: kill rows and
// match reports first, then characters, then the player row.
func (r *PlayerRepository) Delete(ctx context.Context, membershipID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM weapon_kill WHERE character_id IN
			(SELECT c.id FROM character c JOIN player p ON c.player_id = p.id WHERE p.membership_id = ?)`,
		`DELETE FROM match_report_character WHERE character_id IN
			(SELECT c.id FROM character c JOIN player p ON c.player_id = p.id WHERE p.membership_id = ?)`,
		`DELETE FROM character WHERE player_id IN
			(SELECT id FROM player WHERE membership_id = ?)`,
		`DELETE FROM player WHERE membership_id = ?`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, membershipID); err != nil {
			return fmt.Errorf("failed to delete player %s: %w", membershipID, err)
		}
	}

	// Report payloads are shared between characters; drop only the ones no
	// remaining character references.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM match_report WHERE pgcr_id NOT IN
			(SELECT pgcr_id FROM match_report_character)`); err != nil {
		return fmt.Errorf("failed to prune orphaned match reports: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit player delete: %w", err)
	}

	r.logger.Warn().Str("membership_id", membershipID).Msg("player deleted from database")
	return nil
}
