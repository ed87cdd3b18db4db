package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clan-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type KillRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewKillRepository(sqlDB *sql.DB, logger zerolog.Logger) *KillRepository {
	return &KillRepository{db: sqlDB, logger: logger}
}

// InsertTx appends one kill fact inside the caller's transaction. Rows are
// append-only: aggregation happens at query time, never by updating facts.
func (r *KillRepository) InsertTx(ctx context.Context, tx *sql.Tx, record *domain.WeaponKillRecord) error {
	if record.Kills <= 0 {
		return fmt.Errorf("refusing to insert weapon kill record with kills=%d", record.Kills)
	}

	if record.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate kill record id: %w", err)
		}
		record.ID = id
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO weapon_kill (id, character_id, weapon_id, kills, match_time)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID, record.CharacterID, record.WeaponID, record.Kills, record.MatchTime)
	if err != nil {
		return fmt.Errorf("failed to insert weapon kill record: %w", err)
	}
	return nil
}

// WeaponKills is one row of a grouped-sum aggregation.
type WeaponKills struct {
	WeaponID   int64  `json:"weapon_id"`
	Name       string `json:"name"`
	DamageType string `json:"damage_type"`
	GunType    string `json:"gun_type"`
	TotalKills int64  `json:"total_kills"`
}

const weaponKillsSelect = `
	SELECT w.weapon_id, w.name, w.damage_type, w.gun_type, SUM(k.kills) AS total_kills
	FROM weapon_kill k
	JOIN weapon w ON k.weapon_id = w.id`

func (r *KillRepository) scanWeaponKills(rows *sql.Rows) ([]WeaponKills, error) {
	defer rows.Close()

	var results []WeaponKills
	for rows.Next() {
		var wk WeaponKills
		if err := rows.Scan(&wk.WeaponID, &wk.Name, &wk.DamageType, &wk.GunType, &wk.TotalKills); err != nil {
			return nil, err
		}
		results = append(results, wk)
	}
	return results, rows.Err()
}

// TopWeapons sums kills per weapon across the whole clan. days <= 0 means
// all time.
func (r *KillRepository) TopWeapons(ctx context.Context, days, limit int) ([]WeaponKills, error) {
	query := weaponKillsSelect
	args := []any{}
	if days > 0 {
		query += ` WHERE k.match_time >= ?`
		args = append(args, time.Now().AddDate(0, 0, -days))
	}
	query += ` GROUP BY w.id ORDER BY total_kills DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top weapons: %w", err)
	}
	return r.scanWeaponKills(rows)
}

// PlayerWeaponKills sums kills per weapon for one player.
func (r *KillRepository) PlayerWeaponKills(ctx context.Context, membershipID string, days int) ([]WeaponKills, error) {
	query := weaponKillsSelect + `
	JOIN character c ON k.character_id = c.id
	JOIN player p ON c.player_id = p.id
	WHERE p.membership_id = ?`
	args := []any{membershipID}
	if days > 0 {
		query += ` AND k.match_time >= ?`
		args = append(args, time.Now().AddDate(0, 0, -days))
	}
	query += ` GROUP BY w.id ORDER BY total_kills DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query player weapon kills: %w", err)
	}
	return r.scanWeaponKills(rows)
}

// PlayerKills is a per-player clan-wide kill total.
type PlayerKills struct {
	MembershipID string `json:"membership_id"`
	Name         string `json:"name"`
	TotalKills   int64  `json:"total_kills"`
}

func (r *KillRepository) AllPlayerKills(ctx context.Context, days int) ([]PlayerKills, error) {
	query := `
	SELECT p.membership_id, p.name, SUM(k.kills) AS total_kills
	FROM weapon_kill k
	JOIN character c ON k.character_id = c.id
	JOIN player p ON c.player_id = p.id`
	args := []any{}
	if days > 0 {
		query += ` WHERE k.match_time >= ?`
		args = append(args, time.Now().AddDate(0, 0, -days))
	}
	query += ` GROUP BY p.id ORDER BY total_kills DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query player kills: %w", err)
	}
	defer rows.Close()

	var results []PlayerKills
	for rows.Next() {
		var pk PlayerKills
		if err := rows.Scan(&pk.MembershipID, &pk.Name, &pk.TotalKills); err != nil {
			return nil, err
		}
		results = append(results, pk)
	}
	return results, rows.Err()
}

// TotalKills sums every recorded kill across the clan.
func (r *KillRepository) TotalKills(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT SUM(kills) FROM weapon_kill`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to query total kills: %w", err)
	}
	return total.Int64, nil
}

// CountByCharacterAndTime reports how many kill rows exist for a character
// at an exact match time. Used by tests asserting idempotent reprocessing.
func (r *KillRepository) CountByCharacter(ctx context.Context, characterID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weapon_kill WHERE character_id = ?`, characterID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
