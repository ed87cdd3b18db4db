package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clan-tracker/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type WeaponRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewWeaponRepository(sqlDB *sql.DB, logger zerolog.Logger) *WeaponRepository {
	return &WeaponRepository{db: sqlDB, logger: logger}
}

func (r *WeaponRepository) GetByWeaponID(ctx context.Context, weaponID int64) (*domain.Weapon, error) {
	var w domain.Weapon
	err := r.db.QueryRowContext(ctx,
		`SELECT id, weapon_id, name, damage_type, gun_type FROM weapon WHERE weapon_id = ?`, weaponID).
		Scan(&w.ID, &w.WeaponID, &w.Name, &w.DamageType, &w.GunType)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Ensure returns the catalog row for a weapon, creating it the first time a
// previously unseen weapon produces a kill. Two processors may race here;
// the loser of the unique-constraint race falls back to a re-read instead of
// failing the match.
func (r *WeaponRepository) Ensure(ctx context.Context, weapon *domain.Weapon) (*domain.Weapon, error) {
	existing, err := r.GetByWeaponID(ctx, weapon.WeaponID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up weapon %d: %w", weapon.WeaponID, err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO weapon (weapon_id, name, damage_type, gun_type) VALUES (?, ?, ?, ?)`,
		weapon.WeaponID, weapon.Name, weapon.DamageType, weapon.GunType)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			// Concurrent insert won the race.
			r.logger.Debug().Int64("weapon_id", weapon.WeaponID).Msg("weapon inserted concurrently, re-reading")
			return r.GetByWeaponID(ctx, weapon.WeaponID)
		}
		return nil, fmt.Errorf("failed to insert weapon %d: %w", weapon.WeaponID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Int64("weapon_id", weapon.WeaponID).
		Str("name", weapon.Name).
		Str("gun_type", weapon.GunType).
		Msg("new weapon added to catalog")

	created := *weapon
	created.ID = id
	return &created, nil
}

// ListClassified returns weapons stored while their definition was still
// classified upstream.
func (r *WeaponRepository) ListClassified(ctx context.Context) ([]domain.Weapon, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, weapon_id, name, damage_type, gun_type FROM weapon WHERE name = 'Classified'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weapons []domain.Weapon
	for rows.Next() {
		var w domain.Weapon
		if err := rows.Scan(&w.ID, &w.WeaponID, &w.Name, &w.DamageType, &w.GunType); err != nil {
			return nil, err
		}
		weapons = append(weapons, w)
	}
	return weapons, rows.Err()
}

// UpdateDefinition refreshes name and subtype once the catalog declassifies
// a weapon.
func (r *WeaponRepository) UpdateDefinition(ctx context.Context, weaponID int64, name, gunType string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE weapon SET name = ?, gun_type = ? WHERE weapon_id = ?`, name, gunType, weaponID)
	if err != nil {
		return fmt.Errorf("failed to update weapon %d: %w", weaponID, err)
	}
	return nil
}
