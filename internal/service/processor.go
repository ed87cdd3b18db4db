package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/catalog"
	"clan-tracker/internal/domain"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// ProcessorService consumes one (player, character, match) job: fetch the
// full match report, extract weapon kills for the target character, persist
// everything, then advance the character's watermark. All writes for one
// match commit in a single transaction so a failure leaves the watermark
// untouched and the match rediscoverable.
type ProcessorService struct {
	api           *bungie.Client
	catalog       *catalog.Catalog
	db            *sql.DB
	characterRepo *repository.CharacterRepository
	weaponRepo    *repository.WeaponRepository
	killRepo      *repository.KillRepository
	reportRepo    *repository.ReportRepository
	logger        zerolog.Logger
}

func NewProcessorService(
	api *bungie.Client,
	cat *catalog.Catalog,
	sqlDB *sql.DB,
	characterRepo *repository.CharacterRepository,
	weaponRepo *repository.WeaponRepository,
	killRepo *repository.KillRepository,
	reportRepo *repository.ReportRepository,
	logger zerolog.Logger,
) *ProcessorService {
	return &ProcessorService{
		api:           api,
		catalog:       cat,
		db:            sqlDB,
		characterRepo: characterRepo,
		weaponRepo:    weaponRepo,
		killRepo:      killRepo,
		reportRepo:    reportRepo,
		logger:        logger,
	}
}

// ProcessMatch handles one queue job. A nil return means the job is done and
// must not be redelivered, including the drop cases (unknown character,
// permanently unavailable report). A non-nil return means nothing was
// committed and the job is safe to retry.
func (s *ProcessorService) ProcessMatch(ctx context.Context, job *queue.ProcessingJob) error {
	logger := s.logger.With().
		Str("membership_id", job.MembershipID).
		Str("char_id", job.CharacterID).
		Int("mode", job.Mode).
		Int64("match_id", job.MatchID).
		Logger()

	character, err := s.characterRepo.GetByCharID(ctx, job.CharacterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Warn().Msg("character not found in database, dropping job")
			return nil
		}
		return fmt.Errorf("failed to load character: %w", err)
	}

	report, raw, err := s.api.GetPostGameReport(ctx, job.MatchID)
	if err != nil {
		var apiErr *bungie.APIError
		if errors.As(err, &apiErr) {
			// The report is presumed gone upstream. Not retried.
			logger.Warn().Err(err).Msg("failed to retrieve match report, dropping job")
			return nil
		}
		return fmt.Errorf("failed to fetch match report: %w", err)
	}

	// A redelivered job whose report is already stored must not insert
	// kill rows again. Advancing the watermark is still correct here:
	// the first delivery recorded everything.
	recorded, err := s.reportRepo.Exists(ctx, job.MatchID, character.ID)
	if err != nil {
		return err
	}
	if recorded {
		logger.Debug().Msg("match already recorded, advancing watermark only")
		return s.commitMatch(ctx, character, job.MatchID, nil, nil)
	}

	kills := s.extractKills(ctx, report, character, logger)

	// Archive the payload as received. The typed struct only models the
	// fields the extractor reads.
	stored := &domain.MatchReport{
		PGCRID:      job.MatchID,
		CharacterID: character.ID,
		Mode:        job.Mode,
		Period:      report.Period,
		Data:        string(raw),
	}

	if err := s.commitMatch(ctx, character, job.MatchID, stored, kills); err != nil {
		return err
	}

	logger.Info().Int("weapon_kills", len(kills)).Msg("match processed")
	return nil
}

// extractKills pulls the weapon-kill facts for the target character out of
// the report. A missing entry or missing weapons substructure simply yields
// zero facts. A weapon unknown to the catalog is skipped, never fatal.
func (s *ProcessorService) extractKills(ctx context.Context, report *bungie.PostGameReport, character *domain.Character, logger zerolog.Logger) []domain.WeaponKillRecord {
	var kills []domain.WeaponKillRecord

	for _, entry := range report.Entries {
		if entry.CharacterID != character.CharID {
			continue
		}

		if len(entry.Extended.Weapons) == 0 {
			logger.Debug().Msg("no weapons in report entry")
			return nil
		}

		for _, usage := range entry.Extended.Weapons {
			killCount := int(usage.Values.UniqueWeaponKills.Basic.Value)

			// Some reports list weapons that scored nothing. Those
			// never become rows.
			if killCount <= 0 {
				continue
			}

			def, err := s.catalog.Weapon(usage.ReferenceID)
			if err != nil {
				logger.Warn().
					Err(err).
					Int64("reference_id", usage.ReferenceID).
					Msg("weapon not found in catalog, skipping kill record")
				continue
			}

			weapon, err := s.weaponRepo.Ensure(ctx, &domain.Weapon{
				WeaponID:   def.Hash,
				Name:       def.Name,
				DamageType: def.DamageType,
				GunType:    def.GunType,
			})
			if err != nil {
				logger.Warn().Err(err).Int64("reference_id", usage.ReferenceID).Msg("failed to upsert weapon, skipping kill record")
				continue
			}

			kills = append(kills, domain.WeaponKillRecord{
				CharacterID: character.ID,
				WeaponID:    weapon.ID,
				Kills:       killCount,
				MatchTime:   report.Period,
			})
		}
		break
	}

	return kills
}

// commitMatch writes the report, its kill rows and the watermark advance in
// one transaction. The watermark moves only after every kill row for the
// match is in.
func (s *ProcessorService) commitMatch(ctx context.Context, character *domain.Character, matchID int64, report *domain.MatchReport, kills []domain.WeaponKillRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if report != nil {
		if err := s.reportRepo.InsertTx(ctx, tx, report); err != nil {
			return err
		}
	}

	for i := range kills {
		if err := s.killRepo.InsertTx(ctx, tx, &kills[i]); err != nil {
			return err
		}
	}

	if err := s.characterRepo.AdvanceWatermarkTx(ctx, tx, character.CharID, matchID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match %d: %w", matchID, err)
	}
	return nil
}

// ReclassifyWeapons refreshes catalog rows that were stored while their
// definition was still classified upstream.
func (s *ProcessorService) ReclassifyWeapons(ctx context.Context) error {
	weapons, err := s.weaponRepo.ListClassified(ctx)
	if err != nil {
		return fmt.Errorf("failed to list classified weapons: %w", err)
	}

	for _, weapon := range weapons {
		def, err := s.catalog.Weapon(weapon.WeaponID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("weapon_id", weapon.WeaponID).Msg("classified weapon still unknown to catalog")
			continue
		}
		if def.Name == "Classified" {
			continue
		}

		s.logger.Info().
			Int64("weapon_id", weapon.WeaponID).
			Str("name", def.Name).
			Msg("weapon no longer classified, updating")

		if err := s.weaponRepo.UpdateDefinition(ctx, weapon.WeaponID, def.Name, def.GunType); err != nil {
			return err
		}
	}
	return nil
}
