package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/catalog"
	"clan-tracker/internal/domain"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// refreshState tracks where a per-player scan currently is. Transitions are
// logged so a stuck scan can be located from the worker output.
type refreshState int

const (
	statePending refreshState = iota
	stateFetchingProfile
	stateSkipped
	stateScanningCharacters
	stateDiscovering
	stateEnqueueing
	stateDone
)

func (s refreshState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateFetchingProfile:
		return "fetching_profile"
	case stateSkipped:
		return "skipped"
	case stateScanningCharacters:
		return "scanning_characters"
	case stateDiscovering:
		return "discovering"
	case stateEnqueueing:
		return "enqueueing"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// RefreshService drives one player's scan: profile fetch, idle-player skip,
// character sync, per-character discovery, and enqueueing of processing
// jobs. Player bookkeeping (last played, last updated, triumph, activity)
// is committed once the scan completes.
type RefreshService struct {
	api           *bungie.Client
	catalog       *catalog.Catalog
	playerRepo    *repository.PlayerRepository
	characterRepo *repository.CharacterRepository
	discovery     *DiscoveryService
	matches       *queue.Queue
	logger        zerolog.Logger
}

func NewRefreshService(
	api *bungie.Client,
	cat *catalog.Catalog,
	playerRepo *repository.PlayerRepository,
	characterRepo *repository.CharacterRepository,
	discovery *DiscoveryService,
	queues *queue.Queues,
	logger zerolog.Logger,
) *RefreshService {
	return &RefreshService{
		api:           api,
		catalog:       cat,
		playerRepo:    playerRepo,
		characterRepo: characterRepo,
		discovery:     discovery,
		matches:       queues.Matches,
		logger:        logger,
	}
}

// ScanPlayer runs the full refresh cycle for one discovery job. A profile
// fetch failure is a fail-safe no-op: nothing is mutated and no error is
// returned, the player is simply picked up again on the next cycle.
func (s *RefreshService) ScanPlayer(ctx context.Context, job *queue.DiscoveryJob) error {
	state := statePending
	logger := s.logger.With().
		Str("membership_id", job.MembershipID).
		Int("mode", job.Mode).
		Logger()

	player, err := s.playerRepo.GetByMembershipID(ctx, job.MembershipID)
	if err != nil {
		logger.Debug().Err(err).Msg("player not found in database, skipping scan")
		return nil
	}

	state = stateFetchingProfile
	logger.Debug().Stringer("state", state).Msg("fetching profile")

	profile, err := s.api.GetProfile(ctx, job.MembershipType, job.MembershipID)
	if err != nil {
		if errors.Is(err, bungie.ErrPrivateProfile) {
			logger.Debug().Msg("profile is private, nothing to scan")
			return nil
		}
		logger.Warn().Err(err).Msg("failed to fetch profile, scan aborted with no changes")
		return nil
	}

	lastPlayed := profile.Profile.Data.DateLastPlayed

	// Idle players cost nothing: when the source's last-played timestamp
	// has not moved since the last recorded refresh, the character scan
	// is skipped entirely.
	if !player.LastPlayed.IsZero() && !lastPlayed.After(player.LastPlayed) {
		state = stateSkipped
		logger.Debug().Stringer("state", state).Time("last_played", lastPlayed).Msg("player has not played since last refresh")
		return nil
	}

	state = stateScanningCharacters
	logger.Debug().Stringer("state", state).Msg("syncing characters")

	if err := s.syncCharacters(ctx, player.ID, profile); err != nil {
		logger.Warn().Err(err).Msg("failed to sync characters")
		return err
	}

	characters, err := s.characterRepo.ListByPlayer(ctx, job.MembershipID)
	if err != nil {
		return fmt.Errorf("failed to list characters for %s: %w", job.MembershipID, err)
	}

	enqueued := 0
	discoveryFailed := false
	for _, character := range characters {
		state = stateDiscovering
		logger.Debug().Stringer("state", state).Str("char_id", character.CharID).Msg("discovering new matches")

		matchIDs, err := s.discovery.DiscoverNewMatches(ctx, job.MembershipType, job.MembershipID, character.CharID, job.Mode)
		if err != nil {
			// One character failing does not abort the others; the
			// unchanged watermark means these matches are found again
			// next cycle.
			logger.Warn().Err(err).Str("char_id", character.CharID).Msg("discovery failed for character")
			discoveryFailed = true
			continue
		}

		state = stateEnqueueing
		for _, matchID := range matchIDs {
			processingJob := queue.ProcessingJob{
				MembershipID:   job.MembershipID,
				MembershipType: job.MembershipType,
				CharacterID:    character.CharID,
				Mode:           job.Mode,
				MatchID:        matchID,
			}
			if err := queue.PutJSON(ctx, s.matches, processingJob); err != nil {
				return fmt.Errorf("failed to enqueue match %d: %w", matchID, err)
			}
			enqueued++
		}
	}

	s.updateBookkeeping(ctx, player.MembershipID, profile, !discoveryFailed, logger)

	state = stateDone
	logger.Info().Stringer("state", state).Int("enqueued", enqueued).Msg("player scan complete")
	return nil
}

// syncCharacters creates newly discovered characters and raises power levels.
func (s *RefreshService) syncCharacters(ctx context.Context, playerID int64, profile *bungie.ProfileResponse) error {
	for charID, component := range profile.Characters.Data {
		existing, err := s.characterRepo.GetByCharID(ctx, charID)
		if err == nil {
			if component.Light > existing.Power {
				if err := s.characterRepo.UpdatePower(ctx, charID, component.Light); err != nil {
					return err
				}
			}
			continue
		}

		className, err := s.catalog.ClassName(component.ClassHash)
		if err != nil {
			s.logger.Warn().Err(err).Str("char_id", charID).Msg("class not found in catalog")
		}

		character := &domain.Character{
			PlayerID:  playerID,
			CharID:    charID,
			ClassName: className,
			Power:     component.Light,
		}
		if err := s.characterRepo.Create(ctx, character); err != nil {
			return err
		}

		s.logger.Info().
			Str("char_id", charID).
			Str("class", className).
			Int("power", component.Light).
			Msg("new character added")
	}
	return nil
}

// updateBookkeeping stores the player-level denormalized fields. Failures
// here are logged but do not fail the scan; the data refreshes next cycle.
// last_played is only recorded when every character's discovery succeeded:
// it is what the idle-skip compares against, so committing it after a
// partial scan would hide the missed matches until the player plays again.
func (s *RefreshService) updateBookkeeping(ctx context.Context, membershipID string, profile *bungie.ProfileResponse, complete bool, logger zerolog.Logger) {
	now := time.Now()

	if score := profile.ProfileRecords.Data.Score; score > 0 {
		if err := s.playerRepo.UpdateTriumph(ctx, membershipID, score); err != nil {
			logger.Warn().Err(err).Msg("failed to update triumph")
		}
	}

	if !complete {
		logger.Debug().Msg("scan incomplete, leaving last played unchanged for rediscovery")
	} else if err := s.playerRepo.UpdateLastPlayed(ctx, membershipID, profile.Profile.Data.DateLastPlayed); err != nil {
		logger.Warn().Err(err).Msg("failed to update last played")
	}

	if activity, started, ok := currentActivity(profile); ok {
		name, err := s.catalog.ActivityName(activity)
		if err != nil {
			logger.Debug().Err(err).Int64("activity_hash", activity).Msg("current activity not found in catalog")
		} else if err := s.playerRepo.UpdateActivity(ctx, membershipID, name, started, true); err != nil {
			logger.Warn().Err(err).Msg("failed to update activity")
		}
	} else if err := s.playerRepo.UpdateActivity(ctx, membershipID, "", profile.Profile.Data.DateLastPlayed, false); err != nil {
		logger.Warn().Err(err).Msg("failed to update activity")
	}

	if err := s.playerRepo.UpdateLastUpdated(ctx, membershipID, now); err != nil {
		logger.Warn().Err(err).Msg("failed to update last updated")
	}
}

// currentActivity picks the most recently started in-progress activity
// across the player's characters. A zero activity hash means orbit/offline.
func currentActivity(profile *bungie.ProfileResponse) (int64, time.Time, bool) {
	var hash int64
	var started time.Time
	for _, component := range profile.CharacterActivities.Data {
		if component.CurrentActivityHash == 0 {
			continue
		}
		if component.DateActivityStarted.After(started) {
			hash = component.CurrentActivityHash
			started = component.DateActivityStarted
		}
	}
	return hash, started, hash != 0
}
