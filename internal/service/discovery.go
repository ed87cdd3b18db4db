package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/constants"
	"clan-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// DiscoveryService finds match ids a character has played since its
// watermark. Results are always ascending so the processor applies matches
// oldest to newest and the watermark advances monotonically.
type DiscoveryService struct {
	api           *bungie.Client
	characterRepo *repository.CharacterRepository
	logger        zerolog.Logger
}

func NewDiscoveryService(api *bungie.Client, characterRepo *repository.CharacterRepository, logger zerolog.Logger) *DiscoveryService {
	return &DiscoveryService{api: api, characterRepo: characterRepo, logger: logger}
}

// DiscoverNewMatches returns every match id for (character, mode) strictly
// greater than the stored watermark, oldest first. A private profile or an
// empty history yields an empty result, not an error. Source failures
// propagate so the caller can retry; no state is mutated here.
func (s *DiscoveryService) DiscoverNewMatches(ctx context.Context, membershipType int, membershipID, charID string, mode int) ([]int64, error) {
	watermark, err := s.characterRepo.Watermark(ctx, charID)
	if err != nil {
		return nil, fmt.Errorf("failed to load watermark for %s: %w", charID, err)
	}

	logger := s.logger.With().
		Str("membership_id", membershipID).
		Str("char_id", charID).
		Int("mode", mode).
		Int64("watermark", watermark).
		Logger()

	// Cheap check first: if the most recent activity is the watermark,
	// nothing new was played and the full pagination is skipped.
	latest, err := s.api.GetLatestActivity(ctx, membershipType, membershipID, charID, mode)
	if err != nil {
		if errors.Is(err, bungie.ErrPrivateProfile) {
			logger.Debug().Msg("profile is private, no matches to discover")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch latest activity: %w", err)
	}

	if len(latest.Activities) == 0 {
		logger.Debug().Msg("no activities for mode")
		return nil, nil
	}

	latestID, err := parseInstanceID(latest.Activities[0].ActivityDetails.InstanceID)
	if err != nil {
		return nil, err
	}
	if latestID == watermark {
		logger.Debug().Msg("latest activity already processed")
		return nil, nil
	}

	var matches []int64
	for page := 0; ; page++ {
		logger.Debug().Int("page", page).Msg("fetching activity history page")

		history, err := s.api.GetActivityHistory(ctx, membershipType, membershipID, charID, mode, page, constants.ActivityPageSize)
		if err != nil {
			if errors.Is(err, bungie.ErrPrivateProfile) {
				logger.Debug().Msg("profile is private, stopping search")
				return nil, nil
			}
			return nil, fmt.Errorf("failed to fetch activity history page %d: %w", page, err)
		}

		if len(history.Activities) == 0 {
			break
		}

		newOnPage := 0
		for _, activity := range history.Activities {
			id, err := parseInstanceID(activity.ActivityDetails.InstanceID)
			if err != nil {
				logger.Warn().Err(err).Msg("skipping activity with malformed instance id")
				continue
			}
			if id > watermark {
				matches = append(matches, id)
				newOnPage++
			}
		}

		// A short page means the history is exhausted; a page with any
		// already-processed id means the watermark boundary was reached.
		if len(history.Activities) < constants.ActivityPageSize || newOnPage < len(history.Activities) {
			logger.Debug().Int("page", page).Msg("watermark boundary or end of history reached")
			break
		}
	}

	if len(matches) == 0 {
		return nil, nil
	}

	// Oldest unprocessed first.
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })

	logger.Debug().Int("count", len(matches)).Int64("oldest", matches[0]).Int64("newest", matches[len(matches)-1]).Msg("new matches discovered")
	return matches, nil
}

func parseInstanceID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed instance id %q: %w", raw, err)
	}
	return id, nil
}
