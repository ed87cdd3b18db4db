package service

import (
	"context"
	"fmt"

	"clan-tracker/internal/bungie"
	"clan-tracker/internal/config"
	"clan-tracker/internal/constants"
	"clan-tracker/internal/domain"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RosterService keeps the tracked player set in sync with the clan roster:
// adding new members, removing departed ones, and seeding the discovery
// queue for a full scan.
type RosterService struct {
	api        *bungie.Client
	cfg        *config.Config
	playerRepo *repository.PlayerRepository
	discovery  *queue.Queue
	logger     zerolog.Logger
}

func NewRosterService(api *bungie.Client, cfg *config.Config, playerRepo *repository.PlayerRepository, queues *queue.Queues, logger zerolog.Logger) *RosterService {
	return &RosterService{api: api, cfg: cfg, playerRepo: playerRepo, discovery: queues.Discovery, logger: logger}
}

// SyncMembers fetches the current roster and creates any member not yet
// tracked. Existing members are untouched.
func (s *RosterService) SyncMembers(ctx context.Context) error {
	roster, err := s.api.GetClanRoster(ctx, s.cfg.ClanID)
	if err != nil {
		return fmt.Errorf("failed to fetch clan roster: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.RosterSyncWorkers)
	for _, member := range roster.Results {
		player := &domain.Player{
			MembershipID:   member.DestinyUserInfo.MembershipID,
			MembershipType: member.DestinyUserInfo.MembershipType,
			Name:           member.DestinyUserInfo.DisplayName,
			JoinDate:       member.JoinDate,
		}
		g.Go(func() error {
			if err := s.playerRepo.Create(gctx, player); err != nil {
				// One bad row should not abort the rest of the roster.
				s.logger.Warn().Err(err).Str("membership_id", player.MembershipID).Msg("failed to add clan member")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info().Int("roster_size", len(roster.Results)).Msg("clan roster synced")
	return nil
}

// RemoveFormerMembers deletes players present in the database but absent
// from the live roster, cascading through their characters and records.
func (s *RosterService) RemoveFormerMembers(ctx context.Context) error {
	roster, err := s.api.GetClanRoster(ctx, s.cfg.ClanID)
	if err != nil {
		return fmt.Errorf("failed to fetch clan roster: %w", err)
	}

	current := make(map[string]struct{}, len(roster.Results))
	for _, member := range roster.Results {
		current[member.DestinyUserInfo.MembershipID] = struct{}{}
	}

	tracked, err := s.playerRepo.ListMembershipIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked players: %w", err)
	}

	for _, membershipID := range tracked {
		if _, ok := current[membershipID]; ok {
			continue
		}

		s.logger.Warn().Str("membership_id", membershipID).Msg("member has left the clan")
		if err := s.playerRepo.Delete(ctx, membershipID); err != nil {
			return err
		}
	}
	return nil
}

// PublishDiscoveryJobs enqueues one discovery job per (member, tracked mode)
// pair, feeding the collector workers.
func (s *RosterService) PublishDiscoveryJobs(ctx context.Context) error {
	roster, err := s.api.GetClanRoster(ctx, s.cfg.ClanID)
	if err != nil {
		return fmt.Errorf("failed to fetch clan roster: %w", err)
	}

	published := 0
	for _, mode := range constants.TrackedModes {
		for _, member := range roster.Results {
			job := queue.DiscoveryJob{
				MembershipID:   member.DestinyUserInfo.MembershipID,
				MembershipType: member.DestinyUserInfo.MembershipType,
				Mode:           mode,
			}
			if err := queue.PutJSON(ctx, s.discovery, job); err != nil {
				return fmt.Errorf("failed to enqueue discovery job for %s: %w", job.MembershipID, err)
			}
			published++
		}
	}

	s.logger.Info().Int("jobs", published).Msg("discovery jobs published")
	return nil
}
