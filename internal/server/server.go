package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"clan-tracker/internal/constants"
	"clan-tracker/internal/queue"
	"clan-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// Server exposes the aggregation read API. It only reflects what ingestion
// has committed; staleness is expected and not an error.
type Server struct {
	playerRepo *repository.PlayerRepository
	killRepo   *repository.KillRepository
	reportRepo *repository.ReportRepository
	discovery  *queue.Queue
	matches    *queue.Queue
	logger     zerolog.Logger
}

func New(
	playerRepo *repository.PlayerRepository,
	killRepo *repository.KillRepository,
	reportRepo *repository.ReportRepository,
	queues *queue.Queues,
	logger zerolog.Logger,
) *Server {
	return &Server{
		playerRepo: playerRepo,
		killRepo:   killRepo,
		reportRepo: reportRepo,
		discovery:  queues.Discovery,
		matches:    queues.Matches,
		logger:     logger,
	}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/roster", s.handleRoster)
	mux.HandleFunc("GET /api/players/kills", s.handleAllPlayerKills)
	mux.HandleFunc("GET /api/player/{membershipID}/weapons", s.handlePlayerWeapons)
	mux.HandleFunc("GET /api/weapons/top", s.handleTopWeapons)
	mux.HandleFunc("GET /api/service/info", s.handleServiceInfo)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// days parses the optional ?days= window. Zero means all time.
func days(r *http.Request) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

type rosterEntry struct {
	MembershipID     string `json:"membership_id"`
	Name             string `json:"name"`
	Triumph          int64  `json:"triumph"`
	LastActivity     string `json:"last_activity"`
	LastActivityTime string `json:"last_activity_time,omitempty"`
	Online           bool   `json:"online"`
	JoinDate         string `json:"join_date,omitempty"`
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	players, err := s.playerRepo.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load roster")
		s.writeError(w, http.StatusInternalServerError, "failed to load roster")
		return
	}

	entries := make([]rosterEntry, 0, len(players))
	for _, p := range players {
		entry := rosterEntry{
			MembershipID: p.MembershipID,
			Name:         p.Name,
			Triumph:      p.Triumph,
			LastActivity: p.LastActivity,
			Online:       p.Online,
		}
		if !p.LastActivityTime.IsZero() {
			entry.LastActivityTime = p.LastActivityTime.UTC().Format(time.RFC3339)
		}
		if !p.JoinDate.IsZero() {
			entry.JoinDate = p.JoinDate.UTC().Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}

	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAllPlayerKills(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	kills, err := s.killRepo.AllPlayerKills(ctx, days(r))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load player kills")
		s.writeError(w, http.StatusInternalServerError, "failed to load player kills")
		return
	}
	if kills == nil {
		kills = []repository.PlayerKills{}
	}

	s.writeJSON(w, http.StatusOK, kills)
}

func (s *Server) handlePlayerWeapons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	membershipID := r.PathValue("membershipID")
	if membershipID == "" {
		s.writeError(w, http.StatusBadRequest, "membership id is required")
		return
	}

	kills, err := s.killRepo.PlayerWeaponKills(ctx, membershipID, days(r))
	if err != nil {
		s.logger.Error().Err(err).Str("membership_id", membershipID).Msg("failed to load player weapons")
		s.writeError(w, http.StatusInternalServerError, "failed to load player weapons")
		return
	}
	if kills == nil {
		kills = []repository.WeaponKills{}
	}

	s.writeJSON(w, http.StatusOK, kills)
}

func (s *Server) handleTopWeapons(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	limit := 25
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	kills, err := s.killRepo.TopWeapons(ctx, days(r), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load top weapons")
		s.writeError(w, http.StatusInternalServerError, "failed to load top weapons")
		return
	}
	if kills == nil {
		kills = []repository.WeaponKills{}
	}

	s.writeJSON(w, http.StatusOK, kills)
}

type serviceInfo struct {
	TotalKills     int64 `json:"total_kills"`
	StoredReports  int64 `json:"stored_reports"`
	DiscoveryQueue int64 `json:"discovery_queue"`
	MatchQueue     int64 `json:"match_queue"`
}

func (s *Server) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	info := serviceInfo{}

	var err error
	if info.TotalKills, err = s.killRepo.TotalKills(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to count kills")
	}
	if info.StoredReports, err = s.reportRepo.Count(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to count reports")
	}
	if info.DiscoveryQueue, err = s.discovery.Size(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to read discovery queue size")
	}
	if info.MatchQueue, err = s.matches.Size(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to read match queue size")
	}

	s.writeJSON(w, http.StatusOK, info)
}
