package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"rift-analytics/internal/middleware"
	"rift-analytics/internal/riot"
	"rift-analytics/internal/service"
	"strconv"

	"github.com/rs/zerolog"
)

// Server exposes the analytics and refresh operations over a small JSON API.
type Server struct {
	analytics *service.AnalyticsService
	liveGames *service.LiveGameService
	refresh   *service.RefreshService
	retry     *service.RetryCoordinator
	logger    zerolog.Logger
}

func New(analytics *service.AnalyticsService, liveGames *service.LiveGameService, refresh *service.RefreshService, retry *service.RetryCoordinator, logger zerolog.Logger) *Server {
	return &Server{
		analytics: analytics,
		liveGames: liveGames,
		refresh:   refresh,
		retry:     retry,
		logger:    logger,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/champions/{championID}/winrates", s.handleWinRates)
	mux.HandleFunc("GET /api/champions/{championID}/builds", s.handleBuilds)
	mux.HandleFunc("GET /api/champions/{championID}/matchups", s.handleMatchups)
	mux.HandleFunc("POST /api/livegames/analyze", s.handleAnalyzeLiveGame)
	mux.HandleFunc("POST /api/summoners/{puuid}/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/patches/{version}/activate", s.handleActivatePatch)
	mux.HandleFunc("POST /api/jobs/retry", s.handleRetryRun)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWinRates(w http.ResponseWriter, r *http.Request) {
	championID, err := strconv.Atoi(r.PathValue("championID"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "champion id must be numeric")
		return
	}
	stats, err := s.analytics.GetWinRates(r.Context(), championID, filterFromQuery(r))
	if err != nil {
		s.logger.Error().Err(err).Int("champion_id", championID).Msg("win rate lookup failed")
		s.writeError(w, r, http.StatusInternalServerError, "failed to compute win rates")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	championID, err := strconv.Atoi(r.PathValue("championID"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "champion id must be numeric")
		return
	}

	stats, err := s.analytics.GetChampionBuilds(r.Context(), championID, filterFromQuery(r))
	if err != nil {
		s.logger.Error().Err(err).Int("champion_id", championID).Msg("build lookup failed")
		s.writeError(w, r, http.StatusInternalServerError, "failed to compute builds")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMatchups(w http.ResponseWriter, r *http.Request) {
	championID, err := strconv.Atoi(r.PathValue("championID"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "champion id must be numeric")
		return
	}

	stats, err := s.analytics.GetChampionMatchups(r.Context(), championID, filterFromQuery(r))
	if err != nil {
		s.logger.Error().Err(err).Int("champion_id", championID).Msg("matchup lookup failed")
		s.writeError(w, r, http.StatusInternalServerError, "failed to compute matchups")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type analyzeLiveGameRequest struct {
	PlatformRegion string                    `json:"platformRegion"`
	Participants   []service.LiveParticipant `json:"participants"`
}

func (s *Server) handleAnalyzeLiveGame(w http.ResponseWriter, r *http.Request) {
	var req analyzeLiveGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Participants) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "participants are required")
		return
	}

	analysis, err := s.liveGames.AnalyzeLiveGame(r.Context(), req.PlatformRegion, req.Participants)
	if err != nil {
		s.logger.Error().Err(err).Str("platform_region", req.PlatformRegion).Msg("live game analysis failed")
		s.writeError(w, r, http.StatusInternalServerError, "failed to analyze live game")
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	puuid := r.PathValue("puuid")
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		s.writeError(w, r, http.StatusBadRequest, "platform query parameter is required")
		return
	}

	result, err := s.refresh.RefreshSummoner(r.Context(), platform, puuid)
	if err != nil {
		if errors.Is(err, riot.ErrNotFound) {
			s.writeError(w, r, http.StatusNotFound, "summoner not found")
			return
		}
		s.logger.Error().Err(err).Str("puuid", puuid).Msg("summoner refresh failed")
		s.writeError(w, r, http.StatusInternalServerError, "failed to refresh summoner")
		return
	}
	status := http.StatusOK
	if result.AlreadyRunning {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, result)
}

func (s *Server) handleActivatePatch(w http.ResponseWriter, r *http.Request) {
	version := r.PathValue("version")
	if err := s.analytics.ActivatePatch(r.Context(), version); err != nil {
		s.logger.Error().Err(err).Str("patch", version).Msg("patch activation failed")
		s.writeError(w, r, http.StatusInternalServerError, "failed to activate patch")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"activePatch": version})
}

func (s *Server) handleRetryRun(w http.ResponseWriter, r *http.Request) {
	if err := s.retry.RunOnce(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("manual retry run failed")
		s.writeError(w, r, http.StatusInternalServerError, "retry run failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func filterFromQuery(r *http.Request) service.WinRateFilter {
	return service.WinRateFilter{
		RankTier: r.URL.Query().Get("tier"),
		Region:   r.URL.Query().Get("region"),
		Role:     r.URL.Query().Get("role"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := map[string]string{"error": message}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		resp["requestId"] = id
	}
	s.writeJSON(w, status, resp)
}
