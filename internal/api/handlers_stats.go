package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wallet-cards/internal/logging"
	"github.com/wallet-cards/internal/normalize"
	"github.com/wallet-cards/internal/types"
)

const (
	defaultLeaderboardLimit = 100
	maxLeaderboardLimit     = 200
)

// playerStatsRequest is the POST /api/player-stats body.
type playerStatsRequest struct {
	Wallet                    string `json:"wallet"`
	IncludeCurrentWeekProject bool   `json:"includeCurrentWeekProjected"`
}

// playerStatsResponse always carries a stats field; nil means the wallet
// has no indexed events, which is distinct from an error.
type playerStatsResponse struct {
	Stats                     *types.PlayerStats          `json:"stats"`
	CurrentWeekProjected      *types.WeeklyPoolProjection `json:"currentWeekProjected"`
	CurrentWeekProjectedError *string                     `json:"currentWeekProjectedError"`
}

// handlePlayerStats handles POST /api/player-stats - single wallet lookup.
func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	var body playerStatsRequest
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	wallet := strings.ToLower(strings.TrimSpace(body.Wallet))
	if !normalize.ValidWallet(wallet) {
		respondError(w, http.StatusBadRequest, "Invalid wallet format")
		return
	}

	stats, err := s.stats.FetchWalletStats(r.Context(), wallet)
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	response := playerStatsResponse{Stats: stats}

	// The projection is best-effort: an estimator failure rides along as a
	// message next to the successful stats payload.
	if body.IncludeCurrentWeekProject && stats != nil {
		projection, err := s.estimator.EstimateCurrentWeek(r.Context(), wallet)
		if err != nil {
			message := err.Error()
			response.CurrentWeekProjectedError = &message
		} else {
			response.CurrentWeekProjected = projection
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// globalStatsResponse is the GET /api/global-stats reply.
type globalStatsResponse struct {
	Global                    *types.GlobalStats          `json:"global"`
	Leaderboard               []types.LeaderboardEntry    `json:"leaderboard"`
	CurrentWeekProjected      *types.WeeklyPoolProjection `json:"currentWeekProjected,omitempty"`
	CurrentWeekProjectedError *string                     `json:"currentWeekProjectedError,omitempty"`
}

// handleGlobalStats handles GET /api/global-stats - totals plus leaderboard.
func (s *Server) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	includeRaw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("includeCurrentWeekProjected")))
	includeProjected := includeRaw == "1" || includeRaw == "true"

	global, leaderboard, err := s.stats.FetchGlobalStats(r.Context(), limit)
	if err != nil {
		statusCode, message := mapServiceError(err)
		respondError(w, statusCode, message)
		return
	}

	if leaderboard == nil {
		leaderboard = []types.LeaderboardEntry{}
	}

	response := globalStatsResponse{Global: global, Leaderboard: leaderboard}

	if includeProjected {
		projection, err := s.estimator.EstimateCurrentWeek(r.Context(), "")
		if err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Weekly pool projection unavailable for global stats")
			message := err.Error()
			response.CurrentWeekProjectedError = &message
		} else {
			response.CurrentWeekProjected = projection
		}
	}

	w.Header().Set("Cache-Control", "public, max-age=20, stale-while-revalidate=40")
	respondJSON(w, http.StatusOK, response)
}

// parseLimit clamps the requested leaderboard size into [1, 200].
func parseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultLeaderboardLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > maxLeaderboardLimit {
		return maxLeaderboardLimit
	}
	return limit
}
