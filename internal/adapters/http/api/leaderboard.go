package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// LeaderboardHandler handles top-N and count requests.
type LeaderboardHandler struct {
	deps         Leaderboard
	defaultLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps Leaderboard, defaultLimit int) *LeaderboardHandler {
	if defaultLimit < 1 {
		defaultLimit = 10
	}
	return &LeaderboardHandler{deps: deps, defaultLimit: defaultLimit}
}

type topResponse struct {
	Players []Entry `json:"players"`
	Total   int     `json:"total"`
}

type countResponse struct {
	TotalPlayers int64 `json:"total_players"`
}

// HandleGetTop handles GET /api/leaderboard/top?limit=N. Out of range
// limits are clamped by the service; only non-numeric input is rejected.
func (h *LeaderboardHandler) HandleGetTop(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeServiceError(w, fmt.Errorf("%w: limit %q is not a number", ErrBadRequest, s))
			return
		}
		limit = n
	}

	players, err := h.deps.TopPlayers(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	entries := make([]Entry, len(players))
	for i, p := range players {
		entries[i] = toEntry(p)
	}
	writeJSON(w, http.StatusOK, topResponse{Players: entries, Total: len(entries)})
}

// HandleGetCount handles GET /api/leaderboard/count.
func (h *LeaderboardHandler) HandleGetCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.TotalPlayers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{TotalPlayers: n})
}
