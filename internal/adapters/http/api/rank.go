package api

import (
	"fmt"
	"net/http"
)

// RankHandler handles rank requests.
type RankHandler struct {
	deps Leaderboard
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps Leaderboard) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /api/players/{playerID}/rank.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("playerID")

	p, found, err := h.deps.GetRank(r.Context(), playerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%w: %s", ErrNotFound, playerID))
		return
	}
	writeJSON(w, http.StatusOK, toEntry(p))
}
